package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-research/internal/api/shared"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

// MaxUploadBytes caps the size of an uploaded document.
const MaxUploadBytes = 32 << 20

// DocumentService is the subset of knowledge.Service the document endpoints use.
type DocumentService interface {
	StoreArtifact(ctx context.Context, req knowledge.StoreRequest) (*domain.Document, error)
	ListDocuments(ctx context.Context, subject string) ([]*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	DocumentContent(ctx context.Context, id string) (string, error)
	DeleteDocument(ctx context.Context, id string) error
}

// ContentResponse carries the plain text of a document.
type ContentResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// DocumentHandler serves the knowledge base endpoints.
type DocumentHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(docs DocumentService, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{docs: docs, logger: logger.With("component", "document_handler")}
}

// UploadDocument handles POST /api/documents with multipart fields
// "file" and "subject".
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "File too large", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	subject := strings.TrimSpace(r.FormValue("subject"))
	if subject == "" {
		HandleAPIError(w, r, domain.ErrEmptyDocumentSubject, "Subject is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "File is required", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Failed to read file", err)
		return
	}

	doc, err := h.docs.StoreArtifact(r.Context(), knowledge.StoreRequest{
		Subject:  subject,
		Data:     data,
		Filename: header.Filename,
		DocType:  domain.DocumentTypeUpload,
		OwnerID:  ownerID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, publicDocument(doc))
}

// ListDocuments handles GET /api/documents?subject=X. Only the caller's
// documents are returned.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		HandleAPIError(w, r, domain.ErrEmptyDocumentSubject, "Query parameter subject is required")
		return
	}

	docs, err := h.docs.ListDocuments(r.Context(), subject)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	out := make([]*domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.OwnerID == ownerID {
			out = append(out, publicDocument(d))
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// GetDocumentContent handles GET /api/documents/{id}/content.
func (h *DocumentHandler) GetDocumentContent(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	content, err := h.docs.DocumentContent(r.Context(), doc.ID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ContentResponse{ID: doc.ID, Content: content})
}

// DeleteDocument handles DELETE /api/documents/{id}.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := h.docs.DeleteDocument(r.Context(), doc.ID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("document deleted via api", "document_id", doc.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedDocument loads the {id} document and writes a 404 unless it belongs
// to the caller.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*domain.Document, bool) {
	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return nil, false
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		HandleAPIError(w, r, domain.ErrEmptyDocumentID, "Invalid ID format")
		return nil, false
	}

	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	if doc.OwnerID != ownerID {
		HandleAPIError(w, r, fmt.Errorf("%w: owned by another user", store.ErrDocumentNotFound), "")
		return nil, false
	}
	return doc, true
}

func publicDocument(d *domain.Document) *domain.Document {
	c := *d
	c.FilePath = ""
	return &c
}
