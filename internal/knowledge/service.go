package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/moby/sys/atomicwriter"
	"github.com/oklog/ulid/v2"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

// Errors returned by Service
var (
	ErrContentUnavailable = errors.New("document content is unavailable")
	ErrUnsupportedContent = errors.New("document content is not text")
)

// StoreRequest describes a file to persist.
type StoreRequest struct {
	Subject  string
	Data     []byte
	Filename string
	DocType  domain.DocumentType
	OwnerID  string
}

// Service manages document files and their metadata.
type Service struct {
	basePath string
	docs     store.DocumentStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service rooted at basePath.
func NewService(basePath string, docs store.DocumentStore, logger *slog.Logger) (*Service, error) {
	if docs == nil {
		return nil, errors.New("document store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Service{
		basePath: basePath,
		docs:     docs,
		logger:   logger.With("component", "knowledge_service"),
		now:      time.Now,
	}, nil
}

// StoreArtifact writes req.Data under <base>/<SUBJECT>/<id>_<filename> and
// records its metadata. The file is removed again if the metadata write fails.
func (s *Service) StoreArtifact(ctx context.Context, req StoreRequest) (*domain.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.ErrOwnerRequired
	}
	subject := strings.ToUpper(strings.TrimSpace(req.Subject))
	dirName := domain.SafeFilename(subject)
	if dirName == "" || strings.Trim(dirName, ".") == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyDocumentSubject, req.Subject)
	}
	filename := domain.SafeFilename(req.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyDocumentFilename, req.Filename)
	}
	docType := req.DocType
	if docType == "" {
		docType = domain.DocumentTypeUpload
	}

	id := ulid.Make().String()
	dir := filepath.Join(s.basePath, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create subject directory: %w", err)
	}
	path := filepath.Join(dir, id+"_"+filename)
	if err := atomicwriter.WriteFile(path, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write document file: %w", err)
	}

	doc := &domain.Document{
		ID:        id,
		OwnerID:   req.OwnerID,
		Subject:   subject,
		Filename:  filename,
		FilePath:  path,
		Type:      docType,
		FileSize:  int64(len(req.Data)),
		CreatedAt: s.now().UTC(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			log.Warn("failed to remove orphaned document file", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("save document metadata: %w", err)
	}

	log.Info("document stored",
		"document_id", id,
		"subject", subject,
		"doc_type", docType,
		"file_size", doc.FileSize)
	return doc, nil
}

// ListDocuments returns the documents for subject, newest first.
func (s *Service) ListDocuments(ctx context.Context, subject string) ([]*domain.Document, error) {
	return s.docs.ListBySubject(ctx, strings.ToUpper(strings.TrimSpace(subject)))
}

// GetDocument returns a document's metadata.
func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// DocumentContent returns the plain text of a document. PDFs are run through
// text extraction; anything else must already be UTF-8 text.
func (s *Service) DocumentContent(ctx context.Context, id string) (string, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.FilePath == "" {
		return "", fmt.Errorf("%w: %s has no file", ErrContentUnavailable, id)
	}

	if strings.EqualFold(filepath.Ext(doc.FilePath), ".pdf") {
		text, err := extractPDFText(doc.FilePath)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrContentUnavailable, err)
		}
		return text, nil
	}

	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, doc.Filename)
	}
	return string(data), nil
}

// DocumentsContent concatenates the text of several documents, each preceded
// by a "--- Document: <name> ---" line. Missing or unreadable documents are
// skipped.
func (s *Service) DocumentsContent(ctx context.Context, ids []string) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var b strings.Builder
	for _, id := range ids {
		doc, err := s.docs.GetByID(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				continue
			}
			return "", err
		}

		content, err := s.DocumentContent(ctx, id)
		if err != nil {
			log.Warn("skipping unreadable document", "document_id", id, "error", err)
			continue
		}
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Document: %s ---\n%s\n", doc.Filename, content)
	}
	return b.String(), nil
}

// DeleteDocument removes the file and then the metadata record.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("failed to delete document file", "document_id", id, "error", err)
		}
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}

	log.Info("document deleted", "document_id", id)
	return nil
}

func extractPDFText(path string) (text string, err error) {
	// the PDF parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
