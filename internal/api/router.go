package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-research/internal/api/middleware"
	"github.com/phrazzld/scry-research/internal/api/shared"
	"github.com/phrazzld/scry-research/internal/service/auth"
)

// RouterDeps holds the services the router dispatches to.
type RouterDeps struct {
	Tasks      TaskService
	Documents  DocumentService
	JWTService auth.JWTService
	Logger     *slog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.TraceMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	reports := NewReportHandler(deps.Tasks, deps.Logger)
	documents := NewDocumentHandler(deps.Documents, deps.Logger)
	authMiddleware := middleware.NewAuthMiddleware(deps.JWTService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/reports", reports.CreateReport)
		r.Get("/reports/{id}", reports.GetReport)

		r.Post("/documents", documents.UploadDocument)
		r.Get("/documents", documents.ListDocuments)
		r.Get("/documents/{id}/content", documents.GetDocumentContent)
		r.Delete("/documents/{id}", documents.DeleteDocument)
	})

	return r
}
