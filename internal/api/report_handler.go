package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/api/shared"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/task"
)

// TaskService is the subset of task.Service the report endpoints use.
type TaskService interface {
	CreateTask(ctx context.Context, subject string, mode domain.Mode) (uuid.UUID, error)
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	RunTaskAsync(ctx context.Context, req task.ReportRequest) error
}

// CreateReportRequest is the body of POST /api/reports.
type CreateReportRequest struct {
	Mode    string `json:"mode"    validate:"required"`
	Subject string `json:"subject" validate:"max=64"`
	Topic   string `json:"topic"   validate:"max=4000"`
}

// CreateReportResponse is returned once the task is queued.
type CreateReportResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ReportHandler serves the report task endpoints.
type ReportHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(tasks TaskService, logger *slog.Logger) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{tasks: tasks, logger: logger.With("component", "report_handler")}
}

// CreateReport handles POST /api/reports. The task is created pending and
// handed to the background dispatcher; the client polls GET /api/reports/{id}.
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, ok := shared.OwnerID(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req CreateReportRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleValidationError(w, r, err)
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	id, err := h.tasks.CreateTask(r.Context(), req.Subject, mode)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	err = h.tasks.RunTaskAsync(r.Context(), task.ReportRequest{
		TaskID:  id,
		Mode:    mode,
		Topic:   req.Topic,
		Subject: req.Subject,
		OwnerID: ownerID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("report task accepted", "task_id", id, "mode", mode)
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateReportResponse{
		TaskID: id.String(),
		Status: string(domain.TaskStatusPending),
	})
}

// GetReport handles GET /api/reports/{id}.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleAPIError(w, r, domain.ErrInvalidID, "")
		return
	}

	t, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// file paths are server-local
	if t.Result != nil && t.Result.File != nil {
		file := *t.Result.File
		file.FilePath = ""
		result := *t.Result
		result.File = &file
		t.Result = &result
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}
