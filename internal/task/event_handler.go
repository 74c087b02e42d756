package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/events"
	"github.com/phrazzld/scry-research/internal/store"
)

// ProgressRecorder implements events.EventHandler by writing each
// progress event to the task record.
type ProgressRecorder struct {
	store  store.TaskStore
	logger *slog.Logger
}

// NewProgressRecorder creates a recorder backed by taskStore.
func NewProgressRecorder(taskStore store.TaskStore, logger *slog.Logger) *ProgressRecorder {
	return &ProgressRecorder{
		store:  taskStore,
		logger: logger.With("component", "progress_recorder"),
	}
}

// HandleEvent stores the event message as the task's progress line.
func (h *ProgressRecorder) HandleEvent(ctx context.Context, event *events.ProgressEvent) error {
	ok, err := h.store.Update(ctx, event.TaskID, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusProcessing),
		Progress: domain.StringPtr(event.Message),
	})
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	if !ok {
		h.logger.Debug("progress for unknown task dropped", "task_id", event.TaskID, "event_id", event.ID)
		return nil
	}
	return nil
}

// Ensure ProgressRecorder implements events.EventHandler
var _ events.EventHandler = (*ProgressRecorder)(nil)
