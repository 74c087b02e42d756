package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

// Service is the entry point used by the command surface to create,
// inspect and start report tasks.
type Service struct {
	store      store.TaskStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(taskStore store.TaskStore, dispatcher Dispatcher, logger *slog.Logger) (*Service, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      taskStore,
		dispatcher: dispatcher,
		logger:     logger.With("component", "task_service"),
	}, nil
}

// CreateTask records a new pending task and returns its id.
func (s *Service) CreateTask(ctx context.Context, subject string, mode domain.Mode) (uuid.UUID, error) {
	t, err := s.store.Create(ctx, subject, mode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("task created",
		"task_id", t.ID,
		"subject", t.Subject,
		"mode", t.Mode)
	return t.ID, nil
}

// GetTask returns a snapshot of the task. Store failures are logged and
// reported as store.ErrTaskNotFound.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if !store.IsNotFoundError(err) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to read task",
				"task_id", id,
				"error", err)
		}
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

// UpdateTask merges update into the task. It returns false when the task
// is unknown or the update could not be applied.
func (s *Service) UpdateTask(ctx context.Context, id uuid.UUID, update domain.TaskUpdate) bool {
	ok, err := s.store.Update(ctx, id, update)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task",
			"task_id", id,
			"error", err)
		return false
	}
	return ok
}

// RunTaskAsync validates req and hands it to the dispatcher. When dispatch
// fails the task is marked failed so it never stays pending.
func (s *Service) RunTaskAsync(ctx context.Context, req ReportRequest) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("task_id", req.TaskID)

	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, req.TaskID); err != nil {
		return fmt.Errorf("run task: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		log.Error("failed to dispatch report job", "error", err)
		if !s.UpdateTask(context.WithoutCancel(ctx), req.TaskID, domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusFailed),
			Progress: domain.StringPtr("report generation failed"),
			Error:    domain.StringPtr(fmt.Sprintf("failed to start report job: %v", err)),
		}) {
			log.Warn("could not mark undispatched task as failed")
		}
		return fmt.Errorf("dispatch report job: %w", err)
	}

	log.Info("report job dispatched", "mode", req.Mode, "owner_id", req.OwnerID)
	return nil
}
