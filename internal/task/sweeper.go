package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/store"
)

// Error messages written by the sweeper.
const (
	AbandonedTaskError   = "task abandoned: no progress before the stale-task deadline"
	InterruptedTaskError = "task interrupted by a server restart"
)

// SweeperConfig holds configuration for the stale-task sweeper
type SweeperConfig struct {
	// StuckTaskAge defines how long a task can stay in processing without
	// an update before it is marked failed
	StuckTaskAge time.Duration

	// CheckInterval defines how often to look for stuck tasks
	// If zero, defaults to 5 minutes
	CheckInterval time.Duration
}

// DefaultSweeperConfig returns a SweeperConfig with reasonable defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		StuckTaskAge:  30 * time.Minute,
		CheckInterval: 5 * time.Minute,
	}
}

// Sweeper fails tasks that no worker will ever finish. It only moves
// tasks forward and never resets them to pending.
type Sweeper struct {
	store  store.TaskStore
	config SweeperConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(taskStore store.TaskStore, config SweeperConfig, logger *slog.Logger) *Sweeper {
	defaults := DefaultSweeperConfig()
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = defaults.StuckTaskAge
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	return &Sweeper{
		store:  taskStore,
		config: config,
		logger: logger.With("component", "stale_task_sweeper"),
		now:    time.Now,
	}
}

// Run sweeps every CheckInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("failed to check for stuck tasks", "error", err)
			}
		}
	}
}

// Sweep marks processing tasks with no update for StuckTaskAge as failed
// and returns how many were marked.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StuckTaskAge)
	stuck, err := s.store.ListByStatus(ctx, domain.TaskStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list processing tasks: %w", err)
	}
	if len(stuck) > 0 {
		s.logger.Info("found stuck tasks", "count", len(stuck))
	}
	return s.failAll(ctx, stuck, AbandonedTaskError), nil
}

// FailOrphaned marks every pending and processing task as failed. It is
// meant for startup with the in-process dispatcher, whose queue does not
// survive a restart.
func (s *Sweeper) FailOrphaned(ctx context.Context) (int, error) {
	var orphaned []*domain.Task
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing} {
		tasks, err := s.store.ListByStatus(ctx, status, time.Time{})
		if err != nil {
			return 0, fmt.Errorf("list %s tasks: %w", status, err)
		}
		orphaned = append(orphaned, tasks...)
	}

	s.logger.Info("recovering unfinished tasks", "count", len(orphaned))
	return s.failAll(ctx, orphaned, InterruptedTaskError), nil
}

func (s *Sweeper) failAll(ctx context.Context, tasks []*domain.Task, reason string) int {
	failed := 0
	for _, t := range tasks {
		ok, err := s.store.Update(ctx, t.ID, domain.TaskUpdate{
			Status:   domain.StatusPtr(domain.TaskStatusFailed),
			Progress: domain.StringPtr("report generation failed"),
			Error:    domain.StringPtr(reason),
		})
		if err != nil {
			// a worker may have finished the task in the meantime
			s.logger.Warn("failed to mark task as failed",
				"task_id", t.ID,
				"status", t.Status,
				"error", err)
			continue
		}
		if ok {
			failed++
			s.logger.Info("marked task as failed", "task_id", t.ID, "previous_status", t.Status)
		}
	}
	return failed
}
