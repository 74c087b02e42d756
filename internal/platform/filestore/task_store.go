package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/store"
)

// TaskStore keeps every task in one JSON object keyed by task id.
// All access is serialized by a mutex and every operation re-reads the file,
// so the file stays the source of truth. Writes replace the file atomically.
type TaskStore struct {
	path      string
	retention store.RetentionPolicy
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// Ensure TaskStore implements store.TaskStore interface
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore backed by the file at path. The parent
// directory is created when missing; failure to do so is returned because
// the store cannot work without it.
func NewTaskStore(path string, retention store.RetentionPolicy, logger *slog.Logger) (*TaskStore, error) {
	if path == "" {
		return nil, errors.New("task file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task store directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskStore{
		path:      path,
		retention: retention.Normalize(),
		logger:    logger.With(slog.String("component", "task_store"), slog.String("path", path)),
		now:       time.Now,
	}, nil
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, subject string, mode domain.Mode) (*domain.Task, error) {
	task, err := domain.NewTask(subject, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	tasks[task.ID.String()] = task
	if err := s.save(tasks); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "task created",
		slog.String("task_id", task.ID.String()),
		slog.String("subject", task.Subject),
		slog.String("mode", string(task.Mode)))

	clone := *task
	return &clone, nil
}

// Update implements store.TaskStore.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, update domain.TaskUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return false, err
	}

	task, ok := tasks[id.String()]
	if !ok {
		return false, nil
	}
	if err := task.Apply(update, s.now()); err != nil {
		return false, err
	}

	evicted := s.applyRetention(tasks)
	if err := s.save(tasks); err != nil {
		return false, err
	}

	if evicted > 0 {
		s.logger.InfoContext(ctx, "evicted old tasks",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(tasks)))
	}
	return true, nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	task, ok := tasks[id.String()]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

// ListByStatus implements store.TaskStore.
func (s *TaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Time,
) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []*domain.Task
	for _, task := range tasks {
		if task.Status != status {
			continue
		}
		if !olderThan.IsZero() && !task.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// applyRetention evicts the oldest tasks by creation time once the ceiling
// is exceeded and returns how many were removed.
func (s *TaskStore) applyRetention(tasks map[string]*domain.Task) int {
	if len(tasks) <= s.retention.Ceiling {
		return 0
	}

	ordered := make([]*domain.Task, 0, len(tasks))
	for _, task := range tasks {
		ordered = append(ordered, task)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	evicted := 0
	for _, task := range ordered[s.retention.Keep:] {
		delete(tasks, task.ID.String())
		evicted++
	}
	return evicted
}

func (s *TaskStore) load() (map[string]*domain.Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]*domain.Task), nil
	}
	if err != nil {
		return nil, store.NewStoreError("task", "read", "failed to read task file", err)
	}
	if len(data) == 0 {
		return make(map[string]*domain.Task), nil
	}

	tasks := make(map[string]*domain.Task)
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, store.NewStoreError("task", "read", "failed to decode task file", err)
	}
	return tasks, nil
}

func (s *TaskStore) save(tasks map[string]*domain.Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return store.NewStoreError("task", "write", "failed to encode tasks", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return store.NewStoreError("task", "write", "failed to write task file", err)
	}
	return nil
}
