package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, retention store.RetentionPolicy) *TaskStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewTaskStore(filepath.Join(t.TempDir(), "tasks", "tasks.json"), retention, logger)
	require.NoError(t, err)
	return s
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.DefaultRetention)

	task, err := s.Create(ctx, "aapl", domain.ModeStock)
	require.NoError(t, err)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, "AAPL", got.Subject)
	assert.Equal(t, domain.InitialTaskProgress, got.Progress)
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("stored task mismatch (-created +stored):\n%s", diff)
	}
}

func TestTaskStore_CreateRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, store.DefaultRetention)

	_, err := s.Create(context.Background(), "", domain.ModeStock)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrSubjectRequired)
}

func TestTaskStore_GetUnknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, store.DefaultRetention)

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_UpdateUnknownIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.DefaultRetention)

	existing, err := s.Create(ctx, "", domain.ModeMacro)
	require.NoError(t, err)
	before, err := os.ReadFile(s.path)
	require.NoError(t, err)

	ok, err := s.Update(ctx, uuid.New(), domain.TaskUpdate{Progress: domain.StringPtr("x")})
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, err := s.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialTaskProgress, got.Progress)
}

func TestTaskStore_UpdateLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.DefaultRetention)

	task, err := s.Create(ctx, "", domain.ModeStrategy)
	require.NoError(t, err)

	ok, err := s.Update(ctx, task.ID, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusProcessing),
		Progress: domain.StringPtr("researching"),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Update(ctx, task.ID, domain.TaskUpdate{
		Status: domain.StatusPtr(domain.TaskStatusCompleted),
		Result: &domain.ReportResult{Preview: "# Report", Length: 8},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 8, got.Result.Length)
	assert.Equal(t, "researching", got.Progress)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	ok, err = s.Update(ctx, task.ID, domain.TaskUpdate{Progress: domain.StringPtr("late")})
	assert.ErrorIs(t, err, domain.ErrTaskTerminal)
	assert.False(t, ok)
}

func writeTasks(t *testing.T, s *TaskStore, n int, base time.Time) []*domain.Task {
	t.Helper()
	tasks := make(map[string]*domain.Task, n)
	ordered := make([]*domain.Task, 0, n)
	for i := 0; i < n; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		task := &domain.Task{
			ID:        uuid.New(),
			Subject:   fmt.Sprintf("SYM%d", i),
			Mode:      domain.ModeStock,
			Status:    domain.TaskStatusPending,
			Progress:  domain.InitialTaskProgress,
			CreatedAt: created,
			UpdatedAt: created,
		}
		tasks[task.ID.String()] = task
		ordered = append(ordered, task)
	}
	data, err := json.Marshal(tasks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.path, data, 0o644))
	return ordered
}

func TestTaskStore_Retention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.RetentionPolicy{Ceiling: 100, Keep: 50})

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := writeTasks(t, s, 101, base)

	newest := ordered[len(ordered)-1]
	ok, err := s.Update(ctx, newest.ID, domain.TaskUpdate{Progress: domain.StringPtr("tick")})
	require.NoError(t, err)
	require.True(t, ok)

	for i, task := range ordered {
		_, err := s.Get(ctx, task.ID)
		if i < 51 {
			assert.ErrorIs(t, err, store.ErrTaskNotFound, "task %d should be evicted", i)
		} else {
			assert.NoError(t, err, "task %d should be retained", i)
		}
	}
}

func TestTaskStore_NoRetentionAtCeiling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.RetentionPolicy{Ceiling: 100, Keep: 50})

	ordered := writeTasks(t, s, 100, time.Now().Add(-time.Hour))
	ok, err := s.Update(ctx, ordered[0].ID, domain.TaskUpdate{Progress: domain.StringPtr("tick")})
	require.NoError(t, err)
	require.True(t, ok)

	for _, task := range ordered {
		_, err := s.Get(ctx, task.ID)
		assert.NoError(t, err)
	}
}

func TestTaskStore_ListByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.DefaultRetention)

	base := time.Now().Add(-3 * time.Hour)
	ordered := writeTasks(t, s, 3, base)
	stale, fresh := ordered[0], ordered[1]

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, err := s.Update(ctx, stale.ID, domain.TaskUpdate{Status: domain.StatusPtr(domain.TaskStatusProcessing)})
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.Update(ctx, fresh.ID, domain.TaskUpdate{Status: domain.StatusPtr(domain.TaskStatusProcessing)})
	require.NoError(t, err)

	all, err := s.ListByStatus(ctx, domain.TaskStatusProcessing, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	old, err := s.ListByStatus(ctx, domain.TaskStatusProcessing, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, stale.ID, old[0].ID)
}

func TestTaskStore_ConcurrentWritersDoNotClobber(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, store.DefaultRetention)

	const n = 20
	ids := make([]uuid.UUID, n)
	for i := range ids {
		task, err := s.Create(ctx, "", domain.ModeMacro)
		require.NoError(t, err)
		ids[i] = task.ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, _ = s.Update(ctx, id, domain.TaskUpdate{Status: domain.StatusPtr(domain.TaskStatusProcessing)})
			_, _ = s.Update(ctx, id, domain.TaskUpdate{
				Status: domain.StatusPtr(domain.TaskStatusFailed),
				Error:  domain.StringPtr(fmt.Sprintf("err-%d", i)),
			})
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, got.Status)
		assert.Equal(t, fmt.Sprintf("err-%d", i), got.Error)
	}
}

func TestTaskStore_CorruptFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, store.DefaultRetention)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o644))

	_, err := s.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrTaskNotFound)
}
