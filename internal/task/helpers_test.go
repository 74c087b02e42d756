package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/events"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/platform/filestore"
	"github.com/phrazzld/scry-research/internal/research"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestTaskStore(t *testing.T) *filestore.TaskStore {
	t.Helper()
	s, err := filestore.NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"), store.DefaultRetention, setupTestLogger())
	require.NoError(t, err)
	return s
}

// fakeRunner emits progress lines and returns a fixed outcome.
type fakeRunner struct {
	progress []string
	outcome  research.Outcome
	run      func(ctx context.Context) research.Outcome

	mu    sync.Mutex
	role  string
	topic string
}

func (f *fakeRunner) Run(ctx context.Context, role, topic string, progress research.ProgressFunc) research.Outcome {
	f.mu.Lock()
	f.role, f.topic = role, topic
	f.mu.Unlock()

	for _, msg := range f.progress {
		progress(ctx, msg)
	}
	if f.run != nil {
		return f.run(ctx)
	}
	return f.outcome
}

type fakeRoles struct{}

func (fakeRoles) RoleFor(mode domain.Mode, subject string) (string, error) {
	if mode == domain.ModeStock && subject == "" {
		return "", domain.ErrSubjectRequired
	}
	return "role:" + string(mode) + ":" + subject, nil
}

type fakeRenderer struct {
	err error
}

func (r fakeRenderer) Render(_ context.Context, subject, markdown string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte(subject + "\n" + markdown), nil
}

func (fakeRenderer) Extension() string   { return "pdf" }
func (fakeRenderer) ContentType() string { return "application/pdf" }

// fakeArtifacts records stored artifacts.
type fakeArtifacts struct {
	mu     sync.Mutex
	err    error
	stored []knowledge.StoreRequest
}

func (a *fakeArtifacts) StoreArtifact(_ context.Context, req knowledge.StoreRequest) (*domain.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.stored = append(a.stored, req)
	return &domain.Document{
		ID:       "01J0000000000000000000000" + string(rune('A'+len(a.stored))),
		OwnerID:  req.OwnerID,
		Subject:  req.Subject,
		Filename: req.Filename,
		Type:     req.DocType,
		FileSize: int64(len(req.Data)),
	}, nil
}

func (a *fakeArtifacts) requests() []knowledge.StoreRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]knowledge.StoreRequest(nil), a.stored...)
}

// recordingHandler captures progress messages in arrival order.
type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *events.ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, event.Message)
	return nil
}

func (h *recordingHandler) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

type executorFixture struct {
	store     *filestore.TaskStore
	runner    *fakeRunner
	artifacts *fakeArtifacts
	recorder  *recordingHandler
	executor  *Executor
}

func newExecutorFixture(t *testing.T, runner *fakeRunner, renderer fakeRenderer) *executorFixture {
	t.Helper()
	taskStore := newTestTaskStore(t)
	artifacts := &fakeArtifacts{}
	recorder := &recordingHandler{}

	emitter := events.NewInMemoryEventEmitter(setupTestLogger())
	emitter.RegisterHandler(NewProgressRecorder(taskStore, setupTestLogger()))
	emitter.RegisterHandler(recorder)

	executor, err := NewExecutor(ExecutorDeps{
		Store:     taskStore,
		Research:  runner,
		Roles:     fakeRoles{},
		Renderer:  renderer,
		Artifacts: artifacts,
		Emitter:   emitter,
		Logger:    setupTestLogger(),
	})
	require.NoError(t, err)

	return &executorFixture{
		store:     taskStore,
		runner:    runner,
		artifacts: artifacts,
		recorder:  recorder,
		executor:  executor,
	}
}

func (f *executorFixture) createTask(t *testing.T, subject string, mode domain.Mode) uuid.UUID {
	t.Helper()
	created, err := f.store.Create(context.Background(), subject, mode)
	require.NoError(t, err)
	return created.ID
}

func (f *executorFixture) get(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	got, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

// stubDispatcher records dispatched requests and optionally fails.
type stubDispatcher struct {
	mu   sync.Mutex
	err  error
	reqs []ReportRequest
}

func (d *stubDispatcher) Dispatch(_ context.Context, req ReportRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

var errBoom = errors.New("boom")
