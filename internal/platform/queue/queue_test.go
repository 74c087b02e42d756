package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startMiniRedis(t *testing.T) asynq.RedisClientOpt {
	t.Helper()
	s := miniredis.RunT(t)
	return asynq.RedisClientOpt{Addr: s.Addr()}
}

// recordingExecutor captures executed requests.
type recordingExecutor struct {
	mu   sync.Mutex
	reqs []task.ReportRequest
	err  error
}

func (e *recordingExecutor) Execute(_ context.Context, req task.ReportRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.err
}

func (e *recordingExecutor) executed() []task.ReportRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]task.ReportRequest(nil), e.reqs...)
}

func TestDispatchAndProcess(t *testing.T) {
	redis := startMiniRedis(t)
	opts := Options{Queue: "reports-test", Concurrency: 1}

	exec := &recordingExecutor{}
	worker, err := NewWorker(redis, opts, exec, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	dispatcher := NewDispatcher(redis, opts, testLogger())
	t.Cleanup(func() { _ = dispatcher.Close() })

	req := task.ReportRequest{
		TaskID:  uuid.New(),
		Mode:    domain.ModeStock,
		Subject: "AAPL",
		Topic:   "services growth",
		OwnerID: "user-1",
	}
	require.NoError(t, dispatcher.Dispatch(context.Background(), req))

	require.Eventually(t, func() bool {
		return len(exec.executed()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, req, exec.executed()[0])
}

func TestDispatchDuplicate(t *testing.T) {
	redis := startMiniRedis(t)
	dispatcher := NewDispatcher(redis, Options{}, testLogger())
	t.Cleanup(func() { _ = dispatcher.Close() })

	req := task.ReportRequest{TaskID: uuid.New(), Mode: domain.ModeMacro, OwnerID: "u"}
	require.NoError(t, dispatcher.Dispatch(context.Background(), req))

	err := dispatcher.Dispatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestHandleReportSkipsRetry(t *testing.T) {
	redis := startMiniRedis(t)

	t.Run("bad payload", func(t *testing.T) {
		exec := &recordingExecutor{}
		worker, err := NewWorker(redis, Options{}, exec, testLogger())
		require.NoError(t, err)

		err = worker.handleReport(context.Background(), asynq.NewTask(TypeReportGeneration, []byte(`{"task_id":`)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
		assert.Empty(t, exec.executed())
	})

	t.Run("executor error", func(t *testing.T) {
		exec := &recordingExecutor{err: errors.New("store down")}
		worker, err := NewWorker(redis, Options{}, exec, testLogger())
		require.NoError(t, err)

		payload, err := task.EncodeReportRequest(task.ReportRequest{TaskID: uuid.New(), Mode: domain.ModeMacro, OwnerID: "u"})
		require.NoError(t, err)

		err = worker.handleReport(context.Background(), asynq.NewTask(TypeReportGeneration, payload))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Contains(t, err.Error(), "store down")
		assert.Len(t, exec.executed(), 1)
	})
}

func TestNewWorkerRequiresExecutor(t *testing.T) {
	_, err := NewWorker(asynq.RedisClientOpt{Addr: "localhost:0"}, Options{}, nil, testLogger())
	assert.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultQueue, opts.Queue)
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, 2, opts.Concurrency)
}

func TestLogLevel(t *testing.T) {
	debug := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	warn := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))

	assert.Equal(t, asynq.DebugLevel, logLevel(debug))
	assert.Equal(t, asynq.WarnLevel, logLevel(warn))
}
