package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/scry-research/internal/task"
)

// Executor runs one report request to a terminal task record.
type Executor interface {
	Execute(ctx context.Context, req task.ReportRequest) error
}

// Worker consumes report jobs from Redis.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	executor Executor
	logger   *slog.Logger
}

// NewWorker creates a Worker. Call Run to start processing.
func NewWorker(redisOpt asynq.RedisConnOpt, opts Options, executor Executor, logger *slog.Logger) (*Worker, error) {
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	log := logger.With("component", "queue_worker")

	w := &Worker{
		mux:      asynq.NewServeMux(),
		executor: executor,
		logger:   log,
	}
	w.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: opts.Concurrency,
		Queues:      map[string]int{opts.Queue: 1},
		Logger:      slogAdapter{logger: log},
		LogLevel:    logLevel(log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			log.Error("report job failed", "asynq_task_id", id, "type", t.Type(), "error", err)
		}),
	})
	w.mux.HandleFunc(TypeReportGeneration, w.handleReport)
	return w, nil
}

func (w *Worker) handleReport(ctx context.Context, t *asynq.Task) error {
	req, err := task.DecodeReportRequest(t.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Debug("processing report job", "task_id", req.TaskID)
	if err := w.executor.Execute(ctx, req); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// Run starts the asynq server and blocks until ctx is done, then shuts it
// down. In-flight jobs see their context cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start queue worker: %w", err)
	}
	w.logger.Info("queue worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("queue worker stopped")
	return nil
}
