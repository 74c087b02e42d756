package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/task"
)

// TypeReportGeneration is the asynq task type for report jobs.
const TypeReportGeneration = "report:generate"

// Defaults for Options.
const (
	DefaultQueue   = "reports"
	DefaultTimeout = time.Hour
)

// ErrDuplicateJob is returned when a job for the task was already enqueued.
var ErrDuplicateJob = errors.New("report job already enqueued")

// Options configures both the dispatcher and the worker.
type Options struct {
	// Queue is the asynq queue name.
	Queue string
	// Timeout bounds a single job run.
	Timeout time.Duration
	// Concurrency is the number of jobs a worker runs at once.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = DefaultQueue
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	return o
}

// Dispatcher implements task.Dispatcher by enqueueing asynq tasks.
// Jobs are never retried: a failed run already ends in a failed task record.
type Dispatcher struct {
	client *asynq.Client
	opts   Options
	logger *slog.Logger
}

var _ task.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher for the Redis at redisOpt.
func NewDispatcher(redisOpt asynq.RedisConnOpt, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client: asynq.NewClient(redisOpt),
		opts:   opts.withDefaults(),
		logger: logger.With("component", "queue_dispatcher"),
	}
}

// Dispatch enqueues req. The task id doubles as the asynq task id, so a
// request can be queued at most once.
func (d *Dispatcher) Dispatch(ctx context.Context, req task.ReportRequest) error {
	payload, err := task.EncodeReportRequest(req)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx,
		asynq.NewTask(TypeReportGeneration, payload),
		asynq.Queue(d.opts.Queue),
		asynq.TaskID(req.TaskID.String()),
		asynq.MaxRetry(0),
		asynq.Timeout(d.opts.Timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, req.TaskID)
		}
		return fmt.Errorf("enqueue report job: %w", err)
	}

	logger.FromContextOrDefault(ctx, d.logger).Info("report job enqueued",
		"task_id", req.TaskID,
		"queue", info.Queue)
	return nil
}

// Close releases the Redis connection.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
