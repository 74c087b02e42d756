package task

import (
	"context"
	"errors"
)

// LocalDispatcher runs requests on the in-process worker pool.
type LocalDispatcher struct {
	queue    JobQueueWriter
	executor *Executor
}

var _ Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher creates a dispatcher feeding queue.
func NewLocalDispatcher(queue JobQueueWriter, executor *Executor) (*LocalDispatcher, error) {
	if queue == nil {
		return nil, errors.New("job queue cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	return &LocalDispatcher{queue: queue, executor: executor}, nil
}

// Dispatch enqueues the request. It fails fast when the queue is full or closed.
func (d *LocalDispatcher) Dispatch(ctx context.Context, req ReportRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.queue.Enqueue(NewReportJob(req, d.executor))
}
