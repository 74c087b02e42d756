package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool manages a pool of worker goroutines that process jobs
// from a job queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// jobQueue provides read access to the jobs to be processed
	jobQueue JobQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is passed to every job and cancelled on Stop
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	// logger for structured logging
	logger *slog.Logger

	// errorHandler is called when a job execution fails
	// If nil, errors are only logged
	errorHandler func(job Job, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(jobQueue JobQueueReader, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobQueue:    jobQueue,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// SetErrorHandler allows setting a custom error handler for job execution failures
func (p *WorkerPool) SetErrorHandler(handler func(job Job, err error)) {
	p.errorHandler = handler
}

// Start launches the workers. It returns immediately.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight jobs and waits for every worker to return.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Run starts the pool and blocks until ctx is done, then stops it.
// It fits the execute half of an oklog/run actor.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start()
	select {
	case <-ctx.Done():
	case <-p.ctx.Done():
	}
	p.Stop()
	return nil
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)
	log.Debug("worker started")

	jobs := p.jobQueue.GetChannel()
	for {
		select {
		case <-p.ctx.Done():
			log.Debug("worker shutting down")
			return
		case job, ok := <-jobs:
			if !ok {
				log.Debug("job channel closed, worker exiting")
				return
			}
			p.execute(log, job)
		}
	}
}

func (p *WorkerPool) execute(log *slog.Logger, job Job) {
	log = log.With("task_id", job.ID(), "job_type", job.Type())
	log.Debug("processing job")

	if err := job.Execute(p.ctx); err != nil {
		log.Error("job execution failed", "error", err)
		if p.errorHandler != nil {
			p.errorHandler(job, err)
		}
		return
	}
	log.Debug("job completed")
}
