package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
)

// Job type constants
const (
	// TaskTypeReportGeneration is the job type for generating a research report
	TaskTypeReportGeneration = "report_generation"
)

// ErrInvalidRequest is returned when a ReportRequest fails validation.
var ErrInvalidRequest = errors.New("invalid report request")

// Job represents a unit of background work to be processed
type Job interface {
	// ID returns the identifier of the task the job works on
	ID() uuid.UUID

	// Type returns the job type identifier
	Type() string

	// Payload returns the job data as a byte slice
	Payload() []byte

	// Execute runs the job logic
	Execute(ctx context.Context) error
}

// JobQueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type JobQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs
	GetChannel() <-chan Job
}

// JobQueueWriter provides write access to the job queue
// allowing services to enqueue jobs for processing
type JobQueueWriter interface {
	// Enqueue adds a job to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(job Job) error

	// Close closes the job queue, preventing further submission
	Close()
}

// ReportRequest is everything a worker needs to produce one report.
// It is also the wire payload of queued jobs.
type ReportRequest struct {
	TaskID  uuid.UUID   `json:"task_id"`
	Mode    domain.Mode `json:"mode"`
	Topic   string      `json:"topic"`
	Subject string      `json:"subject"`
	OwnerID string      `json:"owner_id"`
}

// Validate checks the request can be executed. The owner is never defaulted.
func (r ReportRequest) Validate() error {
	if r.TaskID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrEmptyTaskID)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrOwnerRequired)
	}
	if _, err := domain.NormalizeSubject(r.Subject, r.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Dispatcher hands a report request to whatever runs it in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, req ReportRequest) error
}
