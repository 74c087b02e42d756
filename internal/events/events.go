package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProgressEvent is a single progress line produced while a task runs.
type ProgressEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// TaskID is the task the progress belongs to
	TaskID uuid.UUID `json:"task_id"`

	// Message is the human-readable progress line
	Message string `json:"message"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewProgressEvent creates a ProgressEvent for the task.
func NewProgressEvent(taskID uuid.UUID, message string) *ProgressEvent {
	return &ProgressEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *ProgressEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Handlers run synchronously, so events from one producer arrive in order.
	EmitEvent(ctx context.Context, event *ProgressEvent) error
}
