package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
)

// RetentionPolicy bounds the number of task records a TaskStore keeps.
// Once a write leaves more than Ceiling records, the oldest by creation
// time are evicted until Keep remain.
type RetentionPolicy struct {
	Ceiling int
	Keep    int
}

// DefaultRetention is the retention used when none is configured.
var DefaultRetention = RetentionPolicy{Ceiling: 100, Keep: 50}

// Normalize returns a usable policy, falling back to DefaultRetention
// for non-positive values and clamping Keep to Ceiling.
func (p RetentionPolicy) Normalize() RetentionPolicy {
	if p.Ceiling <= 0 {
		p.Ceiling = DefaultRetention.Ceiling
	}
	if p.Keep <= 0 {
		p.Keep = DefaultRetention.Keep
	}
	if p.Keep > p.Ceiling {
		p.Keep = p.Ceiling
	}
	return p
}

// TaskStore defines the interface for report task persistence.
type TaskStore interface {
	// Create stores a new pending task for the subject and mode and returns it.
	// The subject is normalized with domain.NormalizeSubject.
	Create(ctx context.Context, subject string, mode domain.Mode) (*domain.Task, error)

	// Update merges the update into the stored task and refreshes updated_at.
	// Returns (false, nil) when the id is unknown, ErrTaskTerminal or
	// ErrInvalidTaskUpdate (from domain) when the update is rejected.
	// Retention is applied after a successful write.
	Update(ctx context.Context, id uuid.UUID, update domain.TaskUpdate) (bool, error)

	// Get returns a snapshot of the task.
	// Returns ErrTaskNotFound if the task does not exist or was evicted.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByStatus returns tasks in the given status whose updated_at is
	// before olderThan. A zero olderThan matches every task in the status.
	ListByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Time) ([]*domain.Task, error)
}
