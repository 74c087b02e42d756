package research

import "context"

// Status is the provider-neutral job status seen by the Coordinator.
type Status string

// Job statuses
const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// PollResult is the outcome of a single status check.
type PollResult struct {
	Status Status
	// RawStatus is the provider's own status string, kept for progress messages.
	RawStatus string
	// Output is the normalized report text, set only for completed jobs.
	Output string
	// ErrorDetail is the provider's failure description, set only for failed jobs.
	ErrorDetail string
}

// Client submits research jobs to a provider and checks on them.
// Implementations must not sleep or retry inside Poll.
type Client interface {
	// Submit starts a background job and returns its handle id.
	// Rejections wrap ErrSubmission.
	Submit(ctx context.Context, role, topic string) (string, error)

	// Poll performs one status check of the job. Transport failures wrap
	// ErrPollTransient. Output is already passed through NormalizeMarkdown.
	Poll(ctx context.Context, handleID string) (*PollResult, error)
}

// ShortID returns the first eight characters of a handle id for display.
func ShortID(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:8])
}
