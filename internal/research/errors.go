package research

import "errors"

// Job outcome errors. Each terminal failure of a research job wraps exactly one of these.
var (
	// ErrSubmission is returned when the provider rejects the initial request.
	ErrSubmission = errors.New("research submission rejected")

	// ErrPollTransient is returned when a single status check fails in transport.
	// The Coordinator retries it within the attempt budget.
	ErrPollTransient = errors.New("polling error")

	// ErrProviderFailed is returned when the provider reports the job failed.
	ErrProviderFailed = errors.New("research task failed")

	// ErrProviderCancelled is returned when the provider reports the job was cancelled.
	ErrProviderCancelled = errors.New("task was cancelled")

	// ErrEmptyResult is returned when a completed job carries no output.
	ErrEmptyResult = errors.New("task completed but returned no output")

	// ErrTimeout is returned when the attempt budget runs out while the job is still running.
	ErrTimeout = errors.New("research timed out")
)
