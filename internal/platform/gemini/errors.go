package gemini

import (
	"errors"
	"fmt"
)

// Error definitions for the gemini package.
var (
	// ErrEmptyTopic is returned when a research topic is empty.
	ErrEmptyTopic = errors.New("research topic cannot be empty")

	// ErrUnknownHandle is reported when a poll names a job this process never started.
	ErrUnknownHandle = errors.New("unknown research handle")
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.Code)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Body)
}
