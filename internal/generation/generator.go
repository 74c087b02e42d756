package generation

import "context"

// Generator produces report text from a persona role and a research topic.
type Generator interface {
	// Generate returns the model's Markdown answer for topic, written in the
	// voice described by role. Errors wrap one of the sentinels in errors.go.
	Generate(ctx context.Context, role, topic string) (string, error)
}
