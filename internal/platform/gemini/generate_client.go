package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/generation"
	"github.com/phrazzld/scry-research/internal/prompt"
	"github.com/phrazzld/scry-research/internal/redact"
	"github.com/phrazzld/scry-research/internal/research"
)

// Raw statuses reported by GenerateClient.
const (
	rawRunning   = "running"
	rawSucceeded = "succeeded"
	rawFailed    = "failed"
	rawCancelled = "cancelled"
)

type backgroundJob struct {
	done bool
	text string
	err  error
}

// GenerateClient runs a blocking generation.Generator in the background and
// exposes it through the research.Client handle contract.
type GenerateClient struct {
	generator generation.Generator
	logger    *slog.Logger

	mu   sync.Mutex
	jobs map[string]*backgroundJob
	wg   sync.WaitGroup
}

var _ research.Client = (*GenerateClient)(nil)

// NewGenerateClient wraps generator.
func NewGenerateClient(generator generation.Generator, logger *slog.Logger) *GenerateClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateClient{
		generator: generator,
		logger:    logger.With("component", "generate_client"),
		jobs:      make(map[string]*backgroundJob),
	}
}

// Submit starts the generation in a goroutine bound to ctx and returns a handle.
func (c *GenerateClient) Submit(ctx context.Context, role, topic string) (string, error) {
	if c.generator == nil {
		return "", fmt.Errorf("%w: no generator configured", research.ErrSubmission)
	}

	id := uuid.NewString()
	job := &backgroundJob{}

	c.mu.Lock()
	c.jobs[id] = job
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		text, err := c.generator.Generate(ctx, role, prompt.Request(topic))

		c.mu.Lock()
		job.done = true
		job.text = text
		job.err = err
		c.mu.Unlock()

		if err != nil {
			c.logger.WarnContext(ctx, "background generation failed",
				"handle_id", id,
				"error", redact.Error(err))
			return
		}
		c.logger.DebugContext(ctx, "background generation finished",
			"handle_id", id,
			"text_length", len(text))
	}()

	return id, nil
}

// Poll reports the job state. A finished job is forgotten once it has been
// reported.
func (c *GenerateClient) Poll(_ context.Context, handleID string) (*research.PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[handleID]
	if !ok {
		return &research.PollResult{
			Status:      research.StatusFailed,
			RawStatus:   rawFailed,
			ErrorDetail: fmt.Sprintf("%v: %s", ErrUnknownHandle, research.ShortID(handleID)),
		}, nil
	}
	if !job.done {
		return &research.PollResult{Status: research.StatusInProgress, RawStatus: rawRunning}, nil
	}

	delete(c.jobs, handleID)

	switch {
	case job.err == nil:
		return &research.PollResult{
			Status:    research.StatusCompleted,
			RawStatus: rawSucceeded,
			Output:    research.NormalizeMarkdown(job.text),
		}, nil
	case errors.Is(job.err, context.Canceled):
		return &research.PollResult{Status: research.StatusCancelled, RawStatus: rawCancelled}, nil
	default:
		return &research.PollResult{
			Status:      research.StatusFailed,
			RawStatus:   rawFailed,
			ErrorDetail: strings.TrimSpace(redact.Error(job.err)),
		}, nil
	}
}

// Wait blocks until every submitted generation has returned.
func (c *GenerateClient) Wait() {
	c.wg.Wait()
}
