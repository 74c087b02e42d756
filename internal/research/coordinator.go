package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-research/internal/platform/logger"
)

// Default polling budget: 120 attempts ten seconds apart, about 20 minutes.
const (
	DefaultMaxAttempts  = 120
	DefaultPollInterval = 10 * time.Second
)

// State is the terminal state of a coordinated research run.
type State string

// Terminal states
const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Outcome is the result of Coordinator.Run.
type Outcome struct {
	State State
	// Text is the normalized report, set only when State is StateSucceeded.
	Text string
	// Err carries the failure reason for StateFailed and StateTimedOut.
	Err error
	// HandleID is the provider job id, empty when submission failed.
	HandleID string
	// Attempts is the number of polls made.
	Attempts int
}

// Reason returns the failure message, or "" for a successful run.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// ProgressFunc receives progress messages in the order the run produces them.
type ProgressFunc func(ctx context.Context, message string)

// CoordinatorConfig bounds the polling loop.
type CoordinatorConfig struct {
	MaxAttempts  int
	PollInterval time.Duration
}

// Coordinator submits a research job and polls it until it reaches a
// terminal state or the attempt budget runs out.
type Coordinator struct {
	client Client
	cfg    CoordinatorConfig
	logger *slog.Logger

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a Coordinator. Non-positive MaxAttempts falls back
// to DefaultMaxAttempts and a negative PollInterval to zero.
func NewCoordinator(client Client, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "research_coordinator")),
		wait:   sleepContext,
	}
}

// Run drives one job through submit and poll to a terminal Outcome.
// It never returns a non-terminal state. Cancelling ctx ends the run as
// StateFailed with the context error.
func (c *Coordinator) Run(ctx context.Context, role, topic string, progress ProgressFunc) Outcome {
	log := logger.FromContextOrDefault(ctx, c.logger)
	emit := func(msg string) {
		if progress != nil {
			progress(ctx, msg)
		}
	}

	emit("submitting research job to provider")
	handleID, err := c.client.Submit(ctx, role, topic)
	if err != nil {
		if !errors.Is(err, ErrSubmission) {
			err = fmt.Errorf("%w: %w", ErrSubmission, err)
		}
		log.ErrorContext(ctx, "research submission failed", slog.String("error", err.Error()))
		return Outcome{State: StateFailed, Err: err}
	}

	log.InfoContext(ctx, "research job submitted", slog.String("handle_id", handleID))
	emit(fmt.Sprintf("job submitted (id: %s...), polling", ShortID(handleID)))

	out := Outcome{HandleID: handleID}
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt
		last := attempt == c.cfg.MaxAttempts
		elapsed := time.Duration(attempt) * c.cfg.PollInterval

		res, err := c.client.Poll(ctx, handleID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				out.State, out.Err = StateFailed, ctxErr
				return out
			}
			log.WarnContext(ctx, "research poll failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			if last {
				if !errors.Is(err, ErrPollTransient) {
					err = fmt.Errorf("%w: %w", ErrPollTransient, err)
				}
				out.State, out.Err = StateFailed, err
				return out
			}
			if err := c.wait(ctx, c.cfg.PollInterval); err != nil {
				out.State, out.Err = StateFailed, err
				return out
			}
			continue
		}

		log.InfoContext(ctx, "research poll",
			slog.Int("attempt", attempt),
			slog.String("status", string(res.Status)),
			slog.String("raw_status", res.RawStatus),
			slog.Duration("elapsed", elapsed))

		switch res.Status {
		case StatusCompleted:
			if res.Output == "" {
				out.State, out.Err = StateFailed, ErrEmptyResult
				return out
			}
			emit("research complete, processing report")
			out.State, out.Text = StateSucceeded, res.Output
			return out
		case StatusFailed:
			detail := res.ErrorDetail
			if detail == "" {
				detail = "unknown error"
			}
			out.State, out.Err = StateFailed, fmt.Errorf("%w: %s", ErrProviderFailed, detail)
			return out
		case StatusCancelled:
			out.State, out.Err = StateFailed, ErrProviderCancelled
			return out
		}

		emit(fmt.Sprintf("researching... (%s) - status: %s", formatElapsed(elapsed), res.RawStatus))
		if last {
			break
		}
		if err := c.wait(ctx, c.cfg.PollInterval); err != nil {
			out.State, out.Err = StateFailed, err
			return out
		}
	}

	budget := time.Duration(c.cfg.MaxAttempts) * c.cfg.PollInterval
	log.ErrorContext(ctx, "research timed out",
		slog.Int("attempts", c.cfg.MaxAttempts),
		slog.Duration("budget", budget))
	out.State = StateTimedOut
	out.Err = fmt.Errorf("%w after %s (%d attempts)", ErrTimeout, formatElapsed(budget), c.cfg.MaxAttempts)
	return out
}

func formatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
