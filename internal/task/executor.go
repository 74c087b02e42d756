package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/events"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/redact"
	"github.com/phrazzld/scry-research/internal/render"
	"github.com/phrazzld/scry-research/internal/research"
	"github.com/phrazzld/scry-research/internal/store"
)

// DefaultPreviewLength is the number of runes kept in a completed task's preview.
const DefaultPreviewLength = 500

// Progress lines written by the executor.
const (
	ProgressStarting  = "initializing research agent"
	ProgressRendering = "research complete, rendering report"
)

// ErrPersistence wraps failures to render or store a finished report.
var ErrPersistence = errors.New("failed to persist report")

// ResearchRunner runs one research job to a terminal outcome.
type ResearchRunner interface {
	Run(ctx context.Context, role, topic string, progress research.ProgressFunc) research.Outcome
}

// RoleBuilder produces the persona instruction for a report mode.
type RoleBuilder interface {
	RoleFor(mode domain.Mode, subject string) (string, error)
}

// ArtifactStore persists rendered reports.
type ArtifactStore interface {
	StoreArtifact(ctx context.Context, req knowledge.StoreRequest) (*domain.Document, error)
}

// ExecutorDeps are the collaborators of an Executor.
type ExecutorDeps struct {
	Store     store.TaskStore
	Research  ResearchRunner
	Roles     RoleBuilder
	Renderer  render.Renderer
	Artifacts ArtifactStore
	// Emitter receives progress events. When nil, progress is written
	// straight to Store through a ProgressRecorder.
	Emitter       events.EventEmitter
	Logger        *slog.Logger
	PreviewLength int
}

// Executor is the completion pipeline: it drives a report request from
// pending to a terminal task record.
type Executor struct {
	store         store.TaskStore
	research      ResearchRunner
	roles         RoleBuilder
	renderer      render.Renderer
	artifacts     ArtifactStore
	emitter       events.EventEmitter
	logger        *slog.Logger
	previewLength int
	now           func() time.Time
}

// NewExecutor validates deps and creates an Executor.
func NewExecutor(deps ExecutorDeps) (*Executor, error) {
	if deps.Store == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if deps.Research == nil {
		return nil, errors.New("research runner cannot be nil")
	}
	if deps.Roles == nil {
		return nil, errors.New("role builder cannot be nil")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer cannot be nil")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("artifact store cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	log := deps.Logger.With("component", "report_executor")

	emitter := deps.Emitter
	if emitter == nil {
		inMemory := events.NewInMemoryEventEmitter(deps.Logger)
		inMemory.RegisterHandler(NewProgressRecorder(deps.Store, deps.Logger))
		emitter = inMemory
	}
	previewLength := deps.PreviewLength
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}

	return &Executor{
		store:         deps.Store,
		research:      deps.Research,
		roles:         deps.Roles,
		renderer:      deps.Renderer,
		artifacts:     deps.Artifacts,
		emitter:       emitter,
		logger:        log,
		previewLength: previewLength,
		now:           time.Now,
	}, nil
}

// Execute runs the request to completion. Every outcome, including a panic,
// ends in a completed or failed task record; the returned error only reports
// that the record itself could not be written.
func (e *Executor) Execute(ctx context.Context, req ReportRequest) (err error) {
	log := e.logger.With(
		"task_id", req.TaskID,
		"mode", req.Mode,
		"subject", req.Subject,
	)
	ctx = logger.WithLogger(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("report job panicked", "panic", r)
			err = e.fail(ctx, req, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ok, err := e.store.Update(ctx, req.TaskID, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusProcessing),
		Progress: domain.StringPtr(ProgressStarting),
	})
	if err != nil {
		return fmt.Errorf("mark task processing: %w", err)
	}
	if !ok {
		return fmt.Errorf("mark task processing: %w", store.ErrTaskNotFound)
	}

	subject, err := domain.NormalizeSubject(req.Subject, req.Mode)
	if err != nil {
		return e.fail(ctx, req, err.Error())
	}
	role, err := e.roles.RoleFor(req.Mode, subject)
	if err != nil {
		return e.fail(ctx, req, err.Error())
	}

	log.Info("starting research run")
	outcome := e.research.Run(ctx, role, req.Topic, e.progressSink(req))
	if outcome.State != research.StateSucceeded {
		log.Warn("research run did not succeed",
			"state", outcome.State,
			"handle_id", outcome.HandleID,
			"attempts", outcome.Attempts)
		return e.fail(ctx, req, outcome.Reason())
	}

	e.progress(ctx, req, ProgressRendering)
	result, err := e.persist(ctx, req, subject, outcome.Text)
	if err != nil {
		log.Error("failed to persist report", "error", redact.Error(err))
		return e.fail(ctx, req, err.Error())
	}

	return e.finish(ctx, req, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusCompleted),
		Progress: domain.StringPtr("report generated"),
		Result:   result,
	})
}

// persist renders the report, stores it and builds the task result.
func (e *Executor) persist(ctx context.Context, req ReportRequest, subject, text string) (*domain.ReportResult, error) {
	data, err := e.renderer.Render(ctx, subject, text)
	if err != nil {
		return nil, fmt.Errorf("%w: render: %w", ErrPersistence, err)
	}

	doc, err := e.artifacts.StoreArtifact(ctx, knowledge.StoreRequest{
		Subject:  subject,
		Data:     data,
		Filename: ReportFilename(subject, e.renderer.Extension(), e.now()),
		DocType:  domain.DocumentTypeReport,
		OwnerID:  req.OwnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: store: %w", ErrPersistence, err)
	}

	return &domain.ReportResult{
		Preview: Preview(text, e.previewLength),
		Length:  utf8.RuneCountInString(text),
		File:    doc,
	}, nil
}

func (e *Executor) progressSink(req ReportRequest) research.ProgressFunc {
	return func(ctx context.Context, message string) {
		e.progress(ctx, req, message)
	}
}

func (e *Executor) progress(ctx context.Context, req ReportRequest, message string) {
	if err := e.emitter.EmitEvent(ctx, events.NewProgressEvent(req.TaskID, message)); err != nil {
		logger.FromContextOrDefault(ctx, e.logger).Warn("failed to record progress",
			"progress", message,
			"error", err)
	}
}

func (e *Executor) fail(ctx context.Context, req ReportRequest, reason string) error {
	reason = redact.String(reason)
	if reason == "" {
		reason = "report generation failed"
	}
	return e.finish(ctx, req, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusFailed),
		Progress: domain.StringPtr("report generation failed"),
		Error:    domain.StringPtr(reason),
	})
}

// finish writes the terminal record even when ctx has been cancelled.
func (e *Executor) finish(ctx context.Context, req ReportRequest, update domain.TaskUpdate) error {
	log := logger.FromContextOrDefault(ctx, e.logger)
	ok, err := e.store.Update(context.WithoutCancel(ctx), req.TaskID, update)
	if err != nil {
		log.Error("failed to write final task state", "status", *update.Status, "error", err)
		return fmt.Errorf("write final task state: %w", err)
	}
	if !ok {
		log.Warn("task disappeared before final write", "status", *update.Status)
		return fmt.Errorf("write final task state: %w", store.ErrTaskNotFound)
	}
	log.Info("task finished", "status", *update.Status)
	return nil
}

// ReportFilename names a rendered report, e.g.
// UltraDeepReport_AAPL_20250102_150405.pdf. The timestamp is UTC.
func ReportFilename(subject, ext string, at time.Time) string {
	return fmt.Sprintf("UltraDeepReport_%s_%s.%s",
		domain.SafeFilename(subject), at.UTC().Format("20060102_150405"), ext)
}

// Preview returns the first n runes of text, with "..." appended when
// text was truncated.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
