package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a report task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Mode identifies which report variant was requested.
type Mode string

// Supported report modes
const (
	ModeMacro    Mode = "MACRO"
	ModeStrategy Mode = "STRATEGY"
	ModeStock    Mode = "STOCK"
)

// InitialTaskProgress is the progress line written when a task is created.
const InitialTaskProgress = "initializing task"

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrInvalidMode       = errors.New("invalid report mode")
	ErrSubjectRequired   = errors.New("subject is required for STOCK mode")
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrTaskTerminal is returned when an update targets a task that
	// already reached completed or failed.
	ErrTaskTerminal = errors.New("task already reached a terminal status")

	// ErrInvalidTaskUpdate is returned when an update would break the
	// result/error invariants or move the status backwards.
	ErrInvalidTaskUpdate = errors.New("invalid task update")
)

// ReportResult is the payload stored on a completed task.
type ReportResult struct {
	Preview string    `json:"report_text_preview"`
	Length  int       `json:"report_length"`
	File    *Document `json:"file_record"`
}

// Task represents one tracked asynchronous report-generation job.
type Task struct {
	ID        uuid.UUID     `json:"id"`
	Subject   string        `json:"subject"`
	Mode      Mode          `json:"mode"`
	Status    TaskStatus    `json:"status"`
	Progress  string        `json:"progress"`
	Result    *ReportResult `json:"result"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TaskUpdate carries the fields to merge into an existing task.
// Nil fields are left untouched.
type TaskUpdate struct {
	Status   *TaskStatus
	Progress *string
	Result   *ReportResult
	Error    *string
}

// ParseMode converts user input into a Mode, ignoring case and surrounding space.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeMacro, ModeStrategy, ModeStock:
		return true
	default:
		return false
	}
}

// NormalizeSubject upper-cases the subject and falls back to the mode name
// when a non-stock report has no subject.
func NormalizeSubject(subject string, mode Mode) (string, error) {
	if !mode.Valid() {
		return "", ErrInvalidMode
	}
	subject = strings.ToUpper(strings.TrimSpace(subject))
	if subject == "" {
		if mode == ModeStock {
			return "", ErrSubjectRequired
		}
		subject = string(mode)
	}
	return subject, nil
}

// NewTask creates a pending Task for the given subject and mode.
func NewTask(subject string, mode Mode) (*Task, error) {
	subject, err := NormalizeSubject(subject, mode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Subject:   subject,
		Mode:      mode,
		Status:    TaskStatusPending,
		Progress:  InitialTaskProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks the Task against its status invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if !t.Mode.Valid() {
		return ErrInvalidMode
	}
	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}
	if (t.Status == TaskStatusCompleted) != (t.Result != nil) {
		return fmt.Errorf("%w: result must be set exactly when completed", ErrInvalidTaskUpdate)
	}
	if (t.Status == TaskStatusFailed) != (t.Error != "") {
		return fmt.Errorf("%w: error must be set exactly when failed", ErrInvalidTaskUpdate)
	}
	return nil
}

// Apply merges u into t and refreshes UpdatedAt. The task is left unchanged
// when the update would violate a status invariant.
func (t *Task) Apply(u TaskUpdate, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, t.ID, t.Status)
	}

	next := *t
	if u.Status != nil {
		if !t.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTaskUpdate, t.Status, *u.Status)
		}
		next.Status = *u.Status
	}
	if u.Progress != nil && *u.Progress != "" {
		next.Progress = *u.Progress
	}
	if u.Result != nil {
		next.Result = u.Result
	}
	if u.Error != nil && *u.Error != "" {
		next.Error = *u.Error
	}

	if err := next.Validate(); err != nil {
		return err
	}

	// updated_at never moves backwards for a given task
	now = now.UTC()
	if now.Before(t.UpdatedAt) {
		now = t.UpdatedAt
	}
	next.UpdatedAt = now

	*t = next
	return nil
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further mutation may follow s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether a task may move from s to next.
// Staying in processing is allowed so progress can be rewritten.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusPending || next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusProcessing || next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// StatusPtr returns a pointer to s, for building TaskUpdate values.
func StatusPtr(s TaskStatus) *TaskStatus {
	return &s
}

// StringPtr returns a pointer to s, for building TaskUpdate values.
func StringPtr(s string) *string {
	return &s
}
