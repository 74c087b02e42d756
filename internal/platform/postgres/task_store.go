package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

const taskColumns = `id, subject, mode, status, progress, result, error_message, created_at, updated_at`

// PostgresTaskStore implements store.TaskStore with one row per task.
// Updates lock the row, apply domain.Task.Apply and write it back inside a
// single transaction so concurrent writers never clobber each other.
type PostgresTaskStore struct {
	db        *sql.DB
	retention store.RetentionPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db *sql.DB, retention store.RetentionPolicy, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:        db,
		retention: retention.Normalize(),
		logger:    logger.With(slog.String("component", "task_store")),
		now:       time.Now,
	}
}

// Create implements store.TaskStore.
func (s *PostgresTaskStore) Create(ctx context.Context, subject string, mode domain.Mode) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewTask(subject, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO report_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULL, '', $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Subject,
		task.Mode,
		task.Status,
		task.Progress,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return task, nil
}

// Update implements store.TaskStore.
func (s *PostgresTaskStore) Update(ctx context.Context, id uuid.UUID, update domain.TaskUpdate) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	found := false
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM report_tasks WHERE id = $1 FOR UPDATE`, id)
		task, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return MapError(err)
		}
		found = true

		if err := task.Apply(update, s.now()); err != nil {
			return err
		}

		result, err := encodeResult(task.Result)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE report_tasks
			SET status = $1, progress = $2, result = $3, error_message = $4, updated_at = $5
			WHERE id = $6
		`, task.Status, task.Progress, result, task.Error, task.UpdatedAt, id)
		if err != nil {
			return MapError(err)
		}

		return s.applyRetention(ctx, tx)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTaskTerminal) && !errors.Is(err, domain.ErrInvalidTaskUpdate) {
			log.Error("failed to update task",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
		}
		return false, err
	}

	return found, nil
}

// applyRetention deletes every row outside the newest Keep once the table
// holds more than Ceiling rows.
func (s *PostgresTaskStore) applyRetention(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_tasks`).Scan(&count); err != nil {
		return MapError(err)
	}
	if count <= s.retention.Ceiling {
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM report_tasks
		WHERE id NOT IN (
			SELECT id FROM report_tasks ORDER BY created_at DESC LIMIT $1
		)
	`, s.retention.Keep)
	if err != nil {
		return MapError(err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.FromContextOrDefault(ctx, s.logger).Info("evicted old tasks",
			slog.Int64("evicted", n),
			slog.Int("remaining", s.retention.Keep))
	}
	return nil
}

// Get implements store.TaskStore.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM report_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return task, nil
}

// ListByStatus implements store.TaskStore.
func (s *PostgresTaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Time,
) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM report_tasks WHERE status = $1`
	args := []any{status}
	if !olderThan.IsZero() {
		query += ` AND updated_at < $2`
		args = append(args, olderThan.UTC())
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task   domain.Task
		result []byte
	)
	err := row.Scan(
		&task.ID,
		&task.Subject,
		&task.Mode,
		&task.Status,
		&task.Progress,
		&result,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		task.Result = &domain.ReportResult{}
		if err := json.Unmarshal(result, task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func encodeResult(r *domain.ReportResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task result: %w", err)
	}
	return data, nil
}
