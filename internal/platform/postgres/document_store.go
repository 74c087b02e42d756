package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

const documentColumns = `id, owner_id, subject, filename, file_path, doc_type, file_size, created_at`

// PostgresDocumentStore implements store.DocumentStore.
type PostgresDocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// Ensure PostgresDocumentStore implements store.DocumentStore interface
var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// NewPostgresDocumentStore creates a new PostgresDocumentStore.
func NewPostgresDocumentStore(db store.DBTX, logger *slog.Logger) *PostgresDocumentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDocumentStore{
		db:     db,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

// Create implements store.DocumentStore.
func (s *PostgresDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := doc.Validate(); err != nil {
		log.Warn("document validation failed during create",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID))
		return errors.Join(store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.ID, doc.OwnerID, doc.Subject, doc.Filename, doc.FilePath, doc.Type, doc.FileSize, doc.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return MapUniqueViolation(err, "document", "", store.ErrDocumentExists)
		}
		log.Error("failed to insert document",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.DocumentStore.
func (s *PostgresDocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return doc, nil
}

// ListBySubject implements store.DocumentStore.
func (s *PostgresDocumentStore) ListBySubject(ctx context.Context, subject string) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE subject = $1 ORDER BY created_at DESC`, subject)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, MapError(err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return docs, nil
}

// Delete implements store.DocumentStore.
func (s *PostgresDocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(res, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrDocumentNotFound
		}
		return err
	}
	return nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Subject,
		&doc.Filename,
		&doc.FilePath,
		&doc.Type,
		&doc.FileSize,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}
