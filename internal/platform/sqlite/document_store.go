package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/platform/logger"
	"github.com/phrazzld/scry-research/internal/store"
)

const documentColumns = `id, owner_id, subject, filename, file_path, doc_type, file_size, created_at`

// DocumentStore implements store.DocumentStore on SQLite.
// created_at is stored as Unix nanoseconds so ordering is numeric.
type DocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// Ensure DocumentStore implements store.DocumentStore interface
var _ store.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore on an opened database.
func NewDocumentStore(db store.DBTX, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		db:     db,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

// Create implements store.DocumentStore.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return errors.Join(store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Subject, doc.Filename, doc.FilePath, string(doc.Type), doc.FileSize,
		doc.CreatedAt.UTC().UnixNano())
	if err != nil {
		// modernc reports constraint failures only through the message text
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %v", store.ErrDocumentExists, err)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to insert document",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID implements store.DocumentStore.
func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListBySubject implements store.DocumentStore.
func (s *DocumentStore) ListBySubject(ctx context.Context, subject string) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE subject = ? ORDER BY created_at DESC, id DESC`, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete implements store.DocumentStore.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrDocumentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc     domain.Document
		docType string
		created int64
	)
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Subject, &doc.Filename, &doc.FilePath, &docType, &doc.FileSize, &created)
	if err != nil {
		return nil, err
	}
	doc.Type = domain.DocumentType(docType)
	doc.CreatedAt = time.Unix(0, created).UTC()
	return &doc, nil
}
