package store

import (
	"context"

	"github.com/phrazzld/scry-research/internal/domain"
)

// DocumentStore defines the interface for document metadata persistence.
// File contents live elsewhere; only the metadata record is stored here.
type DocumentStore interface {
	// Create saves a new document record.
	// Returns ErrInvalidEntity when the document fails validation.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document by id.
	// Returns ErrDocumentNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// ListBySubject returns the documents for a subject, newest first.
	ListBySubject(ctx context.Context, subject string) ([]*domain.Document, error)

	// Delete removes a document record.
	// Returns ErrDocumentNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
