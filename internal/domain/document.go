package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// DocumentType classifies a stored document.
type DocumentType string

// Known document types
const (
	DocumentTypeUpload DocumentType = "user_upload"
	DocumentTypeReport DocumentType = "ultra_deep_report"
)

// Common validation errors for Document
var (
	ErrEmptyDocumentID       = errors.New("document ID cannot be empty")
	ErrEmptyDocumentFilename = errors.New("document filename cannot be empty")
	ErrEmptyDocumentSubject  = errors.New("document subject cannot be empty")
)

// Document is the metadata record of a stored file, either a generated
// report or a user upload, grouped by subject.
type Document struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Subject   string       `json:"subject"`
	Filename  string       `json:"filename"`
	FilePath  string       `json:"file_path,omitempty"`
	Type      DocumentType `json:"doc_type"`
	FileSize  int64        `json:"file_size"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks the Document has the fields every store requires.
func (d *Document) Validate() error {
	if d.ID == "" {
		return ErrEmptyDocumentID
	}
	if d.OwnerID == "" {
		return ErrOwnerRequired
	}
	if d.Subject == "" {
		return ErrEmptyDocumentSubject
	}
	if d.Filename == "" {
		return ErrEmptyDocumentFilename
	}
	return nil
}

// SafeFilename keeps letters, digits, space, '.', '_' and '-' and drops
// everything else. The result is trimmed of surrounding spaces.
func SafeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
