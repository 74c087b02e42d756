// Package render turns a Markdown research report into a downloadable
// artifact. PDF output uses fpdf with a small line-oriented Markdown subset;
// HTML output uses goldmark with GitHub-flavoured extensions.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-research/internal/config"
)

// Supported formats
const (
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// ErrEmptyReport is returned when there is nothing to render.
var ErrEmptyReport = errors.New("report text is empty")

// Renderer converts report Markdown into file bytes.
type Renderer interface {
	Render(ctx context.Context, subject, markdown string) ([]byte, error)
	// Extension is the file extension without the leading dot.
	Extension() string
	ContentType() string
}

// New returns the renderer selected by cfg.Format.
func New(cfg config.RenderConfig, logger *slog.Logger) (Renderer, error) {
	switch cfg.Format {
	case FormatPDF, "":
		return NewPDFRenderer(cfg.FontPath, logger)
	case FormatHTML:
		return NewHTMLRenderer(), nil
	default:
		return nil, fmt.Errorf("unsupported render format %q", cfg.Format)
	}
}

func reportTitle(subject string) string {
	if subject == "" {
		return "Deep Research Report"
	}
	return subject + " - Deep Research Report"
}
