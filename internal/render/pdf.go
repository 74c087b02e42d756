package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	utf8Family = "report"
	coreFamily = "Helvetica"

	pageMargin = 20.0
	bodySize   = 10.0
	bodyLine   = 5.5
)

// PDFRenderer writes A4 PDFs. Without a UTF-8 font only characters in
// code page 1252 survive.
type PDFRenderer struct {
	font   []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewPDFRenderer loads the optional TrueType font at fontPath.
func NewPDFRenderer(fontPath string, logger *slog.Logger) (*PDFRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &PDFRenderer{logger: logger, now: time.Now}
	if fontPath != "" {
		data, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", fontPath, err)
		}
		r.font = data
	} else {
		logger.Warn("no UTF-8 font configured, PDF reports are limited to Latin-1 text")
	}
	return r, nil
}

// Extension implements Renderer.
func (r *PDFRenderer) Extension() string { return FormatPDF }

// ContentType implements Renderer.
func (r *PDFRenderer) ContentType() string { return "application/pdf" }

// Render implements Renderer.
func (r *PDFRenderer) Render(ctx context.Context, subject, markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrEmptyReport
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(reportTitle(subject), true)
	pdf.SetCreator("scry-research", true)
	pdf.SetCreationDate(r.now())

	family := coreFamily
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if r.font != nil {
		pdf.AddUTF8FontFromBytes(utf8Family, "", r.font)
		pdf.AddUTF8FontFromBytes(utf8Family, "B", r.font)
		family = utf8Family
		tr = func(s string) string { return s }
	}

	pdf.AddPage()
	pdf.SetFont(family, "B", 18)
	pdf.MultiCell(0, 9, tr(reportTitle(subject)), "", "L", false)
	pdf.Ln(4)

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			pdf.Ln(2)
			continue
		}

		text := strings.NewReplacer("**", "", "__", "").Replace(line)
		switch {
		case strings.HasPrefix(line, "# "):
			pdf.SetFont(family, "B", 18)
			pdf.MultiCell(0, 9, tr(text[2:]), "", "L", false)
		case strings.HasPrefix(line, "## "):
			pdf.Ln(2)
			pdf.SetFont(family, "B", 14)
			pdf.MultiCell(0, 7, tr(text[3:]), "", "L", false)
		case strings.HasPrefix(line, "### "):
			pdf.SetFont(family, "B", bodySize+1)
			pdf.MultiCell(0, bodyLine+0.5, tr(text[4:]), "", "L", false)
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			pdf.SetFont(family, "", bodySize)
			pdf.MultiCell(0, bodyLine, tr("• "+text[2:]), "", "L", false)
		default:
			pdf.SetFont(family, "", bodySize)
			pdf.MultiCell(0, bodyLine, tr(text), "", "L", false)
		}

		if pdf.Err() {
			break
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
