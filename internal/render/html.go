package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
<h1 class="report-title">{{.Title}}</h1>
{{.Body}}
</article>
</body>
</html>
`))

// HTMLRenderer writes a standalone HTML page. Raw HTML in the report is
// dropped.
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer creates an HTMLRenderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// Extension implements Renderer.
func (r *HTMLRenderer) Extension() string { return FormatHTML }

// ContentType implements Renderer.
func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

// Render implements Renderer.
func (r *HTMLRenderer) Render(ctx context.Context, subject, markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrEmptyReport
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: reportTitle(subject),
		Body:  template.HTML(body.String()), //nolint:gosec // goldmark escapes raw HTML by default
	})
	if err != nil {
		return nil, fmt.Errorf("render html page: %w", err)
	}
	return out.Bytes(), nil
}
