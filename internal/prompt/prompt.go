package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/phrazzld/scry-research/internal/domain"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// OutputRequirements is appended to every research request.
const OutputRequirements = `General output requirements:
1. Use professional Markdown formatting with a clear, readable document structure.
2. Make the report detailed and data-rich, showing the full depth of the research.
3. Cite reliable sources and list the references at the end of the report.`

const noInstructions = "(no specific instructions)"

// ErrUnknownTemplate is returned when no persona exists for a mode.
var ErrUnknownTemplate = errors.New("no persona template for mode")

type roleData struct {
	Subject string
}

// Builder renders persona roles from templates.
type Builder struct {
	templates *template.Template
}

// NewBuilder parses the embedded persona templates. When dir is not empty,
// any <mode>.tmpl file found there replaces the embedded one.
func NewBuilder(dir string) (*Builder, error) {
	tmpl, err := template.New("persona").Option("missingkey=error").ParseFS(embedded, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}

	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
		if err != nil {
			return nil, fmt.Errorf("list templates in %s: %w", dir, err)
		}
		for _, path := range matches {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", path, err)
			}
			if _, err := tmpl.New(filepath.Base(path)).Parse(string(content)); err != nil {
				return nil, fmt.Errorf("parse template %s: %w", path, err)
			}
		}
	}

	return &Builder{templates: tmpl}, nil
}

// RoleFor renders the persona for mode. STOCK requires a subject.
func (b *Builder) RoleFor(mode domain.Mode, subject string) (string, error) {
	if !mode.Valid() {
		return "", domain.ErrInvalidMode
	}
	subject = strings.TrimSpace(subject)
	if mode == domain.ModeStock && subject == "" {
		return "", domain.ErrSubjectRequired
	}

	name := strings.ToLower(string(mode)) + ".tmpl"
	if b.templates.Lookup(name) == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, mode)
	}

	var buf bytes.Buffer
	if err := b.templates.ExecuteTemplate(&buf, name, roleData{Subject: subject}); err != nil {
		return "", fmt.Errorf("render %s persona: %w", mode, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Request wraps the user's topic with the shared output requirements.
func Request(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = noInstructions
	}

	var b strings.Builder
	b.WriteString("User research request:\n")
	b.WriteString(topic)
	b.WriteString("\n\n")
	b.WriteString(OutputRequirements)
	b.WriteString("\n\nBegin the research now and write the complete report.")
	return b.String()
}

// Compose joins a persona role and a user topic into a single provider input.
func Compose(role, topic string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return Request(topic)
	}
	return role + "\n\n" + Request(topic)
}
