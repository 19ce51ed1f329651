// Package prompts renders named provider prompts from templates.
//
// Default templates are embedded in the binary; a directory of *.tmpl files
// can override or extend them. Rendering with an unknown template or a
// missing field is an error, never silent truncation, because a malformed
// prompt produces a plausible-looking but wrong completion.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// ErrUnknownTemplate is returned when rendering a template that was never
// registered.
var ErrUnknownTemplate = errors.New("unknown template")

// Renderer holds parsed templates keyed by file name.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded default templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	if err := r.loadFS(defaultTemplates, "templates"); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRendererWithOverrides parses the embedded defaults, then *.tmpl files
// from dir. A file whose name matches an embedded template replaces it.
func NewRendererWithOverrides(dir string) (*Renderer, error) {
	r, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		name := filepath.Base(path)
		tmpl, err := parseFile(name, path)
		if err != nil {
			return nil, err
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("failed to read templates: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		content, err := fs.ReadFile(fsys, root+"/"+name)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := parse(name, string(content))
		if err != nil {
			return err
		}
		r.templates[name] = tmpl
	}
	return nil
}

func parseFile(name, path string) (*template.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return parse(name, string(content))
}

func parse(name, content string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Render executes the named template with fields.
func (r *Renderer) Render(name string, fields map[string]any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, fields); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return b.String(), nil
}

// Names lists the registered template names.
func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
