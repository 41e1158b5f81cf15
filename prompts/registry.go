// Package prompts renders prompt templates and invokes them through an LLM gateway.
package prompts

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

// LocalPrefix marks prompt ids served from the embedded templates.
const LocalPrefix = "local:"

//go:embed templates/*.txt
var templateFS embed.FS

// Registry resolves local prompt ids to template text.
type Registry struct {
	templates map[string]string
}

// NewRegistry loads every embedded template. A template file named
// persona_profile.txt is served as "local:persona_profile".
func NewRegistry() (*Registry, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	r := &Registry{templates: make(map[string]string, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		r.templates[LocalPrefix+name] = string(data)
	}
	return r, nil
}

// IsLocal reports whether promptID names an embedded template.
func IsLocal(promptID string) bool {
	return strings.HasPrefix(promptID, LocalPrefix)
}

// Template returns the raw template text for a local prompt id.
func (r *Registry) Template(promptID string) (string, error) {
	tmpl, ok := r.templates[promptID]
	if !ok {
		return "", fmt.Errorf("unknown local prompt ID: %s", promptID)
	}
	return tmpl, nil
}

// Render resolves promptID and interpolates vars into it.
func (r *Registry) Render(promptID string, vars map[string]any) (string, error) {
	tmpl, err := r.Template(promptID)
	if err != nil {
		return "", err
	}
	return Interpolate(tmpl, vars), nil
}
