// Package render produces configuration files from templates.
//
// Templates use text/template syntax over the resolved settings, for example
// {{.project_name}}. Built-in templates can be replaced by placing a file of
// the same name in a template directory.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// Built-in template names.
const (
	NginxSite           = "nginx-site.conf"
	NginxMedia          = "nginx-media.conf"
	SupervisorAppServer = "supervisor-appserver.conf"
)

//go:embed templates/*
var builtin embed.FS

// Renderer renders named templates.
type Renderer struct {
	// Dir overrides built-in templates when it contains a file of the same
	// name. Empty means built-ins only.
	Dir string
}

// New creates a renderer. A leading "~/" in dir is expanded.
func New(dir string) (*Renderer, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return &Renderer{Dir: dir}, nil
}

// Source returns the template text for name and where it came from: the
// override path, or "builtin".
func (r *Renderer) Source(name string) (text, origin string, err error) {
	if r.Dir != "" {
		path := filepath.Join(r.Dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), path, nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("reading template %s: %w", path, err)
		}
	}

	data, err := builtin.ReadFile("templates/" + name)
	if err != nil {
		return "", "", fmt.Errorf("template %q not found", name)
	}
	return string(data), "builtin", nil
}

// Render executes template name with data. Referencing a key missing from
// data is an error.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	text, origin, err := r.Source(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s (%s): %w", name, origin, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Builtins returns the names of the built-in templates, sorted.
func Builtins() []string {
	entries, err := fs.ReadDir(builtin, "templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
