// Package templates provides embedded config templates for upkeep init.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"
)

//go:embed *.yaml
var templatesFS embed.FS

// Template represents a config template with metadata.
type Template struct {
	Name        string
	Description string
	Content     []byte
}

// Values fill the placeholders of a template.
type Values struct {
	InstallDir string
	BinaryName string
	FeedURL    string
}

// Available templates with their descriptions.
var templateDescriptions = map[string]string{
	"minimal": "Feed-driven updates with default policy",
	"signed":  "Signed releases, approval for beta, no nightly builds",
	"s3":      "Artifacts in S3 or a compatible object store",
	"rego":    "Policy decided by an OPA Rego module",
}

// List returns all available template names sorted alphabetically.
func List() []string {
	entries, err := templatesFS.ReadDir(".")
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	filename := name + ".yaml"
	content, err := templatesFS.ReadFile(filename)
	if err != nil {
		if pathErr, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("template '%s' not found: %w", name, pathErr)
		}
		return nil, fmt.Errorf("failed to read template '%s': %w", name, err)
	}

	return &Template{
		Name:        name,
		Description: templateDescriptions[name],
		Content:     content,
	}, nil
}

// GetDescription returns the description for a template.
func GetDescription(name string) string {
	if desc, ok := templateDescriptions[name]; ok {
		return desc
	}
	return "Custom template"
}

// Render returns the named template with its placeholders filled in.
func Render(name string, v Values) (*Template, error) {
	tmpl, err := Get(name)
	if err != nil {
		return nil, err
	}

	parsed, err := template.New(name).Option("missingkey=error").Parse(string(tmpl.Content))
	if err != nil {
		return nil, fmt.Errorf("invalid template '%s': %w", name, err)
	}

	if v.FeedURL == "" {
		v.FeedURL = "https://releases.example.com/" + v.BinaryName
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("failed to render template '%s': %w", name, err)
	}
	tmpl.Content = buf.Bytes()
	return tmpl, nil
}
