// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

const promptFileExt = ".tmpl"

// Prompts is a read-only set of named templates for one prompt version.
// Placeholders use {name} syntax; literal braces are written {{ and }}.
type Prompts struct {
	version   string
	templates map[string]prompts.PromptTemplate
}

// NewPrompts loads every template under <version>/ in templates. When
// required is given, each listed template must exist and render with exactly
// the listed variables.
func NewPrompts(templates fs.FS, version string, required map[string][]string) (*Prompts, error) {
	entries, err := fs.ReadDir(templates, version)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt version %s: %w", version, err)
	}

	p := &Prompts{
		version:   version,
		templates: make(map[string]prompts.PromptTemplate, len(entries)),
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), promptFileExt) {
			continue
		}
		data, err := fs.ReadFile(templates, path.Join(version, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), promptFileExt)
		p.templates[name] = prompts.PromptTemplate{
			Template:       string(data),
			TemplateFormat: prompts.TemplateFormatFString,
		}
	}

	for name, variables := range required {
		tmpl, ok := p.templates[name]
		if !ok {
			return nil, fmt.Errorf("prompt version %s is missing template %s", version, name)
		}
		tmpl.InputVariables = variables
		p.templates[name] = tmpl

		probe := make(map[string]any, len(variables))
		for _, v := range variables {
			probe[v] = ""
		}
		if _, err := tmpl.Format(probe); err != nil {
			return nil, fmt.Errorf("prompt %s/%s does not render with %v: %w", version, name, variables, err)
		}
	}

	return p, nil
}

func (p *Prompts) Version() string {
	return p.version
}

// Format renders the named template with values.
func (p *Prompts) Format(name string, values map[string]any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %s not found in version %s", name, p.version)
	}

	rendered, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt %s/%s: %w", p.version, name, err)
	}
	return strings.TrimSpace(rendered), nil
}
