// Package prompts holds the report stage prompt templates.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

const researchFile = "research.json"

// systemKey names the entry used as the model's system instruction rather than a stage template.
const systemKey = "system"

//go:embed research.json
var files embed.FS

// Fields are the named values substituted into a stage template.
type Fields map[string]string

// Set is a parsed prompt file: a system instruction plus one template per stage.
type Set struct {
	system string
	stages map[string]*template.Template
}

var loadDefault = sync.OnceValues(func() (*Set, error) {
	data, err := files.ReadFile(researchFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", researchFile, err)
	}
	return Parse(data)
})

// Default returns the embedded research prompt set. It is parsed once.
func Default() (*Set, error) {
	return loadDefault()
}

// MustDefault returns the embedded prompt set and panics if it does not parse.
// The set is compiled into the binary, so a failure is a build defect.
func MustDefault() *Set {
	return Must(Default())
}

// Must panics when err is non-nil and returns set otherwise.
func Must(set *Set, err error) *Set {
	if err != nil {
		panic(fmt.Sprintf("failed to load prompts: %v", err))
	}
	return set
}

// Parse builds a Set from a JSON object mapping stage names to templates.
// Templates reference fields as {{.Name}}; referencing a field that is not supplied
// at render time is an error.
func Parse(data []byte) (*Set, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file: %w", err)
	}

	set := &Set{system: strings.TrimSpace(raw[systemKey]), stages: make(map[string]*template.Template, len(raw))}
	for name, text := range raw {
		if name == systemKey {
			continue
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		set.stages[name] = tmpl
	}
	return set, nil
}

// System returns the system instruction, or "" when the file defines none.
func (s *Set) System() string {
	return s.system
}

// Stages lists the stage names that have a template, sorted.
func (s *Set) Stages() []string {
	names := make([]string, 0, len(s.stages))
	for name := range s.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the template for stage with fields.
func (s *Set) Render(stage string, fields Fields) (string, error) {
	tmpl, ok := s.stages[stage]
	if !ok {
		return "", fmt.Errorf("no prompt for stage %q", stage)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, map[string]string(fields)); err != nil {
		return "", fmt.Errorf("prompt %q: %w", stage, err)
	}
	return b.String(), nil
}
