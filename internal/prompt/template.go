package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// tagRe matches {{name}}, {{#if name}} and {{/if}}.
var tagRe = regexp.MustCompile(`\{\{(?:#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*|(/if)|([a-zA-Z_][a-zA-Z0-9_]*))\}\}`)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// block is an open {{#if}} section.
type block struct {
	tag    string
	active bool
}

// Render expands a template string with the given variables.
// {{name}} is replaced with its value; a missing variable outside a skipped
// section is an error. {{#if name}}...{{/if}} keeps its body only when name
// is set and non-empty, and may nest. Substituted values are never expanded
// again.
func Render(tmpl string, vars Vars) (string, error) {
	var (
		out     strings.Builder
		stack   []block
		missing []string
	)
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	pos := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if active() {
			out.WriteString(tmpl[pos:m[0]])
		}
		pos = m[1]

		switch {
		case m[2] >= 0:
			name := tmpl[m[2]:m[3]]
			stack = append(stack, block{tag: tmpl[m[0]:m[1]], active: active() && vars[name] != ""})
		case m[4] >= 0:
			if len(stack) == 0 {
				return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
			}
			stack = stack[:len(stack)-1]
		default:
			if !active() {
				continue
			}
			name := tmpl[m[6]:m[7]]
			val, ok := vars[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			out.WriteString(val)
		}
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("unclosed conditional block: %s", stack[len(stack)-1].tag)
	}
	out.WriteString(tmpl[pos:])

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out.String(), nil
}

// Set resolves named templates: overrides first, then built-ins.
type Set struct {
	overrides map[string]string
}

// NewSet returns a Set with the given name -> template text overrides.
func NewSet(overrides map[string]string) *Set {
	s := &Set{overrides: make(map[string]string, len(overrides))}
	for k, v := range overrides {
		s.overrides[k] = v
	}
	return s
}

// LoadSet reads override files. paths maps template name to a file path;
// relative paths resolve against baseDir.
func LoadSet(paths map[string]string, baseDir string) (*Set, error) {
	overrides := make(map[string]string, len(paths))
	for name, path := range paths {
		if _, ok := builtinTemplates[name]; !ok {
			return nil, fmt.Errorf("override for unknown template %q", name)
		}
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %q: %w", name, err)
		}
		overrides[name] = string(data)
	}
	return NewSet(overrides), nil
}

// Template returns the text for name.
func (s *Set) Template(name string) (string, error) {
	if s != nil {
		if t, ok := s.overrides[name]; ok {
			return t, nil
		}
	}
	if t, ok := builtinTemplates[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("template %q not found", name)
}

// Render expands the named template.
func (s *Set) Render(name string, vars Vars) (string, error) {
	tmpl, err := s.Template(name)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// Names lists the built-in template names.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for k := range builtinTemplates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
