package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_Vars(t *testing.T) {
	result, err := Render("Improve {{repo}} for {{owner}}.", Vars{"repo": "tool", "owner": "octocat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Improve tool for octocat." {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVars(t *testing.T) {
	_, err := Render("{{repo}} {{title}} {{source}}", Vars{"repo": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "title") || !strings.Contains(err.Error(), "source") {
		t.Errorf("error should name every missing var, got: %v", err)
	}
}

func TestRender_Conditionals(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"present", "A{{#if note}}[{{note}}]{{/if}}B", Vars{"note": "n"}, "A[n]B"},
		{"absent", "A{{#if note}}[{{note}}]{{/if}}B", Vars{}, "AB"},
		{"empty", "A{{#if note}}[{{note}}]{{/if}}B", Vars{"note": ""}, "AB"},
		{"nested both", "{{#if a}}x{{#if b}}y{{/if}}z{{/if}}", Vars{"a": "1", "b": "1"}, "xyz"},
		{"nested outer absent", "S{{#if a}}x{{#if b}}y{{/if}}z{{/if}}E", Vars{"b": "1"}, "SE"},
		{"trailing space in tag", "{{#if x }}on{{/if}}", Vars{"x": "1"}, "on"},
		{"value looks like tag", "{{#if v}}{{v}}{{/if}}", Vars{"v": "{{/if}}"}, "{{/if}}"},
		{"no re-expansion", "{{a}} {{b}}", Vars{"a": "{{b}}", "b": "hi"}, "{{b}} hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.vars)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_UnbalancedConditionals(t *testing.T) {
	if _, err := Render("{{#if x}}open", Vars{"x": "1"}); err == nil || !strings.Contains(err.Error(), "unclosed") {
		t.Errorf("unclosed block error = %v", err)
	}
	if _, err := Render("close{{/if}}", Vars{}); err == nil || !strings.Contains(err.Error(), "dangling") {
		t.Errorf("dangling close error = %v", err)
	}
}

func TestBuiltinTemplatesRender(t *testing.T) {
	full := Vars{
		"title":       "Markdown linter",
		"description": "Lint docs in CI",
		"source":      "hacker news",
		"related":     "md-tools",
		"repo":        "md-tools",
		"activity":    "agent: which style guide?",
		"session":     "123",
		"idle":        "12m",
		"state":       "IN_PROGRESS",
		"action":      "Create",
	}
	s := NewSet(nil)
	for _, name := range Names() {
		out, err := s.Render(name, full)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if strings.Contains(out, "{{") {
			t.Errorf("%s: unexpanded tag in %q", name, out)
		}
	}
}

func TestCreateTemplate_OptionalSections(t *testing.T) {
	out, err := NewSet(nil).Render(CreateRepo, Vars{"title": "CLI timer"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "overlap") || strings.Contains(out, "Discovered") {
		t.Errorf("optional sections rendered without their vars: %q", out)
	}
	if !strings.HasPrefix(out, "Build a new project in this repository: CLI timer") {
		t.Errorf("unexpected prefix: %q", out)
	}
}

func TestSet_Overrides(t *testing.T) {
	s := NewSet(map[string]string{NudgeFallback: "keep going, {{repo}}"})
	out, err := s.Render(NudgeFallback, Vars{"repo": "x"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "keep going, x" {
		t.Errorf("override not used: %q", out)
	}
	if _, err := s.Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "proceed.md"), []byte("Continue now."), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSet(map[string]string{Proceed: "proceed.md"}, dir)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	out, _ := s.Render(Proceed, nil)
	if out != "Continue now." {
		t.Errorf("got %q", out)
	}

	if _, err := LoadSet(map[string]string{"bogus": "proceed.md"}, dir); err == nil {
		t.Error("expected error for unknown template name")
	}
	if _, err := LoadSet(map[string]string{Proceed: "missing.md"}, dir); err == nil {
		t.Error("expected error for missing file")
	}
}
