package registry

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
)

func names(models []Model) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Name
	}
	return out
}

func TestChainOrdering(t *testing.T) {
	r, err := New([]Model{
		{Name: "small", SizeB: 8, Provider: provider.KindGroq, Working: true},
		{Name: "big", SizeB: 405, Provider: provider.KindNVIDIA, Working: true},
		{Name: "boosted", SizeB: 20, Priority: 5, Provider: provider.KindGroq, Working: true},
		{Name: "mid-a", SizeB: 70, Provider: provider.KindGroq, Working: true},
		{Name: "mid-b", SizeB: 70, Provider: provider.KindCerebras, Working: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"boosted", "big", "mid-a", "mid-b", "small"}
	if diff := cmp.Diff(want, names(r.Chain())); diff != "" {
		t.Errorf("Chain() mismatch (-want +got):\n%s", diff)
	}

	// Chain must not reorder the registry itself.
	wantDecl := []string{"small", "big", "boosted", "mid-a", "mid-b"}
	if diff := cmp.Diff(wantDecl, names(r.Models())); diff != "" {
		t.Errorf("Models() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Model{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
	if _, err := New([]Model{{Name: ""}}); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestWithOverrides(t *testing.T) {
	base := Default()
	off := false
	prio := 50
	r, err := base.WithOverrides([]Override{
		{Name: "gemini-2.5-flash", Priority: &prio},
		{Name: "qwen-3-coder-480b", Working: &off},
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}

	if got := r.Chain()[0].Name; got != "gemini-2.5-flash" {
		t.Errorf("Chain()[0] = %q, want gemini-2.5-flash", got)
	}
	m, _ := r.Lookup("qwen-3-coder-480b")
	if m.Working {
		t.Error("qwen-3-coder-480b still working after override")
	}

	orig, _ := base.Lookup("qwen-3-coder-480b")
	if !orig.Working {
		t.Error("base registry was mutated")
	}

	if _, err := base.WithOverrides([]Override{{Name: "nope"}}); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestDefaultCatalog(t *testing.T) {
	r := Default()
	if r.Len() < 40 {
		t.Errorf("Len() = %d, want at least 40", r.Len())
	}
	seen := make(map[provider.Kind]bool)
	for _, m := range r.Models() {
		if m.ID == "" {
			t.Errorf("%s: empty API id", m.Name)
		}
		if m.MaxTokens <= 0 {
			t.Errorf("%s: MaxTokens = %d", m.Name, m.MaxTokens)
		}
		seen[m.Provider] = true
	}
	for _, k := range provider.Kinds {
		if !seen[k] {
			t.Errorf("no catalog entry for provider %s", k)
		}
	}
}

func TestTimeoutForSize(t *testing.T) {
	tests := []struct {
		size float64
		want time.Duration
	}{
		{1000, 20 * time.Minute},
		{400, 20 * time.Minute},
		{399, 15 * time.Minute},
		{200, 15 * time.Minute},
		{120, 10 * time.Minute},
		{70, 5 * time.Minute},
		{69.9, 3 * time.Minute},
		{30, 3 * time.Minute},
		{8, 90 * time.Second},
	}
	for _, tt := range tests {
		if got := TimeoutForSize(tt.size); got != tt.want {
			t.Errorf("TimeoutForSize(%v) = %v, want %v", tt.size, got, tt.want)
		}
	}
}
