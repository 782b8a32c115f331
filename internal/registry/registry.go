// Package registry holds the immutable model catalog the dispatch client walks.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
)

// Model is one catalog entry. Values are copied out of the Registry; nothing
// mutates a Model after construction.
type Model struct {
	Name             string        `json:"name"`
	SizeB            float64       `json:"size_b"`
	Provider         provider.Kind `json:"provider"`
	ID               string        `json:"id"`
	MaxTokens        int           `json:"max_tokens"`
	StructuredOutput bool          `json:"structured_output"`
	Priority         int           `json:"priority"`
	Working          bool          `json:"working"`
}

// Timeout is the per-call deadline derived from model size.
func (m Model) Timeout() time.Duration {
	return TimeoutForSize(m.SizeB)
}

// TimeoutForSize maps a parameter count in billions to a call deadline.
func TimeoutForSize(sizeB float64) time.Duration {
	switch {
	case sizeB >= 400:
		return 20 * time.Minute
	case sizeB >= 200:
		return 15 * time.Minute
	case sizeB >= 100:
		return 10 * time.Minute
	case sizeB >= 70:
		return 5 * time.Minute
	case sizeB >= 30:
		return 3 * time.Minute
	default:
		return 90 * time.Second
	}
}

// Override adjusts a catalog entry by name.
type Override struct {
	Name     string
	Working  *bool
	Priority *int
}

// Registry is a flat list of models in declaration order.
type Registry struct {
	models []Model
	byName map[string]int
}

// New builds a registry from models in declaration order. Names must be
// unique.
func New(models []Model) (*Registry, error) {
	r := &Registry{
		models: make([]Model, len(models)),
		byName: make(map[string]int, len(models)),
	}
	copy(r.models, models)
	for i, m := range r.models {
		if m.Name == "" {
			return nil, fmt.Errorf("model %d: name is required", i)
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model name %q", m.Name)
		}
		r.byName[m.Name] = i
	}
	return r, nil
}

// Default returns the built-in catalog.
func Default() *Registry {
	r, err := New(DefaultModels())
	if err != nil {
		panic(err)
	}
	return r
}

// WithOverrides returns a new Registry with overrides applied. The receiver is
// unchanged. Unknown names are returned as an error.
func (r *Registry) WithOverrides(overrides []Override) (*Registry, error) {
	models := r.Models()
	for _, o := range overrides {
		i, ok := r.byName[o.Name]
		if !ok {
			return nil, fmt.Errorf("override for unknown model %q", o.Name)
		}
		if o.Working != nil {
			models[i].Working = *o.Working
		}
		if o.Priority != nil {
			models[i].Priority = *o.Priority
		}
	}
	return New(models)
}

// Models returns a copy of the catalog in declaration order.
func (r *Registry) Models() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

// Lookup returns the model with the given name.
func (r *Registry) Lookup(name string) (Model, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Model{}, false
	}
	return r.models[i], true
}

// Len is the number of catalog entries.
func (r *Registry) Len() int { return len(r.models) }

// Chain returns the catalog ordered by priority then size, both descending.
// Ties keep declaration order.
func (r *Registry) Chain() []Model {
	out := r.Models()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].SizeB > out[j].SizeB
	})
	return out
}
