package dispatch

import (
	"time"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/registry"
)

// ProviderStatus reports one vendor.
type ProviderStatus struct {
	Provider  provider.Kind `json:"provider"`
	Available bool          `json:"available"`
}

// ModelStatus reports one chain entry.
type ModelStatus struct {
	registry.Model
	Eligible          bool          `json:"eligible"`
	Failures          int           `json:"failures"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// Status is a point-in-time view of the chain.
type Status struct {
	Providers []ProviderStatus `json:"providers"`
	Models    []ModelStatus    `json:"models"`
}

// Status snapshots provider availability and chain cooldowns.
func (c *Client) Status() Status {
	var st Status
	for _, k := range provider.Kinds {
		a, ok := c.adapters[k]
		st.Providers = append(st.Providers, ProviderStatus{Provider: k, Available: ok && a.Available()})
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.reg.Chain() {
		ms := ModelStatus{Model: m}
		a, ok := c.adapters[m.Provider]
		ms.Eligible = m.Working && ok && a.Available()
		if e, ok := c.cooldowns[cooldownKey{kind: m.Provider, model: m.ID}]; ok {
			ms.Failures = e.failures
			if left := e.until.Sub(now); left > 0 {
				ms.CooldownRemaining = left
			}
		}
		st.Models = append(st.Models, ms)
	}
	return st
}
