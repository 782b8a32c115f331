package provider

import (
	"os"
)

// New builds the adapter for kind. The switch is exhaustive over Kinds.
func New(kind Kind, s Settings) Adapter {
	switch kind {
	case KindCerebras, KindGroq, KindOpenRouter, KindMistral, KindNVIDIA,
		KindGitHubModels, KindCloudflare, KindOpenAI:
		return NewOpenAICompatible(kind, s)
	case KindAnthropic:
		return NewAnthropic(s)
	case KindGemini:
		return NewGemini(s)
	}
	panic("provider: unknown kind " + kind.String())
}

// EnvSettings reads credentials for kind from the environment. envVar
// overrides the kind's default variable name when non-empty.
func EnvSettings(kind Kind, envVar string) Settings {
	if envVar == "" {
		envVar = kind.DefaultEnvVar()
	}
	s := Settings{APIKey: os.Getenv(envVar)}
	if kind == KindCloudflare {
		s.AccountID = os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	}
	return s
}

// Set is the per-process collection of adapters, one per kind.
type Set map[Kind]Adapter

// Available returns the kinds whose adapters have credentials.
func (s Set) Available() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if a, ok := s[k]; ok && a.Available() {
			out = append(out, k)
		}
	}
	return out
}
