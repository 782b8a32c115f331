package provider

import (
	"fmt"
	"strings"
)

// Kind identifies an AI vendor. The set is closed: every switch over Kind in
// this module handles all values, and ParseKind rejects anything else.
type Kind uint8

const (
	KindCerebras Kind = iota + 1
	KindGroq
	KindOpenRouter
	KindMistral
	KindNVIDIA
	KindGitHubModels
	KindCloudflare
	KindOpenAI
	KindAnthropic
	KindGemini
)

// Kinds lists every provider kind in a stable order.
var Kinds = []Kind{
	KindCerebras,
	KindGroq,
	KindOpenRouter,
	KindMistral,
	KindNVIDIA,
	KindGitHubModels,
	KindCloudflare,
	KindOpenAI,
	KindAnthropic,
	KindGemini,
}

func (k Kind) String() string {
	switch k {
	case KindCerebras:
		return "cerebras"
	case KindGroq:
		return "groq"
	case KindOpenRouter:
		return "openrouter"
	case KindMistral:
		return "mistral"
	case KindNVIDIA:
		return "nvidia"
	case KindGitHubModels:
		return "github"
	case KindCloudflare:
		return "cloudflare"
	case KindOpenAI:
		return "openai"
	case KindAnthropic:
		return "anthropic"
	case KindGemini:
		return "gemini"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText lets Kind appear as its name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a provider name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a provider name (case-insensitive) to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown provider %q", s)
}

// DefaultEnvVar is the environment variable holding the credential for k.
func (k Kind) DefaultEnvVar() string {
	switch k {
	case KindCerebras:
		return "CEREBRAS_API_KEY"
	case KindGroq:
		return "GROQ_API_KEY"
	case KindOpenRouter:
		return "OPENROUTER_API_KEY"
	case KindMistral:
		return "MISTRAL_API_KEY"
	case KindNVIDIA:
		return "NVIDIA_API_KEY"
	case KindGitHubModels:
		return "GITHUB_TOKEN"
	case KindCloudflare:
		return "CLOUDFLARE_API_TOKEN"
	case KindOpenAI:
		return "OPENAI_API_KEY"
	case KindAnthropic:
		return "ANTHROPIC_API_KEY"
	case KindGemini:
		return "GEMINI_API_KEY"
	}
	return ""
}

// DefaultBaseURL is the vendor endpoint used when config does not override it.
// Cloudflare's URL contains an {account} placeholder filled from Settings.AccountID.
func (k Kind) DefaultBaseURL() string {
	switch k {
	case KindCerebras:
		return "https://api.cerebras.ai/v1"
	case KindGroq:
		return "https://api.groq.com/openai/v1"
	case KindOpenRouter:
		return "https://openrouter.ai/api/v1"
	case KindMistral:
		return "https://api.mistral.ai/v1"
	case KindNVIDIA:
		return "https://integrate.api.nvidia.com/v1"
	case KindGitHubModels:
		return "https://models.github.ai/inference"
	case KindCloudflare:
		return "https://api.cloudflare.com/client/v4/accounts/{account}/ai/v1"
	case KindOpenAI:
		return "https://api.openai.com/v1"
	case KindAnthropic:
		return "https://api.anthropic.com/v1"
	case KindGemini:
		return ""
	}
	return ""
}
