package registry

import "github.com/chirag127/chirag127.github.io-sub000/internal/provider"

func entry(name string, sizeB float64, kind provider.Kind, id string, maxTokens int, structured bool) Model {
	return Model{
		Name:             name,
		SizeB:            sizeB,
		Provider:         kind,
		ID:               id,
		MaxTokens:        maxTokens,
		StructuredOutput: structured,
		Working:          true,
	}
}

// DefaultModels is the built-in catalog, roughly largest first within each
// vendor. Sizes for closed models are estimates used only for ranking.
func DefaultModels() []Model {
	var (
		cerebras   = provider.KindCerebras
		groq       = provider.KindGroq
		openrouter = provider.KindOpenRouter
		mistral    = provider.KindMistral
		nvidia     = provider.KindNVIDIA
		github     = provider.KindGitHubModels
		cloudflare = provider.KindCloudflare
		openai     = provider.KindOpenAI
		anthropic  = provider.KindAnthropic
		gemini     = provider.KindGemini
	)
	return []Model{
		entry("qwen-3-coder-480b", 480, cerebras, "qwen-3-coder-480b", 8192, true),
		entry("qwen-3-235b-cerebras", 235, cerebras, "qwen-3-235b-a22b-instruct-2507", 8192, true),
		entry("gpt-oss-120b-cerebras", 120, cerebras, "gpt-oss-120b", 8192, true),
		entry("llama-3.3-70b-cerebras", 70, cerebras, "llama-3.3-70b", 8192, true),
		entry("qwen-3-32b-cerebras", 32, cerebras, "qwen-3-32b", 8192, true),
		entry("llama3.1-8b-cerebras", 8, cerebras, "llama3.1-8b", 8192, true),

		entry("kimi-k2-groq", 1000, groq, "moonshotai/kimi-k2-instruct", 8192, true),
		entry("gpt-oss-120b-groq", 120, groq, "openai/gpt-oss-120b", 8192, true),
		entry("llama-4-maverick-groq", 400, groq, "meta-llama/llama-4-maverick-17b-128e-instruct", 8192, true),
		entry("llama-3.3-70b-groq", 70, groq, "llama-3.3-70b-versatile", 8192, true),
		entry("qwen3-32b-groq", 32, groq, "qwen/qwen3-32b", 8192, true),
		entry("gpt-oss-20b-groq", 20, groq, "openai/gpt-oss-20b", 8192, true),
		entry("llama-3.1-8b-groq", 8, groq, "llama-3.1-8b-instant", 8192, true),

		entry("deepseek-r1-openrouter", 671, openrouter, "deepseek/deepseek-r1:free", 8192, false),
		entry("deepseek-v3-openrouter", 671, openrouter, "deepseek/deepseek-chat-v3-0324:free", 8192, false),
		entry("qwen3-235b-openrouter", 235, openrouter, "qwen/qwen3-235b-a22b:free", 8192, false),
		entry("llama-3.3-70b-openrouter", 70, openrouter, "meta-llama/llama-3.3-70b-instruct:free", 8192, false),
		entry("mistral-small-openrouter", 24, openrouter, "mistralai/mistral-small-3.2-24b-instruct:free", 8192, false),
		entry("gemma-3-27b-openrouter", 27, openrouter, "google/gemma-3-27b-it:free", 8192, false),

		entry("mistral-large", 123, mistral, "mistral-large-latest", 8192, true),
		entry("codestral", 22, mistral, "codestral-latest", 8192, true),
		entry("mistral-small", 24, mistral, "mistral-small-latest", 8192, true),

		entry("nemotron-ultra-253b", 253, nvidia, "nvidia/llama-3.1-nemotron-ultra-253b-v1", 4096, false),
		entry("deepseek-r1-nvidia", 671, nvidia, "deepseek-ai/deepseek-r1", 4096, false),
		entry("llama-3.1-405b-nvidia", 405, nvidia, "meta/llama-3.1-405b-instruct", 4096, false),
		entry("llama-3.3-70b-nvidia", 70, nvidia, "meta/llama-3.3-70b-instruct", 4096, false),

		entry("gpt-4.1-github", 200, github, "openai/gpt-4.1", 4096, true),
		entry("gpt-4o-github", 200, github, "openai/gpt-4o", 4096, true),
		entry("llama-3.1-405b-github", 405, github, "meta/Meta-Llama-3.1-405B-Instruct", 4096, false),
		entry("gpt-4o-mini-github", 8, github, "openai/gpt-4o-mini", 4096, true),

		entry("llama-3.3-70b-cloudflare", 70, cloudflare, "@cf/meta/llama-3.3-70b-instruct-fp8-fast", 2048, false),
		entry("qwen2.5-coder-32b-cloudflare", 32, cloudflare, "@cf/qwen/qwen2.5-coder-32b-instruct", 2048, false),
		entry("llama-3.1-8b-cloudflare", 8, cloudflare, "@cf/meta/llama-3.1-8b-instruct", 2048, false),

		entry("gpt-4.1", 200, openai, "gpt-4.1", 8192, true),
		entry("gpt-4.1-mini", 30, openai, "gpt-4.1-mini", 8192, true),
		entry("gpt-4.1-nano", 8, openai, "gpt-4.1-nano", 8192, true),

		entry("claude-sonnet-4", 200, anthropic, "claude-sonnet-4-20250514", 8192, false),
		entry("claude-3.5-haiku", 20, anthropic, "claude-3-5-haiku-latest", 8192, false),

		entry("gemini-2.5-pro", 300, gemini, "gemini-2.5-pro", 8192, true),
		entry("gemini-2.5-flash", 100, gemini, "gemini-2.5-flash", 8192, true),
		entry("gemini-2.5-flash-lite", 30, gemini, "gemini-2.5-flash-lite", 8192, true),
		entry("gemma-3-27b", 27, gemini, "gemma-3-27b-it", 8192, false),
	}
}
