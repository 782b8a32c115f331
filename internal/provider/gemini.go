package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Gemini calls Google's Gemini API through the genai SDK.
type Gemini struct {
	settings Settings
	client   *genai.Client
	initErr  error
	cd       *cooldowns
	log      zerolog.Logger
}

// NewGemini builds the Gemini adapter. Without an API key the adapter is
// permanently unavailable; no client is created.
func NewGemini(s Settings) *Gemini {
	s = s.withDefaults(KindGemini)
	g := &Gemini{
		settings: s,
		cd:       newCooldowns(),
		log:      s.Logger.With().Str("provider", KindGemini.String()).Logger(),
	}
	if s.APIKey == "" {
		return g
	}

	cfg := &genai.ClientConfig{
		APIKey:     s.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.HTTPClient,
	}
	if s.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	g.client, g.initErr = genai.NewClient(context.Background(), cfg)
	if g.initErr != nil {
		g.log.Warn().Err(g.initErr).Msg("gemini client init failed; provider disabled")
	}
	return g
}

func (g *Gemini) Kind() Kind      { return KindGemini }
func (g *Gemini) Available() bool { return g.client != nil && g.initErr == nil }

func (g *Gemini) generate(ctx context.Context, req Request, jsonMode bool) Result {
	if !g.Available() {
		return Failure(KindGemini, req.Model, unavailableError{KindGemini})
	}
	if left := g.cd.remaining(req.Model); left > 0 {
		return Failure(KindGemini, req.Model, fmt.Errorf("gemini %s: locally rate limited for %s", req.Model, left.Round(time.Second)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			g.cd.set(req.Model, g.settings.RateLimitCooldown)
			return Failure(KindGemini, req.Model, &RateLimitError{Kind: KindGemini, Model: req.Model, Body: apiErr.Message})
		}
		return Failure(KindGemini, req.Model, fmt.Errorf("gemini %s: %w", req.Model, err))
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return Failure(KindGemini, req.Model, fmt.Errorf("gemini %s: empty completion", req.Model))
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.log.Debug().Str("model", req.Model).Int("tokens", tokens).Msg("generate content")
	return Result{Success: true, Content: content, Model: req.Model, Provider: KindGemini, Tokens: tokens}
}

func (g *Gemini) ChatCompletion(ctx context.Context, req Request) Result {
	return g.generate(ctx, req, false)
}

func (g *Gemini) JSONCompletion(ctx context.Context, req Request) Result {
	return finishJSON(g.generate(ctx, withJSONInstruction(req), req.StructuredOutput))
}
