package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAICompatible speaks the /chat/completions contract shared by most
// vendors in the catalog.
type OpenAICompatible struct {
	kind     Kind
	settings Settings
	cd       *cooldowns
	log      zerolog.Logger
}

// NewOpenAICompatible builds an adapter for an OpenAI-style vendor.
func NewOpenAICompatible(kind Kind, s Settings) *OpenAICompatible {
	s = s.withDefaults(kind)
	return &OpenAICompatible{
		kind:     kind,
		settings: s,
		cd:       newCooldowns(),
		log:      s.Logger.With().Str("provider", kind.String()).Logger(),
	}
}

func (a *OpenAICompatible) Kind() Kind { return a.kind }

func (a *OpenAICompatible) Available() bool {
	if a.kind == KindCloudflare && a.settings.AccountID == "" {
		return false
	}
	return a.settings.APIKey != ""
}

func (a *OpenAICompatible) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + a.settings.APIKey}
	if a.kind == KindOpenRouter {
		h["X-Title"] = "repo-optimizer"
	}
	return h
}

// ChatCompletion sends one chat request.
func (a *OpenAICompatible) ChatCompletion(ctx context.Context, req Request) Result {
	if !a.Available() {
		return Failure(a.kind, req.Model, unavailableError{a.kind})
	}
	if left := a.cd.remaining(req.Model); left > 0 {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: locally rate limited for %s", a.kind, req.Model, left.Round(time.Second)))
	}

	body := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.StructuredOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	start := time.Now()
	url := a.settings.BaseURL + "/chat/completions"
	reply, err := sendWithRateLimit(ctx, a.cd, a.kind, req.Model, a.settings.RateLimitCooldown, func(ctx context.Context) (*httpReply, error) {
		return doJSON(ctx, a.settings.HTTPClient, http.MethodPost, url, a.headers(), body)
	})
	if err != nil {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: %w", a.kind, req.Model, err))
	}
	if reply.Status/100 != 2 {
		return Failure(a.kind, req.Model, replyError(a.kind, req.Model, reply))
	}

	var parsed chatResponse
	if err := json.Unmarshal(reply.Body, &parsed); err != nil {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: parse response: %w", a.kind, req.Model, err))
	}
	if parsed.Error != nil {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: api error: %s", a.kind, req.Model, parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: no choices returned", a.kind, req.Model))
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return Failure(a.kind, req.Model, fmt.Errorf("%s %s: empty completion", a.kind, req.Model))
	}

	a.log.Debug().Str("model", req.Model).Dur("took", time.Since(start)).Int("tokens", parsed.Usage.TotalTokens).Msg("chat completion")
	return Result{
		Success:  true,
		Content:  content,
		Model:    req.Model,
		Provider: a.kind,
		Tokens:   parsed.Usage.TotalTokens,
	}
}

// JSONCompletion sends a chat request and parses the answer as JSON.
func (a *OpenAICompatible) JSONCompletion(ctx context.Context, req Request) Result {
	return finishJSON(a.ChatCompletion(ctx, withJSONInstruction(req)))
}
