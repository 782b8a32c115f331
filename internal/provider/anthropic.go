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

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Anthropic speaks the Messages API.
type Anthropic struct {
	settings Settings
	cd       *cooldowns
	log      zerolog.Logger
}

// NewAnthropic builds the Anthropic adapter.
func NewAnthropic(s Settings) *Anthropic {
	s = s.withDefaults(KindAnthropic)
	return &Anthropic{
		settings: s,
		cd:       newCooldowns(),
		log:      s.Logger.With().Str("provider", KindAnthropic.String()).Logger(),
	}
}

func (a *Anthropic) Kind() Kind      { return KindAnthropic }
func (a *Anthropic) Available() bool { return a.settings.APIKey != "" }

func (a *Anthropic) ChatCompletion(ctx context.Context, req Request) Result {
	if !a.Available() {
		return Failure(KindAnthropic, req.Model, unavailableError{KindAnthropic})
	}
	if left := a.cd.remaining(req.Model); left > 0 {
		return Failure(KindAnthropic, req.Model, fmt.Errorf("anthropic %s: locally rate limited for %s", req.Model, left.Round(time.Second)))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         a.settings.APIKey,
		"anthropic-version": anthropicVersion,
	}

	url := a.settings.BaseURL + "/messages"
	reply, err := sendWithRateLimit(ctx, a.cd, KindAnthropic, req.Model, a.settings.RateLimitCooldown, func(ctx context.Context) (*httpReply, error) {
		return doJSON(ctx, a.settings.HTTPClient, http.MethodPost, url, headers, body)
	})
	if err != nil {
		return Failure(KindAnthropic, req.Model, fmt.Errorf("anthropic %s: %w", req.Model, err))
	}
	if reply.Status/100 != 2 {
		return Failure(KindAnthropic, req.Model, replyError(KindAnthropic, req.Model, reply))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(reply.Body, &parsed); err != nil {
		return Failure(KindAnthropic, req.Model, fmt.Errorf("anthropic %s: parse response: %w", req.Model, err))
	}
	if parsed.Error != nil {
		return Failure(KindAnthropic, req.Model, fmt.Errorf("anthropic %s: %s: %s", req.Model, parsed.Error.Type, parsed.Error.Message))
	}

	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return Failure(KindAnthropic, req.Model, fmt.Errorf("anthropic %s: empty completion", req.Model))
	}

	tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
	a.log.Debug().Str("model", req.Model).Int("tokens", tokens).Msg("messages completion")
	return Result{Success: true, Content: content, Model: req.Model, Provider: KindAnthropic, Tokens: tokens}
}

func (a *Anthropic) JSONCompletion(ctx context.Context, req Request) Result {
	return finishJSON(a.ChatCompletion(ctx, withJSONInstruction(req)))
}
