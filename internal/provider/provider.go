// Package provider normalizes vendor chat-completion APIs into a single
// Adapter interface returning Result values. Adapters never return Go errors
// for ordinary failures: the Result carries success and the error text.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultRateLimitCooldown is how long a model stays locally suppressed
// after the vendor answers 429.
const DefaultRateLimitCooldown = 60 * time.Second

// maxLocalPause bounds the single in-adapter wait after a 429 that carries a
// short Retry-After. Longer waits are left to the dispatch chain.
const maxLocalPause = 5 * time.Second

// jsonInstruction is appended to the system prompt of JSON completions.
const jsonInstruction = "Respond with a single valid JSON value only. Do not wrap it in markdown or add commentary."

// Request is one completion call against a specific vendor model.
type Request struct {
	Prompt           string
	SystemPrompt     string
	Model            string // vendor API model id
	MaxTokens        int
	Temperature      float64
	StructuredOutput bool // ask the vendor for native JSON mode when supported
}

// Result is the outcome of a completion. It is a snapshot: built once per
// call and never mutated afterwards.
type Result struct {
	Success  bool   `json:"success"`
	Content  string `json:"content,omitempty"`
	Parsed   any    `json:"parsed,omitempty"`
	Model    string `json:"model_used,omitempty"`
	Provider Kind   `json:"provider_used,omitempty"`
	Tokens   int    `json:"tokens_used,omitempty"`
	Error    string `json:"error,omitempty"`

	// Cause is the classified failure, for errors.Is by callers.
	Cause error `json:"-"`
}

// Failure builds a failed Result for kind/model.
func Failure(kind Kind, model string, err error) Result {
	return Result{Provider: kind, Model: model, Error: err.Error(), Cause: err}
}

// Adapter is the capability every vendor implements.
type Adapter interface {
	Kind() Kind
	// Available reports whether credentials were present at construction.
	Available() bool
	ChatCompletion(ctx context.Context, req Request) Result
	JSONCompletion(ctx context.Context, req Request) Result
}

// Settings configures one adapter.
type Settings struct {
	APIKey            string
	BaseURL           string
	AccountID         string // Cloudflare only
	RateLimitCooldown time.Duration
	HTTPClient        *http.Client
	Logger            zerolog.Logger
}

func (s Settings) withDefaults(kind Kind) Settings {
	if s.BaseURL == "" {
		s.BaseURL = kind.DefaultBaseURL()
	}
	s.BaseURL = strings.ReplaceAll(s.BaseURL, "{account}", s.AccountID)
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.RateLimitCooldown <= 0 {
		s.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if s.HTTPClient == nil {
		// Per-call deadlines come from the context; no client-wide timeout.
		s.HTTPClient = &http.Client{}
	}
	return s
}

// cooldowns is the adapter-local model suppression map. It is independent of
// the dispatch client's chain-level cooldowns.
type cooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{until: make(map[string]time.Time), now: time.Now}
}

// remaining returns how long model is still suppressed, or 0.
func (c *cooldowns) remaining(model string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.until[model]
	if !ok {
		return 0
	}
	left := exp.Sub(c.now())
	if left <= 0 {
		delete(c.until, model)
		return 0
	}
	return left
}

func (c *cooldowns) set(model string, d time.Duration) {
	c.mu.Lock()
	c.until[model] = c.now().Add(d)
	c.mu.Unlock()
}

func (c *cooldowns) clear(model string) {
	c.mu.Lock()
	delete(c.until, model)
	c.mu.Unlock()
}

// RateLimitError marks a 429 answer.
type RateLimitError struct {
	Kind       Kind
	Model      string
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limited (429): %s", e.Kind, e.Model, truncate(e.Body, 200))
}

// StatusError is any other non-2xx answer.
type StatusError struct {
	Kind   Kind
	Model  string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Kind, e.Model, e.Status, truncate(e.Body, 300))
}

// unavailableError is the failure of an adapter built without credentials.
type unavailableError struct{ kind Kind }

func (e unavailableError) Error() string {
	return fmt.Sprintf("%s: provider not configured (missing %s)", e.kind, e.kind.DefaultEnvVar())
}

// withJSONInstruction returns req adjusted for a JSON completion.
func withJSONInstruction(req Request) Request {
	if req.SystemPrompt == "" {
		req.SystemPrompt = jsonInstruction
	} else {
		req.SystemPrompt = req.SystemPrompt + "\n\n" + jsonInstruction
	}
	return req
}

// finishJSON turns a chat Result into a JSON Result.
func finishJSON(res Result) Result {
	if !res.Success {
		return res
	}
	parsed, err := ParseJSON(res.Content)
	if err != nil {
		err = fmt.Errorf("%s %s: invalid JSON response: %w", res.Provider, res.Model, err)
		out := res
		out.Success = false
		out.Error = err.Error()
		out.Cause = err
		return out
	}
	res.Parsed = parsed
	return res
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
