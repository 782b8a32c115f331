// Package dispatch routes one logical completion request across the ranked
// model chain, falling back to smaller models until one succeeds.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/registry"
)

var (
	// ErrNoModelsAvailable means the filtered chain was empty before any
	// attempt: no provider configured, or the size floor excluded everything.
	ErrNoModelsAvailable = errors.New("no models available")
	// ErrAllModelsFailed means at least one candidate existed and none
	// succeeded.
	ErrAllModelsFailed = errors.New("all models failed")
)

const (
	// DefaultFailureDelay is the pause between failed candidates.
	DefaultFailureDelay = time.Second
	// DefaultTemperature applies when a request leaves Temperature at zero.
	DefaultTemperature = 0.7
	// JSONTemperature applies to GenerateJSON requests that leave it at zero.
	JSONTemperature = 0.3

	cooldownStep = 60 * time.Second
	cooldownMax  = 300 * time.Second
)

// GenerateRequest is one logical completion request.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int     // capped by each model's limit; 0 uses the limit
	Temperature  float64 // 0 uses DefaultTemperature
	MinModelSize float64 // billions of parameters
}

// Attempt describes one adapter call, for recorders.
type Attempt struct {
	Model    string
	Provider provider.Kind
	JSON     bool
	Success  bool
	Error    string
	Tokens   int
	Duration time.Duration
	At       time.Time
}

// Recorder persists attempts. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Options configures a Client.
type Options struct {
	FailureDelay time.Duration
	Logger       *zerolog.Logger
	Recorder     Recorder
	Meter        metric.Meter

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

type cooldownKey struct {
	kind  provider.Kind
	model string
}

type cooldownEntry struct {
	until    time.Time
	failures int
}

// Client is the unified fallback client. It is safe for concurrent use.
type Client struct {
	reg      *registry.Registry
	adapters provider.Set
	delay    time.Duration
	recorder Recorder
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
	log      zerolog.Logger

	attempts metric.Int64Counter
	failures metric.Int64Counter

	mu        sync.Mutex
	cooldowns map[cooldownKey]*cooldownEntry
}

// New builds a Client over reg, calling models through adapters.
func New(reg *registry.Registry, adapters provider.Set, opts Options) *Client {
	c := &Client{
		reg:       reg,
		adapters:  adapters,
		delay:     opts.FailureDelay,
		recorder:  opts.Recorder,
		now:       opts.Now,
		sleep:     opts.Sleep,
		cooldowns: make(map[cooldownKey]*cooldownEntry),
	}
	if c.delay <= 0 {
		c.delay = DefaultFailureDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c.log = logger.With().Str("component", "dispatch").Logger()

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("github.com/chirag127/chirag127.github.io-sub000/internal/dispatch")
	}
	var err error
	if c.attempts, err = meter.Int64Counter("dispatch.attempts", metric.WithDescription("Adapter calls made by the fallback chain")); err != nil {
		c.log.Warn().Err(err).Msg("create attempts counter")
	}
	if c.failures, err = meter.Int64Counter("dispatch.failures", metric.WithDescription("Adapter calls that did not produce an accepted result")); err != nil {
		c.log.Warn().Err(err).Msg("create failures counter")
	}
	return c
}

// Generate returns the first successful chat completion along the chain.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) provider.Result {
	return c.walk(ctx, req, 0, false)
}

// GenerateJSON is Generate for structured answers. A success without a parsed
// payload counts as a failure and the walk continues.
func (c *Client) GenerateJSON(ctx context.Context, req GenerateRequest) provider.Result {
	if req.Temperature == 0 {
		req.Temperature = JSONTemperature
	}
	return c.walk(ctx, req, 0, true)
}

// GenerateWithTier skips the first startTier entries of the available chain,
// leaving the largest models to other callers.
func (c *Client) GenerateWithTier(ctx context.Context, req GenerateRequest, startTier int) provider.Result {
	if startTier < 0 {
		startTier = 0
	}
	return c.walk(ctx, req, startTier, false)
}

// candidates is the filtered chain: working models on available providers at
// or above the size floor, in chain order.
func (c *Client) candidates(minSize float64) []registry.Model {
	var out []registry.Model
	for _, m := range c.reg.Chain() {
		if !m.Working || m.SizeB < minSize {
			continue
		}
		a, ok := c.adapters[m.Provider]
		if !ok || !a.Available() {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Client) walk(ctx context.Context, req GenerateRequest, startTier int, jsonMode bool) provider.Result {
	chain := c.candidates(req.MinModelSize)
	if startTier >= len(chain) {
		chain = nil
	} else {
		chain = chain[startTier:]
	}
	if len(chain) == 0 {
		c.log.Warn().Float64("min_size", req.MinModelSize).Int("start_tier", startTier).Msg("no models available")
		return provider.Result{Error: ErrNoModelsAvailable.Error(), Cause: ErrNoModelsAvailable}
	}
	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}

	var lastErr error
	for i, m := range chain {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		key := cooldownKey{kind: m.Provider, model: m.ID}
		if left := c.cooldownRemaining(key); left > 0 {
			c.log.Debug().Str("model", m.Name).Dur("remaining", left).Msg("skipping cooling model")
			if lastErr == nil {
				lastErr = fmt.Errorf("%s: cooling down for %s", m.Name, left.Round(time.Second))
			}
			continue
		}

		res := c.call(ctx, m, req, jsonMode)
		if res.Success {
			c.clearFailures(key)
			return res
		}

		failures, cooldown := c.recordFailure(key)
		c.log.Info().
			Str("model", m.Name).
			Str("provider", m.Provider.String()).
			Int("failures", failures).
			Dur("cooldown", cooldown).
			Str("error", res.Error).
			Msg("model failed, falling back")
		lastErr = res.Cause
		if lastErr == nil {
			lastErr = errors.New(res.Error)
		}
		if i < len(chain)-1 {
			c.sleep(ctx, c.delay)
		}
	}

	cause := fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
	c.log.Warn().Err(lastErr).Int("candidates", len(chain)).Msg("all models failed")
	return provider.Result{Error: cause.Error(), Cause: cause}
}

// call runs one candidate under its size-derived deadline. A JSON call must
// also yield a parsed payload to be accepted.
func (c *Client) call(ctx context.Context, m registry.Model, req GenerateRequest, jsonMode bool) provider.Result {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > m.MaxTokens {
		maxTokens = m.MaxTokens
	}
	preq := provider.Request{
		Prompt:           req.Prompt,
		SystemPrompt:     req.SystemPrompt,
		Model:            m.ID,
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		StructuredOutput: jsonMode && m.StructuredOutput,
	}

	callCtx, cancel := context.WithTimeout(ctx, m.Timeout())
	defer cancel()

	adapter := c.adapters[m.Provider]
	start := c.now()
	var res provider.Result
	if jsonMode {
		res = adapter.JSONCompletion(callCtx, preq)
		if res.Success && res.Parsed == nil {
			err := fmt.Errorf("%s: success without parsed JSON payload", m.Name)
			res.Success = false
			res.Error = err.Error()
			res.Cause = err
		}
	} else {
		res = adapter.ChatCompletion(callCtx, preq)
	}
	res.Model = m.Name
	res.Provider = m.Provider
	took := c.now().Sub(start)

	attrs := metric.WithAttributes(
		attribute.String("provider", m.Provider.String()),
		attribute.String("model", m.Name),
	)
	if c.attempts != nil {
		c.attempts.Add(ctx, 1, attrs)
	}
	if !res.Success && c.failures != nil {
		c.failures.Add(ctx, 1, attrs)
	}

	if c.recorder != nil {
		a := Attempt{
			Model:    m.Name,
			Provider: m.Provider,
			JSON:     jsonMode,
			Success:  res.Success,
			Error:    res.Error,
			Tokens:   res.Tokens,
			Duration: took,
			At:       start,
		}
		if err := c.recorder.RecordAttempt(ctx, a); err != nil {
			c.log.Warn().Err(err).Str("model", m.Name).Msg("record attempt")
		}
	}
	return res
}

func (c *Client) cooldownRemaining(key cooldownKey) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cooldowns[key]
	if !ok {
		return 0
	}
	left := e.until.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// recordFailure bumps the failure counter for key and sets its cooldown to
// min(60s * failures, 300s).
func (c *Client) recordFailure(key cooldownKey) (int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cooldowns[key]
	if !ok {
		e = &cooldownEntry{}
		c.cooldowns[key] = e
	}
	e.failures++
	d := time.Duration(e.failures) * cooldownStep
	if d > cooldownMax {
		d = cooldownMax
	}
	e.until = c.now().Add(d)
	return e.failures, d
}

func (c *Client) clearFailures(key cooldownKey) {
	c.mu.Lock()
	delete(c.cooldowns, key)
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
