package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/registry"
)

// callLog records model ids in invocation order across all fake adapters.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(model string) {
	l.mu.Lock()
	l.calls = append(l.calls, model)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// script maps a model id to the answer its adapter gives.
type script map[string]provider.Result

type fakeAdapter struct {
	kind      provider.Kind
	available bool
	log       *callLog
	answers   script

	mu       sync.Mutex
	deadline time.Time
}

func (f *fakeAdapter) Kind() provider.Kind { return f.kind }
func (f *fakeAdapter) Available() bool     { return f.available }

func (f *fakeAdapter) answer(ctx context.Context, req provider.Request) provider.Result {
	f.log.add(req.Model)
	if dl, ok := ctx.Deadline(); ok {
		f.mu.Lock()
		f.deadline = dl
		f.mu.Unlock()
	}
	res, ok := f.answers[req.Model]
	if !ok {
		return provider.Failure(f.kind, req.Model, errors.New(req.Model+": boom"))
	}
	res.Provider = f.kind
	res.Model = req.Model
	return res
}

func (f *fakeAdapter) ChatCompletion(ctx context.Context, req provider.Request) provider.Result {
	return f.answer(ctx, req)
}

func (f *fakeAdapter) JSONCompletion(ctx context.Context, req provider.Request) provider.Result {
	res := f.answer(ctx, req)
	if res.Success && res.Parsed == nil {
		if v, err := provider.ParseJSON(res.Content); err == nil {
			res.Parsed = v
		}
	}
	return res
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *memRecorder) RecordAttempt(_ context.Context, a Attempt) error {
	r.mu.Lock()
	r.attempts = append(r.attempts, a)
	r.mu.Unlock()
	return nil
}

func ok(content string) provider.Result {
	return provider.Result{Success: true, Content: content}
}

type harness struct {
	client   *Client
	log      *callLog
	clock    *fakeClock
	sleeps   []time.Duration
	recorder *memRecorder
	adapters map[provider.Kind]*fakeAdapter
}

func newHarness(t *testing.T, models []registry.Model, answers script, unavailable ...provider.Kind) *harness {
	t.Helper()
	reg, err := registry.New(models)
	require.NoError(t, err)

	h := &harness{
		log:      &callLog{},
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		recorder: &memRecorder{},
		adapters: make(map[provider.Kind]*fakeAdapter),
	}
	off := make(map[provider.Kind]bool)
	for _, k := range unavailable {
		off[k] = true
	}
	set := provider.Set{}
	for _, m := range models {
		if _, seen := h.adapters[m.Provider]; seen {
			continue
		}
		fa := &fakeAdapter{kind: m.Provider, available: !off[m.Provider], log: h.log, answers: answers}
		h.adapters[m.Provider] = fa
		set[m.Provider] = fa
	}

	nop := zerolog.Nop()
	h.client = New(reg, set, Options{
		FailureDelay: 10 * time.Millisecond,
		Logger:       &nop,
		Recorder:     h.recorder,
		Now:          h.clock.Now,
		Sleep: func(_ context.Context, d time.Duration) {
			h.sleeps = append(h.sleeps, d)
		},
	})
	return h
}

func model(name string, size float64, kind provider.Kind) registry.Model {
	return registry.Model{Name: name, ID: name, SizeB: size, Provider: kind, MaxTokens: 1000, Working: true}
}

func TestGenerate_ChainOrder(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("small", 8, provider.KindGroq),
		model("large", 405, provider.KindNVIDIA),
		{Name: "boosted", ID: "boosted", SizeB: 20, Priority: 3, Provider: provider.KindGroq, MaxTokens: 1000, Working: true},
		model("medium", 70, provider.KindCerebras),
	}, script{})

	res := h.client.Generate(context.Background(), GenerateRequest{Prompt: "ping"})

	assert.False(t, res.Success)
	assert.Equal(t, []string{"boosted", "large", "medium", "small"}, h.log.list())
	assert.Len(t, h.sleeps, 3, "one pause between each failed candidate")
	assert.Equal(t, 10*time.Millisecond, h.sleeps[0])
}

func TestGenerate_AtMostOneSuccess(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("a", 300, provider.KindGroq),
		model("b", 200, provider.KindGroq),
		model("c", 100, provider.KindGroq),
	}, script{"b": ok("from b"), "c": ok("from c")})

	res := h.client.Generate(context.Background(), GenerateRequest{Prompt: "ping"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "from b", res.Content)
	assert.Equal(t, "b", res.Model)
	assert.Equal(t, []string{"a", "b"}, h.log.list())
}

func TestGenerate_CooldownRespectedAndExpires(t *testing.T) {
	answers := script{"small": ok("small answer")}
	h := newHarness(t, []registry.Model{
		model("big", 400, provider.KindGroq),
		model("small", 8, provider.KindGroq),
	}, answers)
	ctx := context.Background()

	h.client.Generate(ctx, GenerateRequest{Prompt: "1"})
	assert.Equal(t, []string{"big", "small"}, h.log.list())

	// big is now cooling for 60s and must be skipped despite its rank.
	h.clock.Advance(30 * time.Second)
	res := h.client.Generate(ctx, GenerateRequest{Prompt: "2"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"big", "small", "small"}, h.log.list())

	// After expiry it is tried again first.
	h.clock.Advance(31 * time.Second)
	answers["big"] = ok("big answer")
	res = h.client.Generate(ctx, GenerateRequest{Prompt: "3"})
	require.True(t, res.Success)
	assert.Equal(t, "big answer", res.Content)
	assert.Equal(t, []string{"big", "small", "small", "big"}, h.log.list())
}

func TestGenerate_CooldownGrowsAndCaps(t *testing.T) {
	h := newHarness(t, []registry.Model{model("only", 70, provider.KindGroq)}, script{})
	ctx := context.Background()

	want := []time.Duration{60 * time.Second, 120 * time.Second, 180 * time.Second, 240 * time.Second, 300 * time.Second, 300 * time.Second}
	for i, d := range want {
		h.client.Generate(ctx, GenerateRequest{Prompt: "x"})
		st := h.client.Status()
		require.Len(t, st.Models, 1)
		assert.Equal(t, i+1, st.Models[0].Failures)
		assert.Equal(t, d, st.Models[0].CooldownRemaining, "failure %d", i+1)
		h.clock.Advance(d)
	}
}

func TestGenerate_SuccessClearsFailureCounter(t *testing.T) {
	answers := script{}
	h := newHarness(t, []registry.Model{model("m", 70, provider.KindGroq)}, answers)
	ctx := context.Background()

	h.client.Generate(ctx, GenerateRequest{Prompt: "x"})
	h.clock.Advance(2 * time.Minute)
	answers["m"] = ok("fine")
	res := h.client.Generate(ctx, GenerateRequest{Prompt: "x"})
	require.True(t, res.Success)

	st := h.client.Status()
	assert.Zero(t, st.Models[0].Failures)
	assert.Zero(t, st.Models[0].CooldownRemaining)
}

func TestGenerate_EmptyChainDistinctFromExhausted(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("a", 70, provider.KindGroq),
		model("b", 8, provider.KindCerebras),
	}, script{})
	ctx := context.Background()

	empty := h.client.Generate(ctx, GenerateRequest{Prompt: "x", MinModelSize: 1000})
	assert.False(t, empty.Success)
	assert.True(t, errors.Is(empty.Cause, ErrNoModelsAvailable))
	assert.False(t, errors.Is(empty.Cause, ErrAllModelsFailed))
	assert.Empty(t, h.log.list())

	exhausted := h.client.Generate(ctx, GenerateRequest{Prompt: "x"})
	assert.False(t, exhausted.Success)
	assert.True(t, errors.Is(exhausted.Cause, ErrAllModelsFailed))
	assert.False(t, errors.Is(exhausted.Cause, ErrNoModelsAvailable))
	assert.Contains(t, exhausted.Error, "all models failed")
	assert.Contains(t, exhausted.Error, "b: boom", "last underlying error is embedded")
}

func TestGenerate_SkipsNotWorkingAndUnavailable(t *testing.T) {
	broken := model("broken", 900, provider.KindGroq)
	broken.Working = false
	h := newHarness(t, []registry.Model{
		broken,
		model("nokey", 500, provider.KindAnthropic),
		model("good", 70, provider.KindGroq),
	}, script{"broken": ok("never"), "nokey": ok("never"), "good": ok("yes")}, provider.KindAnthropic)

	res := h.client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"good"}, h.log.list())
}

func TestGenerateJSON_RejectsProseAndContinues(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("chatty", 200, provider.KindGroq),
		model("strict", 100, provider.KindGroq),
	}, script{
		"chatty": ok("Sure! The session looks fine."),
		"strict": ok(`{"status":"recoverable"}`),
	})

	res := h.client.GenerateJSON(context.Background(), GenerateRequest{Prompt: "diagnose"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "strict", res.Model)
	assert.Equal(t, map[string]any{"status": "recoverable"}, res.Parsed)
	assert.Equal(t, []string{"chatty", "strict"}, h.log.list())

	st := h.client.Status()
	assert.Equal(t, 1, st.Models[0].Failures, "prose answer counts as a failure")
}

func TestGenerateWithTier_SkipsLeadingEntries(t *testing.T) {
	answers := script{"a": ok("a"), "b": ok("b"), "c": ok("c")}
	h := newHarness(t, []registry.Model{
		model("a", 300, provider.KindGroq),
		model("b", 200, provider.KindGroq),
		model("c", 100, provider.KindGroq),
	}, answers)
	ctx := context.Background()

	res := h.client.GenerateWithTier(ctx, GenerateRequest{Prompt: "nudge"}, 2)
	require.True(t, res.Success)
	assert.Equal(t, "c", res.Model)

	res = h.client.GenerateWithTier(ctx, GenerateRequest{Prompt: "nudge"}, 3)
	assert.True(t, errors.Is(res.Cause, ErrNoModelsAvailable))
}

func TestGenerate_EndToEndOnlyMiddleAvailable(t *testing.T) {
	answers := script{"top": ok("top"), "middle": ok("pong")}
	h := newHarness(t, []registry.Model{
		model("top", 400, provider.KindAnthropic),
		model("middle", 120, provider.KindGroq),
		model("bottom", 8, provider.KindCerebras),
	}, answers, provider.KindAnthropic)
	ctx := context.Background()

	// top has no credentials; push bottom into cooldown without touching middle.
	warm := h.client.GenerateWithTier(ctx, GenerateRequest{Prompt: "warm"}, 1)
	require.False(t, warm.Success)
	require.Equal(t, []string{"bottom"}, h.log.list())
	answers["bottom"] = ok("bottom")

	res := h.client.Generate(ctx, GenerateRequest{Prompt: "ping"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "pong", res.Content)
	assert.Equal(t, "middle", res.Model)
	assert.Equal(t, provider.KindGroq, res.Provider)
	assert.Equal(t, []string{"bottom", "middle"}, h.log.list())
}

func TestGenerate_AppliesSizeDerivedTimeout(t *testing.T) {
	h := newHarness(t, []registry.Model{model("m", 70, provider.KindGroq)}, script{"m": ok("x")})

	before := time.Now()
	h.client.Generate(context.Background(), GenerateRequest{Prompt: "x"})

	fa := h.adapters[provider.KindGroq]
	fa.mu.Lock()
	dl := fa.deadline
	fa.mu.Unlock()
	require.False(t, dl.IsZero())
	assert.WithinDuration(t, before.Add(5*time.Minute), dl, 5*time.Second)
}

func TestGenerate_RecordsAttempts(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("a", 200, provider.KindGroq),
		model("b", 100, provider.KindCerebras),
	}, script{"b": ok("fine")})

	h.client.Generate(context.Background(), GenerateRequest{Prompt: "x"})

	require.Len(t, h.recorder.attempts, 2)
	assert.False(t, h.recorder.attempts[0].Success)
	assert.Equal(t, "a", h.recorder.attempts[0].Model)
	assert.True(t, h.recorder.attempts[1].Success)
	assert.Equal(t, provider.KindCerebras, h.recorder.attempts[1].Provider)
}

func TestGenerate_CancelledContextStopsWalk(t *testing.T) {
	h := newHarness(t, []registry.Model{
		model("a", 200, provider.KindGroq),
		model("b", 100, provider.KindGroq),
	}, script{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.client.Generate(ctx, GenerateRequest{Prompt: "x"})
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Cause, context.Canceled))
	assert.Empty(t, h.log.list())
}

func TestGenerate_MaxTokensCappedByModel(t *testing.T) {
	var got provider.Request
	reg, err := registry.New([]registry.Model{model("m", 70, provider.KindGroq)})
	require.NoError(t, err)
	nop := zerolog.Nop()
	c := New(reg, provider.Set{provider.KindGroq: &capture{req: &got}}, Options{Logger: &nop})

	c.Generate(context.Background(), GenerateRequest{Prompt: "x", MaxTokens: 50000})
	assert.Equal(t, 1000, got.MaxTokens)
	assert.Equal(t, DefaultTemperature, got.Temperature)
}

type capture struct{ req *provider.Request }

func (c *capture) Kind() provider.Kind { return provider.KindGroq }
func (c *capture) Available() bool     { return true }
func (c *capture) ChatCompletion(_ context.Context, req provider.Request) provider.Result {
	*c.req = req
	return provider.Result{Success: true, Content: "ok"}
}
func (c *capture) JSONCompletion(ctx context.Context, req provider.Request) provider.Result {
	return c.ChatCompletion(ctx, req)
}
