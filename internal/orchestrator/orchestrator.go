// Package orchestrator drives coding-agent sessions from a priority queue
// through creation, monitoring, nudging and stuck recovery, bounded by a
// parallelism cap and the daily quota.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chirag127/chirag127.github.io-sub000/internal/config"
	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/jules"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

var (
	// ErrBudgetExhausted means the daily quota refused the next queued item.
	ErrBudgetExhausted = errors.New("session budget exhausted")
	// ErrPassInProgress is returned when RunPass is entered concurrently.
	ErrPassInProgress = errors.New("monitoring pass already in progress")
	// ErrDuplicateItem is returned by Enqueue for an id seen before.
	ErrDuplicateItem = errors.New("work item already enqueued")
)

// AgentAPI is the slice of the coding-agent API the orchestrator drives.
type AgentAPI interface {
	CreateSession(ctx context.Context, r jules.CreateRequest) (*jules.Session, error)
	GetSession(ctx context.Context, id string) (*jules.Session, error)
	ApprovePlan(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id, prompt string) error
	ListActivities(ctx context.Context, id string, pageSize int) ([]jules.Activity, error)
}

// Generator produces nudges and stuck diagnoses.
type Generator interface {
	GenerateJSON(ctx context.Context, req dispatch.GenerateRequest) provider.Result
	GenerateWithTier(ctx context.Context, req dispatch.GenerateRequest, startTier int) provider.Result
}

// Budget gates session creation.
type Budget interface {
	CanCreateSession(p quota.Priority) bool
	Headroom(p quota.Priority) int
	ConsumeQuota(sessionID, repo string, p quota.Priority) (bool, error)
}

// Journal persists transitions and queue status. *db.DB implements it.
type Journal interface {
	LogSessionEvent(sessionID, repo, event, detail string) error
	QueueUpdateStatus(id, status, sessionID string) error
}

// Config tunes the orchestrator.
type Config struct {
	Owner               string
	MaxParallel         int
	BatchSize           int
	PollInterval        time.Duration
	InactivityThreshold time.Duration
	// StuckThreshold is the number of consecutive idle polls, inclusive,
	// after which a session is STUCK: with 3 the third idle poll trips it.
	StuckThreshold      int
	NudgeStartTier      int
	DiagnoseMinSize     float64
	AutoApprovePlans    bool
	StartingBranch      string
	RequirePlanApproval bool
	// KeepAlive keeps Run polling after the queue drains.
	KeepAlive bool
}

// FromConfig maps the file configuration onto Config.
func FromConfig(c *config.Config) Config {
	o := c.Orchestrator
	return Config{
		Owner:               c.GitHub.Owner,
		MaxParallel:         o.MaxParallel,
		BatchSize:           o.BatchSize,
		PollInterval:        config.Duration(o.PollInterval, time.Minute),
		InactivityThreshold: config.Duration(o.InactivityThreshold, 10*time.Minute),
		StuckThreshold:      o.StuckThreshold,
		NudgeStartTier:      o.NudgeStartTier,
		DiagnoseMinSize:     o.DiagnoseMinSize,
		AutoApprovePlans:    o.AutoApprove(),
		StartingBranch:      o.StartingBranch,
		RequirePlanApproval: c.Jules.RequirePlanApproval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.MaxParallel
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 10 * time.Minute
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 3
	}
	if c.StartingBranch == "" {
		c.StartingBranch = "main"
	}
	return c
}

// Options carries collaborators that have sensible defaults.
type Options struct {
	Journal Journal
	Prompts *prompt.Set
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Orchestrator owns the queue and every session it created. One mutex guards
// sessions, queue and stats; it is never held across a network call.
type Orchestrator struct {
	cfg     Config
	api     AgentAPI
	gen     Generator
	budget  Budget
	journal Journal
	prompts *prompt.Set
	now     func() time.Time
	log     zerolog.Logger

	inPass atomic.Bool

	mu       sync.Mutex
	queue    pending
	sessions map[string]*Session
	known    map[string]bool
	stats    Stats
}

// New builds an Orchestrator.
func New(cfg Config, api AgentAPI, gen Generator, budget Budget, opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		api:      api,
		gen:      gen,
		budget:   budget,
		journal:  opts.Journal,
		prompts:  opts.Prompts,
		now:      opts.Now,
		sessions: make(map[string]*Session),
		known:    make(map[string]bool),
	}
	if o.prompts == nil {
		o.prompts = prompt.NewSet(nil)
	}
	if o.now == nil {
		o.now = time.Now
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	o.log = logger.With().Str("component", "orchestrator").Logger()
	return o
}

// Enqueue adds item to the queue, assigning an id and timestamp if missing.
func (o *Orchestrator) Enqueue(item WorkItem) (WorkItem, error) {
	if item.Repo == "" {
		return WorkItem{}, errors.New("work item has no repo")
	}
	if item.Prompt == "" {
		return WorkItem{}, fmt.Errorf("work item for %s has no prompt", item.Repo)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = o.now()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.known[item.ID] {
		return WorkItem{}, fmt.Errorf("%s: %w", item.ID, ErrDuplicateItem)
	}
	o.known[item.ID] = true
	o.queue.push(item)
	o.log.Debug().Str("item", item.ID).Str("repo", item.Repo).Stringer("priority", item.Priority).Msg("enqueued")
	return item, nil
}

// Queue returns the pending items in the order they will be started.
func (o *Orchestrator) Queue() []WorkItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.items()
}

// Sessions returns copies of every tracked session, oldest first.
func (o *Orchestrator) Sessions() []Session {
	o.mu.Lock()
	out := make([]Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, *s)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Session returns a copy of the session with the given local or remote id.
func (o *Orchestrator) Session(id string) (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[id]; ok {
		return *s, true
	}
	for _, s := range o.sessions {
		if s.RemoteID == id {
			return *s, true
		}
	}
	return Session{}, false
}

// Stats returns the counters plus a census of session states.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stats
	st.Queued = o.queue.len()
	for _, s := range o.sessions {
		switch {
		case s.State == StateCompleted:
			st.Completed++
		case s.State == StateFailed:
			st.Failed++
		case s.State.Running():
			st.Running++
		}
	}
	return st
}

// Prune forgets terminal sessions idle for longer than olderThan and returns
// how many were removed.
func (o *Orchestrator) Prune(olderThan time.Duration) int {
	cutoff := o.now().Add(-olderThan)
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, s := range o.sessions {
		if s.State.Terminal() && s.LastActivity.Before(cutoff) {
			delete(o.sessions, id)
			n++
		}
	}
	return n
}

// runningLocked counts sessions holding a parallelism slot.
func (o *Orchestrator) runningLocked() int {
	n := 0
	for _, s := range o.sessions {
		if s.State.Running() {
			n++
		}
	}
	return n
}

// Idle reports whether there is nothing left to drive: no live sessions and
// either an empty queue or an exhausted budget.
func (o *Orchestrator) Idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		if !s.State.Terminal() {
			return false
		}
	}
	return o.queue.len() == 0 || o.stats.BudgetExhausted
}

// CreateBatch starts sessions for queued items while slots, batch size and
// quota allow. It returns the number of sessions it started; when the quota
// refused an item the error is ErrBudgetExhausted and the item stays at the
// front of the queue.
func (o *Orchestrator) CreateBatch(ctx context.Context) (int, error) {
	type job struct {
		item WorkItem
		sess Session
	}

	o.mu.Lock()
	slots := o.cfg.MaxParallel - o.runningLocked()
	if slots > o.cfg.BatchSize {
		slots = o.cfg.BatchSize
	}
	var (
		jobs      []job
		exhausted bool
	)
	for len(jobs) < slots {
		item, ok := o.queue.pop()
		if !ok {
			break
		}
		if !o.budget.CanCreateSession(item.Priority) || o.budget.Headroom(item.Priority) <= len(jobs) {
			o.queue.pushFront(item)
			exhausted = true
			break
		}
		now := o.now()
		s := &Session{
			ID:           uuid.NewString(),
			ItemID:       item.ID,
			Repo:         item.Repo,
			Source:       item.Source,
			Title:        item.Title,
			Prompt:       item.Prompt,
			Priority:     item.Priority,
			State:        StateCreating,
			CreatedAt:    now,
			LastActivity: now,
		}
		o.sessions[s.ID] = s
		jobs = append(jobs, job{item: item, sess: *s})
	}
	if len(jobs) > 0 || exhausted {
		o.stats.BudgetExhausted = exhausted
	}
	o.mu.Unlock()

	if exhausted {
		o.log.Info().Int("remaining_in_queue", o.Stats().Queued).Msg("quota exhausted, deferring queue")
	}

	var created atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxParallel)
	for _, j := range jobs {
		g.Go(func() error {
			defer o.guard(j.sess, true)
			s, evs := o.create(ctx, j.sess, j.item)
			if s.State == StateActive {
				created.Add(1)
			}
			o.commit(s, evs)
			return nil
		})
	}
	_ = g.Wait()

	n := int(created.Load())
	if exhausted {
		return n, ErrBudgetExhausted
	}
	return n, nil
}

// PassResult summarises one RunPass.
type PassResult struct {
	Polled  int `json:"polled"`
	Created int `json:"created"`
}

// RunPass polls every live session once, then starts new sessions from the
// queue. Concurrent calls fail with ErrPassInProgress.
func (o *Orchestrator) RunPass(ctx context.Context) (PassResult, error) {
	if !o.inPass.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassInProgress
	}
	defer o.inPass.Store(false)

	o.mu.Lock()
	o.stats.Passes++
	var live []Session
	for _, s := range o.sessions {
		if !s.State.Terminal() && s.RemoteID != "" {
			live = append(live, *s)
		}
	}
	o.mu.Unlock()

	if len(live) > 0 {
		g := new(errgroup.Group)
		g.SetLimit(len(live))
		for _, s := range live {
			g.Go(func() error {
				defer o.guard(s, false)
				next, evs := o.poll(ctx, s)
				o.commit(next, evs)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := PassResult{Polled: len(live)}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	n, err := o.CreateBatch(ctx)
	res.Created = n
	return res, err
}

// Run repeats RunPass every poll interval until ctx is cancelled or, unless
// KeepAlive is set, nothing is left to do.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := o.RunPass(ctx)
		switch {
		case errors.Is(err, ErrBudgetExhausted):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			return fmt.Errorf("monitoring pass: %w", err)
		}
		o.log.Debug().Int("polled", res.Polled).Int("created", res.Created).Msg("pass complete")

		if !o.cfg.KeepAlive && o.Idle() {
			st := o.Stats()
			o.log.Info().Int("completed", st.Completed).Int("failed", st.Failed).Int("queued", st.Queued).Msg("nothing left to do")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// guard recovers a panic in one session step. A panic during creation fails
// the session so it does not hold a slot forever; during polling the session
// keeps its last committed state.
func (o *Orchestrator) guard(s Session, creating bool) {
	r := recover()
	if r == nil {
		return
	}
	o.log.Error().Str("session", s.ID).Str("repo", s.Repo).Interface("panic", r).Msg("session step panicked")
	o.mu.Lock()
	o.stats.Panics++
	o.mu.Unlock()
	if creating {
		var evs []event
		s.LastError = fmt.Sprint(r)
		o.move(&s, StateFailed, "panic during creation", &evs)
		o.commit(s, evs)
	}
}

// commit stores s and applies its events to the stats, then journals them
// outside the lock.
func (o *Orchestrator) commit(s Session, evs []event) {
	o.mu.Lock()
	cp := s
	o.sessions[s.ID] = &cp
	for _, ev := range evs {
		switch ev.action {
		case actionCreated:
			o.stats.Created++
		case actionCreateFailed:
			o.stats.CreateFailures++
		case actionPlanApproved:
			o.stats.PlansApproved++
		case actionNudge:
			o.stats.Nudges++
		case actionNudgeFallback:
			o.stats.NudgeFallbacks++
		case actionRecovered:
			o.stats.Recoveries++
		case actionRecoveryFailed:
			o.stats.RecoveryFailures++
		case actionPollError:
			o.stats.PollErrors++
		}
	}
	o.mu.Unlock()

	if o.journal == nil {
		return
	}
	for _, ev := range evs {
		if err := o.journal.LogSessionEvent(s.journalID(), s.Repo, ev.action, ev.detail); err != nil {
			o.log.Warn().Err(err).Str("session", s.journalID()).Msg("journal session event")
		}
		status := ""
		switch {
		case ev.action == actionCreated:
			status = db.QueueActive
		case ev.action == actionCreateFailed:
			status = db.QueueDropped
		case ev.action == string(StateCompleted):
			status = db.QueueCompleted
		case ev.action == string(StateFailed):
			status = db.QueueFailed
		}
		if status == "" {
			continue
		}
		if err := o.journal.QueueUpdateStatus(s.ItemID, status, s.RemoteID); err != nil {
			o.log.Debug().Err(err).Str("item", s.ItemID).Msg("queue status not persisted")
		}
	}
}
