package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/chirag127/chirag127.github.io-sub000/internal/config"
	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/github"
	"github.com/chirag127/chirag127.github.io-sub000/internal/jules"
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
	"github.com/chirag127/chirag127.github.io-sub000/internal/registry"
)

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// newGitHub is swapped out in tests.
var newGitHub = func() *github.Client {
	return github.NewClient(&github.ExecRunner{})
}

// configBaseDir is where relative prompt override paths resolve.
func configBaseDir() string {
	if configFile != "" {
		return filepath.Dir(configFile)
	}
	return "."
}

// openDB opens and migrates the event log. The default sqlite file lives in
// the data dir, which is created on demand.
func openDB(cfg *config.Config) (*db.DB, error) {
	if cfg.Database.URL == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	d, err := db.Open(cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func newRegistry(cfg *config.Config) (*registry.Registry, error) {
	overrides := make([]registry.Override, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		overrides = append(overrides, registry.Override{Name: m.Name, Working: m.Working, Priority: m.Priority})
	}
	reg, err := registry.Default().WithOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("model overrides: %w", err)
	}
	return reg, nil
}

// newAdapters builds one adapter per provider kind. Credentials come from the
// environment; a kind without a key is present but unavailable.
func newAdapters(cfg *config.Config) provider.Set {
	cooldown := config.Duration(cfg.Dispatch.RateLimitCooldown, time.Minute)
	set := make(provider.Set, len(provider.Kinds))
	for _, k := range provider.Kinds {
		pc := cfg.Providers[k.String()]
		if pc.Disabled {
			continue
		}
		s := provider.EnvSettings(k, pc.APIKeyEnv)
		s.BaseURL = pc.BaseURL
		s.RateLimitCooldown = cooldown
		s.Logger = log.Logger
		set[k] = provider.New(k, s)
	}
	return set
}

// newDispatch builds the fallback client. Attempts are recorded when d is
// non-nil.
func newDispatch(cfg *config.Config, d *db.DB) (*dispatch.Client, error) {
	reg, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	opts := dispatch.Options{
		FailureDelay: config.Duration(cfg.Dispatch.FailureDelay, dispatch.DefaultFailureDelay),
	}
	if d != nil {
		opts.Recorder = &attemptRecorder{db: d}
	}
	return dispatch.New(reg, newAdapters(cfg), opts), nil
}

func newQuota(cfg *config.Config) (*quota.Manager, error) {
	m, err := quota.New(cfg.Quota.StateFile, cfg.Quota.DailyLimit, cfg.Quota.ReservedQuota, quota.Options{})
	if err != nil {
		return nil, fmt.Errorf("load quota: %w", err)
	}
	return m, nil
}

func newPrompts(cfg *config.Config) (*prompt.Set, error) {
	set, err := prompt.LoadSet(cfg.Prompts, configBaseDir())
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return set, nil
}

func newJules(cfg *config.Config) (*jules.Client, error) {
	client := jules.New(os.Getenv(cfg.Jules.APIKeyEnv), jules.Options{
		BaseURL: cfg.Jules.BaseURL,
		Timeout: config.Duration(cfg.Jules.Timeout, 30*time.Second),
	})
	if !client.Configured() {
		return nil, fmt.Errorf("jules API key not set: export %s", cfg.Jules.APIKeyEnv)
	}
	return client, nil
}

// stack is the fully wired orchestrator and its collaborators.
type stack struct {
	db       *db.DB
	quota    *quota.Manager
	dispatch *dispatch.Client
	orch     *orchestrator.Orchestrator
}

func (s *stack) Close() error {
	return s.db.Close()
}

func buildStack(cfg *config.Config, keepAlive bool) (*stack, error) {
	api, err := newJules(cfg)
	if err != nil {
		return nil, err
	}
	prompts, err := newPrompts(cfg)
	if err != nil {
		return nil, err
	}
	q, err := newQuota(cfg)
	if err != nil {
		return nil, err
	}
	d, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := newDispatch(cfg, d)
	if err != nil {
		d.Close()
		return nil, err
	}

	oc := orchestrator.FromConfig(cfg)
	oc.KeepAlive = keepAlive
	orch := orchestrator.New(oc, api, gen, q, orchestrator.Options{Journal: d, Prompts: prompts})
	return &stack{db: d, quota: q, dispatch: gen, orch: orch}, nil
}

// loadPending moves persisted pending items into the orchestrator queue and
// returns how many were new. Items the orchestrator already holds are skipped,
// so it is safe to call repeatedly.
func loadPending(d *db.DB, orch *orchestrator.Orchestrator) (int, error) {
	items, err := d.QueuePending()
	if err != nil {
		return 0, err
	}
	added := 0
	for _, it := range items {
		_, err := orch.Enqueue(workItemFromQueue(it))
		switch {
		case errors.Is(err, orchestrator.ErrDuplicateItem):
		case err != nil:
			return added, fmt.Errorf("enqueue %s: %w", it.ID, err)
		default:
			added++
		}
	}
	return added, nil
}

func workItemFromQueue(it db.QueueItem) orchestrator.WorkItem {
	w := orchestrator.WorkItem{
		ID:             it.ID,
		Repo:           it.Repo,
		Source:         it.Source,
		Title:          it.Title,
		Prompt:         it.Prompt,
		Priority:       quota.Priority(it.Priority),
		StartingBranch: it.StartingBranch,
	}
	for _, layout := range []string{"2006-01-02 15:04:05.000000", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, it.EnqueuedAt); err == nil {
			w.EnqueuedAt = t
			break
		}
	}
	return w
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// redactURL hides the password in a database URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
