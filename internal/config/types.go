package config

import "time"

// Config is the top-level configuration parsed from optimizer YAML.
type Config struct {
	DataDir      string              `yaml:"data_dir"`
	Orchestrator Orchestrator        `yaml:"orchestrator"`
	Quota        Quota               `yaml:"quota"`
	Dispatch     Dispatch            `yaml:"dispatch"`
	Providers    map[string]Provider `yaml:"providers"`
	Models       []ModelOverride     `yaml:"models"`
	Dedup        Dedup               `yaml:"dedup"`
	Jules        Jules               `yaml:"jules"`
	GitHub       GitHub              `yaml:"github"`
	Database     Database            `yaml:"database"`
	Logging      Logging             `yaml:"logging"`
	Web          Web                 `yaml:"web"`
	Prompts      map[string]string   `yaml:"prompts"`
}

// Orchestrator controls session creation and monitoring.
type Orchestrator struct {
	MaxParallel         int     `yaml:"max_parallel"`
	BatchSize           int     `yaml:"batch_size"`
	PollInterval        string  `yaml:"poll_interval"`
	InactivityThreshold string  `yaml:"inactivity_threshold"`
	StuckThreshold      int     `yaml:"stuck_threshold"` // consecutive idle polls; reaching it marks STUCK
	NudgeStartTier      int     `yaml:"nudge_start_tier"`
	DiagnoseMinSize     float64 `yaml:"diagnose_min_size"`
	AutoApprovePlans    *bool   `yaml:"auto_approve_plans"`
	StartingBranch      string  `yaml:"starting_branch"`
}

// Quota is the daily session budget.
type Quota struct {
	DailyLimit    int    `yaml:"daily_limit"`
	ReservedQuota int    `yaml:"reserved_quota"`
	StateFile     string `yaml:"state_file"`
}

// Dispatch tunes the fallback client.
type Dispatch struct {
	FailureDelay      string `yaml:"failure_delay"`
	RateLimitCooldown string `yaml:"rate_limit_cooldown"`
}

// Provider overrides credentials lookup and endpoint for one vendor. The map
// key is the provider kind name (cerebras, groq, ...).
type Provider struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Disabled  bool   `yaml:"disabled"`
}

// ModelOverride adjusts one catalog entry by name.
type ModelOverride struct {
	Name     string `yaml:"name"`
	Working  *bool  `yaml:"working"`
	Priority *int   `yaml:"priority"`
}

// Dedup holds the similarity thresholds, 0-100.
type Dedup struct {
	UpdateThreshold  float64 `yaml:"update_threshold"`
	RelatedThreshold float64 `yaml:"related_threshold"`
}

// Jules configures the coding-agent API client.
type Jules struct {
	APIKeyEnv           string `yaml:"api_key_env"`
	BaseURL             string `yaml:"base_url"`
	Timeout             string `yaml:"timeout"`
	RequirePlanApproval bool   `yaml:"require_plan_approval"`
}

// GitHub configures repository listing through the gh CLI.
type GitHub struct {
	Owner string `yaml:"owner"`
	Limit int    `yaml:"limit"`
}

// Database selects the event log backend. An empty URL means a sqlite file
// under the data dir; postgres:// URLs use pgx.
type Database struct {
	URL string `yaml:"url"`
}

// Logging configures zerolog output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Web configures the status API.
type Web struct {
	Addr string `yaml:"addr"`
}

// Duration parses a config duration string, returning fallback when the value
// is empty or malformed. Validate reports malformed values.
func Duration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// AutoApprove reports whether plans are approved without a human.
func (o Orchestrator) AutoApprove() bool {
	return o.AutoApprovePlans == nil || *o.AutoApprovePlans
}
