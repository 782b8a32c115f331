package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDataDir     = "OPTIMIZER_DATA_DIR"
	EnvDatabaseURL = "OPTIMIZER_DATABASE_URL"
	EnvLogLevel    = "OPTIMIZER_LOG_LEVEL"
)

// Load reads and parses an optimizer configuration from the given YAML file
// path, then applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config with defaults and environment
// overrides applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./optimizer.yaml, ~/.optimizer/config.yaml. When
// neither exists the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"optimizer.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".optimizer", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// applyDefaults fills every unset field with its built-in value.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".optimizer")
		} else {
			cfg.DataDir = ".optimizer"
		}
	}

	o := &cfg.Orchestrator
	if o.MaxParallel == 0 {
		o.MaxParallel = 3
	}
	if o.BatchSize == 0 {
		o.BatchSize = o.MaxParallel
	}
	if o.PollInterval == "" {
		o.PollInterval = "60s"
	}
	if o.InactivityThreshold == "" {
		o.InactivityThreshold = "10m"
	}
	if o.StuckThreshold == 0 {
		o.StuckThreshold = 3
	}
	if o.NudgeStartTier == 0 {
		o.NudgeStartTier = 5
	}
	if o.DiagnoseMinSize == 0 {
		o.DiagnoseMinSize = 70
	}
	if o.StartingBranch == "" {
		o.StartingBranch = "main"
	}

	q := &cfg.Quota
	if q.DailyLimit == 0 {
		q.DailyLimit = 15
	}
	if q.ReservedQuota == 0 {
		q.ReservedQuota = 3
	}
	if q.StateFile == "" {
		q.StateFile = filepath.Join(cfg.DataDir, "quota.json")
	}

	if cfg.Dispatch.FailureDelay == "" {
		cfg.Dispatch.FailureDelay = "1s"
	}
	if cfg.Dispatch.RateLimitCooldown == "" {
		cfg.Dispatch.RateLimitCooldown = "60s"
	}

	if cfg.Dedup.UpdateThreshold == 0 {
		cfg.Dedup.UpdateThreshold = 80
	}
	if cfg.Dedup.RelatedThreshold == 0 {
		cfg.Dedup.RelatedThreshold = 60
	}

	if cfg.Jules.APIKeyEnv == "" {
		cfg.Jules.APIKeyEnv = "JULES_API_KEY"
	}
	if cfg.Jules.BaseURL == "" {
		cfg.Jules.BaseURL = "https://jules.googleapis.com/v1alpha"
	}
	if cfg.Jules.Timeout == "" {
		cfg.Jules.Timeout = "30s"
	}

	if cfg.GitHub.Limit == 0 {
		cfg.GitHub.Limit = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = "127.0.0.1:8080"
	}
}

// applyEnv lets the environment override a few deployment-specific values.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		if cfg.Quota.StateFile == filepath.Join(cfg.DataDir, "quota.json") {
			cfg.Quota.StateFile = filepath.Join(v, "quota.json")
		}
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

// DatabaseURL returns the configured database URL, defaulting to a sqlite
// file in the data dir.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return "sqlite://" + filepath.Join(c.DataDir, "optimizer.db")
}
