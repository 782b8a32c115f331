package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
data_dir: /var/lib/optimizer
orchestrator:
  max_parallel: 5
  poll_interval: 30s
  stuck_threshold: 4
  auto_approve_plans: false
quota:
  daily_limit: 100
  reserved_quota: 10
dispatch:
  failure_delay: 250ms
providers:
  groq:
    api_key_env: MY_GROQ_KEY
  cloudflare:
    disabled: true
models:
  - name: llama-3.3-70b
    priority: 10
  - name: qwen-3-235b
    working: false
github:
  owner: octocat
`

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvLogLevel, "")
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "optimizer.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DataDir != "/var/lib/optimizer" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/var/lib/optimizer")
	}
	if cfg.Orchestrator.MaxParallel != 5 {
		t.Errorf("MaxParallel = %d, want 5", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Orchestrator.AutoApprove() {
		t.Error("AutoApprove() = true, want false")
	}
	if cfg.Quota.DailyLimit != 100 || cfg.Quota.ReservedQuota != 10 {
		t.Errorf("Quota = %+v, want 100/10", cfg.Quota)
	}
	if got := cfg.Providers["groq"].APIKeyEnv; got != "MY_GROQ_KEY" {
		t.Errorf("groq api_key_env = %q, want MY_GROQ_KEY", got)
	}
	if !cfg.Providers["cloudflare"].Disabled {
		t.Error("cloudflare should be disabled")
	}
	if len(cfg.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(cfg.Models))
	}
	if cfg.Models[0].Priority == nil || *cfg.Models[0].Priority != 10 {
		t.Errorf("Models[0].Priority = %v, want 10", cfg.Models[0].Priority)
	}
	if cfg.Models[1].Working == nil || *cfg.Models[1].Working {
		t.Errorf("Models[1].Working = %v, want false", cfg.Models[1].Working)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}

func TestDefaultsApplied(t *testing.T) {
	clearEnv(t)
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Orchestrator.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want max_parallel (5)", cfg.Orchestrator.BatchSize)
	}
	if cfg.Orchestrator.InactivityThreshold != "10m" {
		t.Errorf("InactivityThreshold = %q, want 10m", cfg.Orchestrator.InactivityThreshold)
	}
	if cfg.Orchestrator.NudgeStartTier != 5 {
		t.Errorf("NudgeStartTier = %d, want 5", cfg.Orchestrator.NudgeStartTier)
	}
	if cfg.Quota.StateFile != "/var/lib/optimizer/quota.json" {
		t.Errorf("StateFile = %q", cfg.Quota.StateFile)
	}
	if cfg.Dedup.UpdateThreshold != 80 || cfg.Dedup.RelatedThreshold != 60 {
		t.Errorf("Dedup = %+v, want 80/60", cfg.Dedup)
	}
	if cfg.Jules.BaseURL != "https://jules.googleapis.com/v1alpha" {
		t.Errorf("Jules.BaseURL = %q", cfg.Jules.BaseURL)
	}
	if got := cfg.DatabaseURL(); got != "sqlite:///var/lib/optimizer/optimizer.db" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, "/tmp/opt")
	t.Setenv(EnvDatabaseURL, "postgres://u@localhost/opt")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Parse([]byte("quota:\n  daily_limit: 20\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.DataDir != "/tmp/opt" {
		t.Errorf("DataDir = %q, want /tmp/opt", cfg.DataDir)
	}
	if cfg.Quota.StateFile != "/tmp/opt/quota.json" {
		t.Errorf("StateFile = %q, want /tmp/opt/quota.json", cfg.Quota.StateFile)
	}
	if cfg.DatabaseURL() != "postgres://u@localhost/opt" {
		t.Errorf("DatabaseURL() = %q", cfg.DatabaseURL())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "quota: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("Load() error = %v, want reading config file", err)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"reserved above limit", "quota:\n  daily_limit: 5\n  reserved_quota: 6\n", "quota.reserved_quota"},
		{"bad poll interval", "orchestrator:\n  poll_interval: soon\n", "orchestrator.poll_interval"},
		{"negative failure delay", "dispatch:\n  failure_delay: -1s\n", "dispatch.failure_delay"},
		{"unknown provider", "providers:\n  acme: {}\n", "providers.acme"},
		{"model without name", "models:\n  - priority: 1\n", "models[0].name"},
		{"duplicate model", "models:\n  - name: a\n  - name: a\n", "models[1].name"},
		{"inverted dedup", "dedup:\n  update_threshold: 50\n  related_threshold: 70\n", "dedup"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			errs := Validate(cfg)
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want an error on %s", errs, tt.field)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	clearEnv(t)
	if errs := Validate(Default()); len(errs) != 0 {
		t.Errorf("Validate(Default()) = %v, want none", errs)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("Duration(\"\") = %v, want 1s", got)
	}
	if got := Duration("90s", time.Second); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v", got)
	}
	if got := Duration("nope", time.Minute); got != time.Minute {
		t.Errorf("Duration(nope) = %v, want fallback", got)
	}
}
