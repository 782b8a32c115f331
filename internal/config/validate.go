package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	o := cfg.Orchestrator
	if o.MaxParallel < 1 {
		add("orchestrator.max_parallel", "must be at least 1")
	}
	if o.BatchSize < 1 {
		add("orchestrator.batch_size", "must be at least 1")
	}
	if o.StuckThreshold < 1 {
		add("orchestrator.stuck_threshold", "must be at least 1")
	}
	if o.NudgeStartTier < 0 {
		add("orchestrator.nudge_start_tier", "must not be negative")
	}
	validateDuration("orchestrator.poll_interval", o.PollInterval, &errs)
	validateDuration("orchestrator.inactivity_threshold", o.InactivityThreshold, &errs)

	q := cfg.Quota
	if q.DailyLimit < 1 {
		add("quota.daily_limit", "must be at least 1")
	}
	if q.ReservedQuota < 0 || q.ReservedQuota > q.DailyLimit {
		add("quota.reserved_quota", "must be between 0 and daily_limit (%d)", q.DailyLimit)
	}

	validateDuration("dispatch.failure_delay", cfg.Dispatch.FailureDelay, &errs)
	validateDuration("dispatch.rate_limit_cooldown", cfg.Dispatch.RateLimitCooldown, &errs)
	validateDuration("jules.timeout", cfg.Jules.Timeout, &errs)

	for name := range cfg.Providers {
		if _, err := provider.ParseKind(name); err != nil {
			add("providers."+name, "unknown provider")
		}
	}

	seen := make(map[string]bool)
	for i, m := range cfg.Models {
		field := fmt.Sprintf("models[%d].name", i)
		if m.Name == "" {
			add(field, "is required")
			continue
		}
		if seen[m.Name] {
			add(field, "duplicate override for %q", m.Name)
		}
		seen[m.Name] = true
	}

	d := cfg.Dedup
	if d.RelatedThreshold < 0 || d.UpdateThreshold > 100 || d.RelatedThreshold > d.UpdateThreshold {
		add("dedup", "thresholds must satisfy 0 <= related_threshold <= update_threshold <= 100")
	}

	if !logLevels[strings.ToLower(cfg.Logging.Level)] {
		add("logging.level", "unrecognized level %q", cfg.Logging.Level)
	}
	if f := cfg.Logging.Format; f != "text" && f != "json" {
		add("logging.format", "must be text or json, got %q", f)
	}

	return errs
}

func validateDuration(field, v string, errs *[]ValidationError) {
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", v)})
		return
	}
	if d < 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must not be negative"})
	}
}
