package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func executeCommand(args ...string) (string, error) {
	configFile, logLevel, logFormat = "", "", ""
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// testConfig writes a config whose data dir is a fresh temp dir and returns
// its path.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "optimizer.yaml")
	body := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"quota:\n  daily_limit: 5\n  reserved_quota: 1\n" +
		"logging:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version", "--config", testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"run", "queue", "quota", "models", "ask", "dedup",
		"session", "analytics", "serve", "config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestQueueSubcommands(t *testing.T) {
	subcmds := []string{"add", "list", "remove", "clear"}
	for _, sub := range subcmds {
		out, err := executeCommand("queue", sub, "--help")
		if err != nil {
			t.Errorf("queue %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("queue %s --help produced no output", sub)
		}
	}
}

func TestAnalyticsSubcommands(t *testing.T) {
	subcmds := []string{"models", "sessions", "throughput"}
	for _, sub := range subcmds {
		out, err := executeCommand("analytics", sub, "--help")
		if err != nil {
			t.Errorf("analytics %s --help failed: %v", sub, err)
		}
		if out == "" {
			t.Errorf("analytics %s --help produced no output", sub)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestBadLogFormat(t *testing.T) {
	_, err := executeCommand("version", "--config", testConfig(t), "--log-format", "xml")
	if err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestConfigValidate(t *testing.T) {
	out, err := executeCommand("config", "validate", "--config", testConfig(t))
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConfigValidate_BadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "orchestrator:\n  poll_interval: soon\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := executeCommand("config", "validate", "--config", path)
	if err == nil {
		t.Fatalf("expected validation failure, got output: %s", out)
	}
	if !strings.Contains(out, "poll_interval") {
		t.Errorf("expected poll_interval error, got: %s", out)
	}
}

func TestConfigPromptList(t *testing.T) {
	out, err := executeCommand("config", "prompt", "--config", testConfig(t))
	if err != nil {
		t.Fatalf("config prompt: %v", err)
	}
	for _, name := range []string{"create-repo", "update-repo", "nudge", "diagnose"} {
		if !strings.Contains(out, name) {
			t.Errorf("prompt list missing %q", name)
		}
	}
}

func TestQuotaCommand(t *testing.T) {
	cfg := testConfig(t)
	out, err := executeCommand("quota", "--config", cfg, "--format", "json")
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if !strings.Contains(out, `"daily_limit": 5`) || !strings.Contains(out, `"remaining": 5`) {
		t.Errorf("unexpected quota output: %s", out)
	}

	out, err = executeCommand("quota", "check", "critical", "--config", cfg)
	if err != nil {
		t.Fatalf("quota check: %v", err)
	}
	if !strings.Contains(out, "5 critical-priority") {
		t.Errorf("unexpected check output: %s", out)
	}
}

func TestModelsCommand(t *testing.T) {
	out, err := executeCommand("models", "--config", testConfig(t), "--format", "text")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "TIER") || !strings.Contains(out, "PROVIDER") {
		t.Errorf("unexpected models output: %s", out)
	}
}

func TestDBCommands(t *testing.T) {
	cfg := testConfig(t)
	if out, err := executeCommand("db", "migrate", "--config", cfg); err != nil {
		t.Fatalf("db migrate: %v\n%s", err, out)
	}
	if _, err := executeCommand("db", "reset", "--config", cfg, "--confirm=false"); err == nil {
		t.Error("db reset without --confirm should fail")
	}
	if _, err := executeCommand("db", "reset", "--config", cfg, "--confirm"); err != nil {
		t.Errorf("db reset: %v", err)
	}
	out, err := executeCommand("db", "prune", "--config", cfg, "--older-than", "24h")
	if err != nil {
		t.Fatalf("db prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 0") {
		t.Errorf("unexpected prune output: %s", out)
	}
}

func TestSessionHistory_Empty(t *testing.T) {
	cfg := testConfig(t)
	if _, err := executeCommand("session", "history", "nope", "--config", cfg, "--format", "table"); err == nil {
		t.Error("expected error for unknown session")
	}
	out, err := executeCommand("session", "recent", "--config", cfg, "--format", "table", "--limit", "5")
	if err != nil {
		t.Fatalf("session recent: %v", err)
	}
	if !strings.Contains(out, "No session events") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://bot:secret@db:5432/opt", "postgres://bot:xxxxx@db:5432/opt"},
		{"sqlite:///tmp/opt.db", "sqlite:///tmp/opt.db"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"Café Météo Prévisions", 8, "Café ..."},
		{"日本語のタイトル", 5, "日本..."},
		{"abcdef", 2, "ab"},
		{"abcdef", 0, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestBrokenConfig_VersionStillWorks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("quota: [not, a, map\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	SetVersion("test-version")
	out, err := executeCommand("version", "--config", path, "--log-level", "error")
	if err != nil {
		t.Fatalf("version with broken config: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("unexpected version output: %s", out)
	}

	if _, err := executeCommand("quota", "--config", path, "--log-level", "error", "--format", "text"); err == nil {
		t.Error("quota should report the broken config")
	}
}
