package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Exec.MaxTurns != 25 {
		t.Fatalf("got MaxTurns=%d, want 25", cfg.Exec.MaxTurns)
	}
	if cfg.Exec.DefaultProvider != "anthropic" {
		t.Fatalf("got DefaultProvider=%q, want anthropic", cfg.Exec.DefaultProvider)
	}
	if cfg.Client.RequestTimeout != 60*time.Second {
		t.Fatalf("got RequestTimeout=%v, want 60s", cfg.Client.RequestTimeout)
	}
	if got := cfg.Providers.Entries["anthropic"].EnvVar; got != "ANTHROPIC_API_KEY" {
		t.Fatalf("got anthropic EnvVar=%q, want ANTHROPIC_API_KEY", got)
	}
}

func TestLoadFrom_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Exec.DefaultModel != "claude-sonnet-4-6" {
		t.Fatalf("got DefaultModel=%q, want the default", cfg.Exec.DefaultModel)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	const yamlDoc = `
exec:
  max_turns: 5
  default_provider: openai
client:
  request_timeout: 30s
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Exec.MaxTurns != 5 {
		t.Fatalf("got MaxTurns=%d, want 5", cfg.Exec.MaxTurns)
	}
	if cfg.Exec.DefaultProvider != "openai" {
		t.Fatalf("got DefaultProvider=%q, want openai", cfg.Exec.DefaultProvider)
	}
	if cfg.Client.RequestTimeout != 30*time.Second {
		t.Fatalf("got RequestTimeout=%v, want 30s", cfg.Client.RequestTimeout)
	}
	// Fields absent from the YAML document keep their default value.
	if cfg.Exec.DefaultModel != "claude-sonnet-4-6" {
		t.Fatalf("got DefaultModel=%q, want the default preserved", cfg.Exec.DefaultModel)
	}
}

func TestApplyEnv_OverridesTakePrecedence(t *testing.T) {
	t.Setenv("CODEFORGE_MAX_TURNS", "7")
	t.Setenv("CODEFORGE_DEFAULT_PROVIDER", "google")
	t.Setenv("CODEFORGE_METRICS_ENABLED", "false")

	cfg := DefaultConfig()
	ApplyEnv(&cfg)

	if cfg.Exec.MaxTurns != 7 {
		t.Fatalf("got MaxTurns=%d, want 7", cfg.Exec.MaxTurns)
	}
	if cfg.Exec.DefaultProvider != "google" {
		t.Fatalf("got DefaultProvider=%q, want google", cfg.Exec.DefaultProvider)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics disabled via env override")
	}
}

func TestDefaultPath_HonorsEnvOverride(t *testing.T) {
	t.Setenv("CODEFORGE_CONFIG", "/tmp/custom-codeforge.yaml")
	if got := DefaultPath(); got != "/tmp/custom-codeforge.yaml" {
		t.Fatalf("got %q, want override honored", got)
	}
}

func TestClientConfig_HTTPClientConfig_PassesThroughFields(t *testing.T) {
	cc := ClientConfig{
		MaxIdleConns:    4,
		MaxConnsPerHost: 8,
		IdleConnTimeout: time.Minute,
		RequestTimeout:  15 * time.Second,
		RateLimitRPS:    3,
		RateLimitBurst:  6,
	}
	hc := cc.HTTPClientConfig()
	if hc.MaxIdleConns != 4 || hc.MaxConnsPerHost != 8 {
		t.Fatalf("got %+v, want pool limits passed through", hc)
	}
	if hc.RateLimit.RequestsPerSecond != 3 || hc.RateLimit.Burst != 6 {
		t.Fatalf("got rate limit %+v, want passed through", hc.RateLimit)
	}
}
