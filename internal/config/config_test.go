package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validEnv sets the minimum required env vars for a valid config.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/testdb")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
}

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "does-not-matter"))
	// CONFIG_PATH points at a missing file → explicit path error expected.
	if _, err := Load(); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}

	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.AutoAcceptThreshold != 0.93 {
		t.Errorf("AutoAcceptThreshold = %v, want 0.93", cfg.Pipeline.AutoAcceptThreshold)
	}
	if cfg.Pipeline.ReviewThreshold != 0.70 {
		t.Errorf("ReviewThreshold = %v, want 0.70", cfg.Pipeline.ReviewThreshold)
	}
	if cfg.Pipeline.MaxBracketLength != 300 {
		t.Errorf("MaxBracketLength = %d, want 300", cfg.Pipeline.MaxBracketLength)
	}
	if cfg.Batch.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.Batch.PollInterval)
	}
	if cfg.Batch.MaxRequests != 10000 {
		t.Errorf("MaxRequests = %d, want 10000", cfg.Batch.MaxRequests)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	validEnv(t)
	dir := t.TempDir()
	path := writeYAML(t, dir, `
pipeline:
  auto_accept_threshold: 0.80
  event_batch_size: 5
log:
  format: "text"
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PIPELINE_AUTO_ACCEPT_THRESHOLD", "0.95")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.AutoAcceptThreshold != 0.95 {
		t.Errorf("AutoAcceptThreshold = %v, want env override 0.95", cfg.Pipeline.AutoAcceptThreshold)
	}
	if cfg.Pipeline.EventBatchSize != 5 {
		t.Errorf("EventBatchSize = %d, want yaml value 5", cfg.Pipeline.EventBatchSize)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	t.Setenv("DATABASE_DSN", "placeholder")
	os.Unsetenv("DATABASE_DSN")
	t.Setenv("CONFIG_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DATABASE_DSN")
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PIPELINE_AUTO_ACCEPT_THRESHOLD", "0.50")
	t.Setenv("PIPELINE_REVIEW_THRESHOLD", "0.90")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when review_threshold > auto_accept_threshold")
	}
}

func TestValidate_BadBatchConfig(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("BATCH_MAX_REQUESTS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for max_requests = 0")
	}
}
