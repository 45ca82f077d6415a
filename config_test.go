package qcorpus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvDatabase, "")
	t.Setenv(EnvLogLevel, "")
}

// TestLoadConfigDefaults checks that an empty path yields defaults.
func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "unknown" || cfg.Dedup.Threshold != DefaultSimilarityThreshold {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Embedding.Model != DefaultEmbeddingModel || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.Dedup.SemanticEnabled() {
		t.Fatalf("expected semantic dedup enabled by default")
	}
}

// TestLoadConfigFileAndEnv checks file values and environment overrides.
func TestLoadConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvDatabase, "/tmp/env.db")

	path := filepath.Join(t.TempDir(), "qcorpus.yaml")
	content := `source: ENARE
year: 2024
database: file.db
dedup:
  threshold: 0.9
  semantic: false
embedding:
  model: local-model
  base_url: http://localhost:8080/v1
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "ENARE" || cfg.Year != 2024 || cfg.Dedup.Threshold != 0.9 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Dedup.SemanticEnabled() {
		t.Fatalf("expected semantic dedup disabled")
	}
	if cfg.Embedding.APIKey != "from-env" || cfg.Database != "/tmp/env.db" {
		t.Fatalf("expected environment overrides, got %+v", cfg)
	}
	if cfg.Embedding.BaseURL != "http://localhost:8080/v1" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

// TestParseConfigRejectsUnknownFields checks strict decoding.
func TestParseConfigRejectsUnknownFields(t *testing.T) {
	if _, err := ParseConfig([]byte("sorce: typo\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := ParseConfig([]byte("source: a\n---\nsource: b\n")); err == nil {
		t.Fatalf("expected multiple document error")
	}
	if _, err := ParseConfig(nil); err != nil {
		t.Fatalf("expected empty config to parse, got %v", err)
	}
}

// TestValidateConfig checks that every issue is reported.
func TestValidateConfig(t *testing.T) {
	cfg := Config{Year: -1, Dedup: DedupConfig{Threshold: 1.5}, Log: LogConfig{Level: "loud", Format: "xml"}}

	err := ValidateConfig(cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if len(cfgErr.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", cfgErr.Issues)
	}
	if !strings.Contains(err.Error(), "dedup.threshold") {
		t.Fatalf("expected threshold issue, got %v", err)
	}
}
