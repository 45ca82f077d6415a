package qcorpus

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the qcorpus configuration file.
type Config struct {
	Source    string          `yaml:"source"`
	Year      int             `yaml:"year"`
	Database  string          `yaml:"database"`
	RunLogDir string          `yaml:"run_log_dir"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Log       LogConfig       `yaml:"log"`
}

// DedupConfig controls deduplication.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
	Semantic  *bool   `yaml:"semantic"`
}

// SemanticEnabled reports whether the semantic phase should run.
func (c DedupConfig) SemanticEnabled() bool {
	return c.Semantic == nil || *c.Semantic
}

// EmbeddingConfig selects the embedding service.
type EmbeddingConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment variables that override the file.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvDatabase = "QCORPUS_DB"
	EnvLogLevel = "QCORPUS_LOG_LEVEL"
)

// ParseConfig decodes a single YAML document, rejecting unknown fields.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse config: multiple YAML documents are not supported")
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads, normalizes and validates a config file. An empty
// path yields the defaults. Environment overrides are applied last.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = ParseConfig(data); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg)
	NormalizeConfig(&cfg)
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// NormalizeConfig fills defaults.
func NormalizeConfig(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = defaultSource
	}
	if cfg.Dedup.Threshold == 0 {
		cfg.Dedup.Threshold = DefaultSimilarityThreshold
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.RunLogDir == "" {
		cfg.RunLogDir = "log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// ConfigError lists every invalid field.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config validation failed"
	}
	return "invalid config:\n" + strings.Join(e.Issues, "\n")
}

// ValidateConfig checks field ranges.
func ValidateConfig(cfg Config) error {
	var issues []string
	if cfg.Dedup.Threshold <= 0 || cfg.Dedup.Threshold > 1 {
		issues = append(issues, fmt.Sprintf("dedup.threshold: must be in (0, 1], got %v", cfg.Dedup.Threshold))
	}
	if cfg.Year < 0 {
		issues = append(issues, fmt.Sprintf("year: must not be negative, got %d", cfg.Year))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log.format: unknown format %q", cfg.Log.Format))
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}
