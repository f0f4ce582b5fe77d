// Package config loads and validates service configuration.
//
// Configuration is YAML on disk, checked against an embedded CUE
// schema so malformed values fail at startup instead of at first use.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config holds all service settings.
type Config struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen" json:"listen"`

	// Database is the SQLite database path.
	Database string `yaml:"database" json:"database"`

	// BaseURL is this service's public base address, used to build
	// push callbacks for external services.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	External ExternalConfig `yaml:"external" json:"external"`
	Webhook  WebhookConfig  `yaml:"webhook" json:"webhook"`
}

// ExternalConfig tunes external value fetching.
type ExternalConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// WebhookConfig tunes change notification delivery.
type WebhookConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Database: "cellflow.db",
		BaseURL:  "http://localhost:8080",
		LogLevel: "info",
		External: ExternalConfig{
			TimeoutSeconds: 10,
			MaxBodyBytes:   2048,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: 10,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Timeout returns the fetch timeout as a duration.
func (c ExternalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the delivery timeout as a duration.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
