// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrSynthAPIKeyRequired is returned when SYNTH_API_KEY is not set.
	ErrSynthAPIKeyRequired = errors.New("config: SYNTH_API_KEY is required")
	// ErrSynthEndpointRequired is returned when SYNTH_ENDPOINT is not set.
	ErrSynthEndpointRequired = errors.New("config: SYNTH_ENDPOINT is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Synthesis API settings (SPEC_FULL §4.4/§6)
	SynthAPIKey  string `env:"SYNTH_API_KEY, required" json:"-"` // Masked in JSON
	SynthAPIBase string `env:"SYNTH_API_BASE" json:"synth_api_base,omitempty"`
	SynthModelID string `env:"SYNTH_MODEL_ID, default=default" json:"synth_model_id"`
	SynthEndpoint string `env:"SYNTH_ENDPOINT, required" json:"synth_endpoint"`

	// Webhook settings
	WebhookSharedSecret string `env:"WEBHOOK_SHARED_SECRET" json:"-"` // Masked in JSON

	// CORS settings
	CORSOrigins []string `env:"CORS_ORIGINS, delimiter=," json:"cors_origins,omitempty"`

	// Watermark overlay asset URL; loaded from the environment but not
	// applied to any output by the current pipeline.
	WatermarkURL string `env:"WATERMARK_URL" json:"watermark_url,omitempty"`

	// Storage settings
	TempDir               string `env:"TEMP_DIR, default=/tmp/clipforge" json:"temp_dir"`
	StorageBaseURL        string `env:"STORAGE_BASE_URL" json:"storage_base_url,omitempty"`
	StorageServiceCredential string `env:"STORAGE_SERVICE_CREDENTIAL" json:"-"` // Masked in JSON

	// Processing settings
	ChunkTargetSec int `env:"CHUNK_TARGET_SEC, default=45" json:"chunk_target_sec"`

	// Scheduler settings (SPEC_FULL §4.1)
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=3" json:"max_concurrent_jobs"`
	TickInterval      time.Duration `env:"TICK_INTERVAL, default=10s" json:"tick_interval"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// WebhookEnabled returns true if inbound webhook requests should be gated
// behind a shared-secret bearer token.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookSharedSecret != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "SYNTH_API_KEY") {
			return nil, ErrSynthAPIKeyRequired
		}
		if strings.Contains(err.Error(), "SYNTH_ENDPOINT") {
			return nil, ErrSynthEndpointRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.SynthAPIKey == "" {
		return ErrSynthAPIKeyRequired
	}
	if c.SynthEndpoint == "" {
		return ErrSynthEndpointRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, SynthEndpoint: %s, SynthModelID: %s, TempDir: %s, StorageBaseURL: %s, "+
			"ChunkTargetSec: %d, MaxConcurrentJobs: %d, TickInterval: %s, S3Bucket: %s, S3Region: %s, "+
			"LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.SynthEndpoint,
		c.SynthModelID,
		c.TempDir,
		c.StorageBaseURL,
		c.ChunkTargetSec,
		c.MaxConcurrentJobs,
		c.TickInterval,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
