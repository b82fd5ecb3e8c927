package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, key := range []string{
		"PORT", "SYNTH_API_KEY", "SYNTH_API_BASE", "SYNTH_MODEL_ID", "SYNTH_ENDPOINT",
		"WEBHOOK_SHARED_SECRET", "CORS_ORIGINS", "WATERMARK_URL", "TEMP_DIR",
		"STORAGE_BASE_URL", "STORAGE_SERVICE_CREDENTIAL", "CHUNK_TARGET_SEC",
		"MAX_CONCURRENT_JOBS", "TICK_INTERVAL", "S3_BUCKET", "S3_REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing SYNTH_API_KEY returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("SYNTH_ENDPOINT", "https://synth.example/v1/submit")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSynthAPIKeyRequired)
	})

	t.Run("missing SYNTH_ENDPOINT returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("SYNTH_API_KEY", "test-api-key")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSynthEndpointRequired)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		clearEnv()
		t.Setenv("SYNTH_API_KEY", "test-api-key")
		t.Setenv("SYNTH_ENDPOINT", "https://synth.example/v1/submit")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "test-api-key", cfg.SynthAPIKey)
		assert.Equal(t, "https://synth.example/v1/submit", cfg.SynthEndpoint)
	})
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()
	t.Setenv("SYNTH_API_KEY", "test-api-key")
	t.Setenv("SYNTH_ENDPOINT", "https://synth.example/v1/submit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/clipforge", cfg.TempDir)
	assert.Equal(t, 45, cfg.ChunkTargetSec)
	assert.Equal(t, "default", cfg.SynthModelID)
	assert.Equal(t, 3, cfg.MaxConcurrentJobs)
	assert.Equal(t, 10*time.Second, cfg.TickInterval)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	t.Setenv("SYNTH_API_KEY", "custom-api-key")
	t.Setenv("SYNTH_ENDPOINT", "https://synth.example/v1/submit")
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("CHUNK_TARGET_SEC", "60")
	t.Setenv("MAX_CONCURRENT_JOBS", "5")
	t.Setenv("TICK_INTERVAL", "15s")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, 60, cfg.ChunkTargetSec)
	assert.Equal(t, 5, cfg.MaxConcurrentJobs)
	assert.Equal(t, 15*time.Second, cfg.TickInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidIntegerReturnsError(t *testing.T) {
	clearEnv()
	t.Setenv("SYNTH_API_KEY", "test-api-key")
	t.Setenv("SYNTH_ENDPOINT", "https://synth.example/v1/submit")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CHUNK_TARGET_SEC", "invalid")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_WebhookEnabled(t *testing.T) {
	assert.True(t, (&Config{WebhookSharedSecret: "shh"}).WebhookEnabled())
	assert.False(t, (&Config{}).WebhookEnabled())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:          8080,
		SynthAPIKey:   "secret-key",
		SynthEndpoint: "https://synth.example/v1/submit",
		TempDir:       "/tmp/test",
		ChunkTargetSec: 45,
		S3Bucket:      "bucket",
		S3Region:      "region",
		LogFormat:     "json",
		LogLevel:      "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "https://synth.example/v1/submit")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.IsType(t, &slog.JSONHandler{}, logger.Handler())

	// Shape of what a slog JSON handler writes
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	// Just verify it returns a valid logger
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{
			SynthAPIKey:   "key",
			SynthEndpoint: "endpoint",
		}
		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("missing API key", func(t *testing.T) {
		cfg := &Config{
			SynthEndpoint: "endpoint",
		}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrSynthAPIKeyRequired)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := &Config{
			SynthAPIKey: "key",
		}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrSynthEndpointRequired)
	})
}
