// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPolling is returned when the poll interval, timeout or attempt cap is out of range.
	ErrInvalidPolling = errors.New("config: POLL_INTERVAL_MS and POLL_TIMEOUT_SEC must be positive and MAX_POLL_ATTEMPTS non-negative")
	// ErrInvalidPort is returned when PORT is out of range.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Credential settings
	GeminiAPIKey string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	KeySelection bool   `env:"KEY_SELECTION, default=true" json:"key_selection"`

	// Generation settings
	GeminiBaseURL      string `env:"GEMINI_BASE_URL" json:"gemini_base_url,omitempty"`
	ImageModel         string `env:"IMAGE_MODEL, default=gemini-3-pro-image-preview" json:"image_model"`
	VideoModel         string `env:"VIDEO_MODEL, default=veo-3.1-fast-generate-preview" json:"video_model"`
	VideoResolution    string `env:"VIDEO_RESOLUTION, default=1080p" json:"video_resolution"`
	PollIntervalMs     int    `env:"POLL_INTERVAL_MS, default=5000" json:"poll_interval_ms"`
	PollTimeoutSec     int    `env:"POLL_TIMEOUT_SEC, default=600" json:"poll_timeout_sec"`
	MaxPollAttempts    int    `env:"MAX_POLL_ATTEMPTS, default=0" json:"max_poll_attempts"`
	DownloadTimeoutSec int    `env:"DOWNLOAD_TIMEOUT_SEC, default=120" json:"download_timeout_sec"`

	// Session settings
	SessionTTLMin int `env:"SESSION_TTL_MIN, default=60" json:"session_ttl_min"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
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

// PollInterval returns the delay between video operation status queries.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollTimeout returns the overall bound on waiting for a video operation.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// DownloadTimeout returns the HTTP timeout for fetching generated videos.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

// SessionTTL returns how long an idle session is kept. Zero disables eviction.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// Load reads an optional .env file and then configuration from environment
// variables using go-envconfig. Variables already set in the environment
// take precedence over the file.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that values are within range.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.PollIntervalMs <= 0 || c.PollTimeoutSec <= 0 || c.MaxPollAttempts < 0 {
		return ErrInvalidPolling
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
		"Config{Port: %d, GeminiAPIKey: %s, KeySelection: %t, ImageModel: %s, VideoModel: %s, VideoResolution: %s, PollIntervalMs: %d, PollTimeoutSec: %d, MaxPollAttempts: %d, SessionTTLMin: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.GeminiAPIKey),
		c.KeySelection,
		c.ImageModel,
		c.VideoModel,
		c.VideoResolution,
		c.PollIntervalMs,
		c.PollTimeoutSec,
		c.MaxPollAttempts,
		c.SessionTTLMin,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "****"
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
