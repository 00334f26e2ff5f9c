// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrTextAPIKeyRequired is returned when TEXT_API_KEY is not set.
	ErrTextAPIKeyRequired = errors.New("config: TEXT_API_KEY is required")
	// ErrTTSAPIKeyRequired is returned when TTS_API_KEY is not set.
	ErrTTSAPIKeyRequired = errors.New("config: TTS_API_KEY is required")
	// ErrThresholdOrder is returned when the similarity thresholds are not ordered
	// exact >= high >= medium.
	ErrThresholdOrder = errors.New("config: similarity thresholds must satisfy exact >= high >= medium")
	// ErrThresholdRange is returned when a similarity threshold is outside [0, 1].
	ErrThresholdRange = errors.New("config: similarity thresholds must be within [0, 1]")
)

// Thresholds holds the similarity decision thresholds for the cache.
// The invariant exact >= high >= medium is enforced by Validate.
type Thresholds struct {
	// Medium is the floor below which candidates are discarded entirely.
	Medium float64 `env:"SIMILARITY_MEDIUM, default=0.85" json:"medium"`
	// High is the threshold at or above which a candidate is reused.
	High float64 `env:"SIMILARITY_HIGH, default=0.90" json:"high"`
	// Exact is the score reported for hash-identical matches.
	Exact float64 `env:"SIMILARITY_EXACT, default=0.98" json:"exact"`
}

// Validate checks the threshold ordering and range invariants.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Medium, t.High, t.Exact} {
		if v < 0 || v > 1 {
			return ErrThresholdRange
		}
	}
	if t.Exact < t.High || t.High < t.Medium {
		return ErrThresholdOrder
	}
	return nil
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Text generation provider settings
	TextAPIKey  string `env:"TEXT_API_KEY, required" json:"-"` // Masked in JSON
	TextBaseURL string `env:"TEXT_BASE_URL, default=https://api.openai.com/v1" json:"text_base_url"`
	TextModel   string `env:"TEXT_MODEL, default=gpt-4o-mini" json:"text_model"`

	// TTS provider settings (primary + optional fallback)
	TTSAPIKey          string `env:"TTS_API_KEY, required" json:"-"` // Masked in JSON
	TTSBaseURL         string `env:"TTS_BASE_URL, default=https://api.elevenlabs.io/v1" json:"tts_base_url"`
	TTSFallbackAPIKey  string `env:"TTS_FALLBACK_API_KEY" json:"-"` // Masked in JSON
	TTSFallbackBaseURL string `env:"TTS_FALLBACK_BASE_URL" json:"tts_fallback_base_url,omitempty"`

	// Embedding provider settings
	EmbeddingAPIKey  string `env:"EMBEDDING_API_KEY" json:"-"` // Masked in JSON
	EmbeddingBaseURL string `env:"EMBEDDING_BASE_URL, default=https://api.openai.com/v1" json:"embedding_base_url"`
	EmbeddingModel   string `env:"EMBEDDING_MODEL, default=text-embedding-3-small" json:"embedding_model"`

	// Cache settings
	NATSURL     string `env:"NATS_URL" json:"nats_url,omitempty"`
	CacheBucket string `env:"CACHE_BUCKET, default=meditation-audio-cache" json:"cache_bucket"`

	// Similarity decision thresholds
	Similarity Thresholds `json:"similarity"`

	// Planner settings
	WordsPerMinute int `env:"WORDS_PER_MINUTE, default=130" json:"words_per_minute"`

	// Processing settings
	MaxConcurrentSegments int `env:"MAX_CONCURRENT_SEGMENTS, default=3" json:"max_concurrent_segments"`
	ProviderTimeoutSec    int `env:"PROVIDER_TIMEOUT_SEC, default=60" json:"provider_timeout_sec"`
	AssemblyTimeoutSec    int `env:"ASSEMBLY_TIMEOUT_SEC, default=300" json:"assembly_timeout_sec"`

	// Storage settings
	TempDir    string `env:"TEMP_DIR, default=/tmp/meditation-engine" json:"temp_dir"`
	FFmpegPath string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`

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

// NATSEnabled returns true if a durable cache store is configured.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set or thresholds are invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "TEXT_API_KEY") {
			return nil, ErrTextAPIKeyRequired
		}
		if strings.Contains(err.Error(), "TTS_API_KEY") {
			return nil, ErrTTSAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.TextAPIKey == "" {
		return ErrTextAPIKeyRequired
	}
	if c.TTSAPIKey == "" {
		return ErrTTSAPIKeyRequired
	}
	return c.Similarity.Validate()
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
		"Config{Port: %d, TextModel: %s, EmbeddingModel: %s, NATSURL: %s, CacheBucket: %s, Similarity: {%.2f/%.2f/%.2f}, WPM: %d, MaxConcurrentSegments: %d, TempDir: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TextModel,
		c.EmbeddingModel,
		c.NATSURL,
		c.CacheBucket,
		c.Similarity.Medium, c.Similarity.High, c.Similarity.Exact,
		c.WordsPerMinute,
		c.MaxConcurrentSegments,
		c.TempDir,
		c.S3Bucket,
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
