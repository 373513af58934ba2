package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8090"`

	// Storage
	StoreBackend    string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"sopmaster.db"`
	PathstoreURL    string `env:"PATHSTORE_URL" envDefault:"http://localhost:8080"`
	PathstoreAPIKey string `env:"PATHSTORE_API_KEY"`
	PathstorePrefix string `env:"PATHSTORE_PREFIX" envDefault:"sopmaster"`

	// Persist step images as data URLs next to the steps key so they survive a restart.
	PersistImageData bool `env:"PERSIST_IMAGE_DATA" envDefault:"true"`

	// Captioning
	CaptionProvider  string        `env:"CAPTION_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey  string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel   string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	GeminiModel      string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	CaptionTimeout   time.Duration `env:"CAPTION_TIMEOUT" envDefault:"60s"`
	AIEnabledDefault bool          `env:"AI_ENABLED_DEFAULT" envDefault:"true"`

	// Circuit breaker around the caption provider
	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerTimeout     time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerInterval    time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`

	// Upload limits
	MaxImageBytes int64 `env:"MAX_IMAGE_BYTES" envDefault:"10485760"` // 10MB

	// Export
	ExportWidth       int    `env:"EXPORT_WIDTH" envDefault:"1200"`
	ExportQuality     int    `env:"EXPORT_QUALITY" envDefault:"90"`
	ResamplePolicy    string `env:"RESAMPLE_POLICY" envDefault:"fit"`
	ExportConcurrency int    `env:"EXPORT_CONCURRENCY" envDefault:"4"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load parses the environment and clamps out-of-range values back to their defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.CaptionProvider = strings.ToLower(strings.TrimSpace(cfg.CaptionProvider))
	cfg.ResamplePolicy = strings.ToLower(strings.TrimSpace(cfg.ResamplePolicy))

	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = 60 * time.Second
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	if cfg.ExportWidth <= 0 {
		cfg.ExportWidth = 1200
	}
	if cfg.ExportQuality <= 0 || cfg.ExportQuality > 100 {
		cfg.ExportQuality = 90
	}
	if cfg.ExportConcurrency <= 0 {
		cfg.ExportConcurrency = 4
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case "pathstore":
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required when STORE_BACKEND=pathstore")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite, pathstore or memory, got %q", c.StoreBackend)
	}

	switch c.CaptionProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when CAPTION_PROVIDER=anthropic")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when CAPTION_PROVIDER=gemini")
		}
	case "none":
	default:
		return fmt.Errorf("CAPTION_PROVIDER must be anthropic, gemini or none, got %q", c.CaptionProvider)
	}

	switch c.ResamplePolicy {
	case "fit", "crop":
	default:
		return fmt.Errorf("RESAMPLE_POLICY must be fit or crop, got %q", c.ResamplePolicy)
	}
	return nil
}
