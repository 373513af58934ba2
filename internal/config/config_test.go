package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.MaxImageBytes != 10<<20 {
		t.Errorf("expected 10MiB limit, got %d", cfg.MaxImageBytes)
	}
	if cfg.ExportWidth != 1200 || cfg.ExportQuality != 90 {
		t.Errorf("unexpected export defaults %d/%d", cfg.ExportWidth, cfg.ExportQuality)
	}
	if cfg.CaptionTimeout != 60*time.Second {
		t.Errorf("expected 60s caption timeout, got %v", cfg.CaptionTimeout)
	}
	if !cfg.AIEnabledDefault {
		t.Error("expected AI enabled by default")
	}
}

func TestLoad_ClampsInvalidValues(t *testing.T) {
	t.Setenv("EXPORT_QUALITY", "250")
	t.Setenv("EXPORT_WIDTH", "-5")
	t.Setenv("EXPORT_CONCURRENCY", "0")
	t.Setenv("MAX_IMAGE_BYTES", "0")
	t.Setenv("RESAMPLE_POLICY", " CROP ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExportQuality != 90 {
		t.Errorf("expected quality clamped to 90, got %d", cfg.ExportQuality)
	}
	if cfg.ExportWidth != 1200 {
		t.Errorf("expected width clamped to 1200, got %d", cfg.ExportWidth)
	}
	if cfg.ExportConcurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.ExportConcurrency)
	}
	if cfg.MaxImageBytes != 10<<20 {
		t.Errorf("expected default image limit, got %d", cfg.MaxImageBytes)
	}
	if cfg.ResamplePolicy != "crop" {
		t.Errorf("expected normalized policy, got %q", cfg.ResamplePolicy)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("EXPORT_WIDTH", "wide")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		StoreBackend:    "memory",
		CaptionProvider: "none",
		ResamplePolicy:  "fit",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, "STORE_BACKEND"},
		{"sqlite without path", func(c *Config) { c.StoreBackend = "sqlite" }, "SQLITE_PATH"},
		{"pathstore without key", func(c *Config) { c.StoreBackend = "pathstore" }, "PATHSTORE_API_KEY"},
		{"anthropic without key", func(c *Config) { c.CaptionProvider = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"gemini without key", func(c *Config) { c.CaptionProvider = "gemini" }, "GEMINI_API_KEY"},
		{"gemini with key", func(c *Config) { c.CaptionProvider = "gemini"; c.GeminiAPIKey = "g" }, ""},
		{"bad policy", func(c *Config) { c.ResamplePolicy = "stretch" }, "RESAMPLE_POLICY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
