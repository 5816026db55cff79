package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	// Clear any environment variables to test defaults
	for _, key := range []string{
		"APP_ENV", "APP_HTTP_ADDR", "METRICS_ADDR", "LOG_LEVEL", "CATALOG_SOURCE",
		"CATALOG_PATH", "DB_DSN", "AUDIT_SINK", "RATE_LIMIT_PER_IP", "REQUEST_TIMEOUT",
		"REVIEW_WEBHOOK_URL", "REVIEW_WEBHOOK_SECRET", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// t.Setenv("") leaves the variable set but empty, which viper treats as unset
	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected MetricsAddr=':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.CatalogSource != CatalogEmbedded {
		t.Errorf("Expected CatalogSource='embedded', got '%s'", cfg.CatalogSource)
	}
	if cfg.AuditSink != AuditLog {
		t.Errorf("Expected AuditSink='log', got '%s'", cfg.AuditSink)
	}
	if cfg.RateLimitPerIP != 100 {
		t.Errorf("Expected RateLimitPerIP=100, got %d", cfg.RateLimitPerIP)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("Expected RequestTimeout=5s, got %s", cfg.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CATALOG_SOURCE", "File")
	t.Setenv("CATALOG_PATH", "/etc/safetygate/catalog.yaml")
	t.Setenv("AUDIT_SINK", "none")
	t.Setenv("RATE_LIMIT_PER_IP", "250")
	t.Setenv("REQUEST_TIMEOUT", "750ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.IsProd() {
		t.Errorf("Expected prod env, got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected HTTPAddr=':9999', got '%s'", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel='debug', got '%s'", cfg.LogLevel)
	}
	if cfg.CatalogSource != CatalogFile || cfg.CatalogPath != "/etc/safetygate/catalog.yaml" {
		t.Errorf("unexpected catalog config %q %q", cfg.CatalogSource, cfg.CatalogPath)
	}
	if cfg.AuditSink != AuditNone {
		t.Errorf("Expected AuditSink='none', got '%s'", cfg.AuditSink)
	}
	if cfg.RateLimitPerIP != 250 {
		t.Errorf("Expected RateLimitPerIP=250, got %d", cfg.RateLimitPerIP)
	}
	if cfg.RequestTimeout != 750*time.Millisecond {
		t.Errorf("Expected RequestTimeout=750ms, got %s", cfg.RequestTimeout)
	}
}

func validConfig() Config {
	return Config{
		AppEnv:         "dev",
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		CatalogSource:  CatalogEmbedded,
		AuditSink:      AuditLog,
		RateLimitPerIP: 100,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown catalog source", func(c *Config) { c.CatalogSource = "s3" }, "CATALOG_SOURCE"},
		{"file without path", func(c *Config) { c.CatalogSource = CatalogFile }, "CATALOG_PATH"},
		{"file with path", func(c *Config) { c.CatalogSource = CatalogFile; c.CatalogPath = "c.yaml" }, ""},
		{"unknown audit sink", func(c *Config) { c.AuditSink = "kafka" }, "AUDIT_SINK"},
		{"postgres catalog without dsn", func(c *Config) { c.CatalogSource = CatalogPostgres }, "DB_DSN"},
		{"postgres audit without dsn", func(c *Config) { c.AuditSink = AuditPostgres }, "DB_DSN"},
		{"postgres with dsn", func(c *Config) {
			c.CatalogSource = CatalogPostgres
			c.AuditSink = AuditPostgres
			c.DatabaseDSN = "postgres://localhost/safetygate"
		}, ""},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "APP_HTTP_ADDR"},
		{"empty metrics addr", func(c *Config) { c.MetricsAddr = "" }, "METRICS_ADDR"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"empty log level", func(c *Config) { c.LogLevel = "" }, "LOG_LEVEL"},
		{"zero rate limit", func(c *Config) { c.RateLimitPerIP = 0 }, "RATE_LIMIT_PER_IP"},
		{"unsigned webhook in dev", func(c *Config) { c.ReviewWebhookURL = "https://review.example" }, ""},
		{"unsigned webhook in prod", func(c *Config) {
			c.AppEnv = "prod"
			c.ReviewWebhookURL = "https://review.example"
		}, "REVIEW_WEBHOOK_SECRET"},
		{"signed webhook in prod", func(c *Config) {
			c.AppEnv = "production"
			c.ReviewWebhookURL = "https://review.example"
			c.ReviewWebhookSecret = "whsec"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Fatalf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !strings.Contains(ve.Error(), tt.wantField) {
				t.Fatalf("Error() = %q", ve.Error())
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()
	cfg.AppEnv = "prod"
	cfg.LogLevel = "warn"

	log := newLogger(&cfg, &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("slug", "uti").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output in prod: %v", err)
	}
	if entry["slug"] != "uti" || entry["service"] != "safetygate" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLogger_DevUsesConsole(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()

	logger := newLogger(&cfg, &buf)
	logger.Info().Msg("hello")

	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("expected console output in dev, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("missing message in %q", buf.String())
	}
}
