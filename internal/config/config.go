// Package config provides application configuration loading from environment variables and .env files.
// It uses viper for flexible configuration management with sensible defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Catalog sources.
const (
	CatalogEmbedded = "embedded"
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

// Audit sinks.
const (
	AuditLog      = "log"
	AuditPostgres = "postgres"
	AuditNone     = "none"
)

// Config holds all application configuration loaded from environment variables or .env file.
// Configuration priority: environment variables > .env file > defaults.
type Config struct {
	AppEnv         string        // Application environment (dev, staging, prod)
	HTTPAddr       string        // HTTP server bind address (e.g., ":8080")
	MetricsAddr    string        // Metrics server bind address
	LogLevel       string        // zerolog level name
	CatalogSource  string        // embedded, file or postgres
	CatalogPath    string        // YAML/JSON catalog path when CatalogSource is file
	DatabaseDSN    string        // PostgreSQL connection string
	AuditSink      string        // log, postgres or none
	RateLimitPerIP int           // Requests per minute per client IP
	RequestTimeout time.Duration // Per-request handler timeout

	ReviewWebhookURL    string // Clinician review endpoint notified on escalations
	ReviewWebhookSecret string // HMAC secret for review webhook signatures

	OTLPEndpoint string // OTLP/HTTP traces endpoint; tracing is off when empty
}

// Load reads configuration from environment variables and .env file (if present).
// Environment variables take precedence over .env file values.
// Load does not validate; call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = v.ReadInConfig()    // Ignore error - .env is optional
	v.AutomaticEnv()

	setConfigDefaults(v)

	return &Config{
		AppEnv:              v.GetString("APP_ENV"),
		HTTPAddr:            v.GetString("APP_HTTP_ADDR"),
		MetricsAddr:         v.GetString("METRICS_ADDR"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		CatalogSource:       strings.ToLower(v.GetString("CATALOG_SOURCE")),
		CatalogPath:         v.GetString("CATALOG_PATH"),
		DatabaseDSN:         v.GetString("DB_DSN"),
		AuditSink:           strings.ToLower(v.GetString("AUDIT_SINK")),
		RateLimitPerIP:      v.GetInt("RATE_LIMIT_PER_IP"),
		RequestTimeout:      v.GetDuration("REQUEST_TIMEOUT"),
		ReviewWebhookURL:    v.GetString("REVIEW_WEBHOOK_URL"),
		ReviewWebhookSecret: v.GetString("REVIEW_WEBHOOK_SECRET"),
		OTLPEndpoint:        v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
// These defaults are suitable for local development.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CATALOG_SOURCE", CatalogEmbedded)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("AUDIT_SINK", AuditLog)
	v.SetDefault("RATE_LIMIT_PER_IP", 100)
	v.SetDefault("REQUEST_TIMEOUT", "5s")
}

// IsProd reports whether the app runs in production.
func (c *Config) IsProd() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration can start a server. It returns the
// first failure as a ValidationError.
//
// Validation Rules:
//  1. CatalogSource must be embedded, file or postgres
//  2. CatalogSource=file requires CatalogPath
//  3. AuditSink must be log, postgres or none
//  4. A postgres catalog or audit sink requires DatabaseDSN
//  5. HTTPAddr and MetricsAddr must be non-empty
//  6. LogLevel must be a zerolog level
//  7. RateLimitPerIP must be positive
//
// In production a review webhook must be signed.
func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogEmbedded, CatalogFile, CatalogPostgres:
	default:
		return ValidationError{
			Field:   "CATALOG_SOURCE",
			Message: fmt.Sprintf("must be 'embedded', 'file' or 'postgres', got '%s'", c.CatalogSource),
		}
	}

	if c.CatalogSource == CatalogFile && c.CatalogPath == "" {
		return ValidationError{
			Field:   "CATALOG_PATH",
			Message: "catalog path is required when CATALOG_SOURCE=file",
		}
	}

	switch c.AuditSink {
	case AuditLog, AuditPostgres, AuditNone:
	default:
		return ValidationError{
			Field:   "AUDIT_SINK",
			Message: fmt.Sprintf("must be 'log', 'postgres' or 'none', got '%s'", c.AuditSink),
		}
	}

	if (c.CatalogSource == CatalogPostgres || c.AuditSink == AuditPostgres) && c.DatabaseDSN == "" {
		return ValidationError{
			Field:   "DB_DSN",
			Message: "database DSN is required when CATALOG_SOURCE or AUDIT_SINK is postgres",
		}
	}

	if c.HTTPAddr == "" {
		return ValidationError{
			Field:   "APP_HTTP_ADDR",
			Message: "HTTP server address cannot be empty",
		}
	}

	if c.MetricsAddr == "" {
		return ValidationError{
			Field:   "METRICS_ADDR",
			Message: "metrics server address cannot be empty",
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		return ValidationError{
			Field:   "LOG_LEVEL",
			Message: fmt.Sprintf("unknown level '%s'", c.LogLevel),
		}
	}

	if c.RateLimitPerIP <= 0 {
		return ValidationError{
			Field:   "RATE_LIMIT_PER_IP",
			Message: "rate limit must be positive",
		}
	}

	if c.IsProd() && c.ReviewWebhookURL != "" && c.ReviewWebhookSecret == "" {
		return ValidationError{
			Field:   "REVIEW_WEBHOOK_SECRET",
			Message: "review webhooks must be signed in production",
		}
	}

	return nil
}

// NewLogger builds the process logger: JSON lines to stdout, or a console
// writer in dev.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, out io.Writer) zerolog.Logger {
	w := out
	if cfg.AppEnv == "dev" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "safetygate").Logger()
}
