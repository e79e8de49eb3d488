// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	// Cache (Redis)
	RedisURL        string        `env:"REDIS_URL,required"`
	RedisPoolSize   int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"60s"`

	// Public URL of the store API, used for checkout return pages and manifests
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled    bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitPublicEnabled bool `env:"RATE_LIMIT_PUBLIC_ENABLED" envDefault:"true"`
	RateLimitPublicRPS     int  `env:"RATE_LIMIT_PUBLIC_RPS" envDefault:"50"`
	RateLimitPublicBurst   int  `env:"RATE_LIMIT_PUBLIC_BURST" envDefault:"20"`
	RateLimitProviderRPS   int  `env:"RATE_LIMIT_PROVIDER_RPS" envDefault:"20"`
	RateLimitProviderBurst int  `env:"RATE_LIMIT_PROVIDER_BURST" envDefault:"40"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://store.example.com,https://dev.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Sessions
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// Payments
	PlatformFeePercent     int    `env:"PLATFORM_FEE_PERCENT" envDefault:"30"`
	StripeSecretKey        string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `env:"STRIPE_WEBHOOK_SECRET"`
	FlutterwaveSecretKey   string `env:"FLUTTERWAVE_SECRET_KEY"`
	FlutterwaveWebhookHash string `env:"FLUTTERWAVE_WEBHOOK_HASH"`
	FlutterwaveBaseURL     string `env:"FLUTTERWAVE_BASE_URL" envDefault:"https://api.flutterwave.com"`

	// Payouts run on a standard five-field cron schedule (default: 03:00 on the 1st)
	PayoutEnabled  bool   `env:"PAYOUT_ENABLED" envDefault:"false"`
	PayoutSchedule string `env:"PAYOUT_SCHEDULE" envDefault:"0 3 1 * *"`

	// Developer notification webhooks
	WebhookWorkerEnabled bool `env:"WEBHOOK_WORKER_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StripeEnabled reports whether Stripe credentials are configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// FlutterwaveEnabled reports whether Flutterwave credentials are configured.
func (c *Config) FlutterwaveEnabled() bool {
	return c.FlutterwaveSecretKey != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.PlatformFeePercent < 0 || c.PlatformFeePercent > 100 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_PERCENT must be within 0..100, got %v", c.PlatformFeePercent))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if _, err := cron.ParseStandard(c.PayoutSchedule); err != nil {
		errs = append(errs, fmt.Errorf("PAYOUT_SCHEDULE: %w", err))
	}
	if c.StripeEnabled() && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	if c.FlutterwaveEnabled() && c.FlutterwaveWebhookHash == "" {
		errs = append(errs, errors.New("FLUTTERWAVE_WEBHOOK_HASH is required when FLUTTERWAVE_SECRET_KEY is set"))
	}
	if c.CatalogCacheTTL < 0 {
		errs = append(errs, errors.New("CATALOG_CACHE_TTL must not be negative"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Variables already set in the environment win over
// the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
