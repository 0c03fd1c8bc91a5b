// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Completion provider (OpenAI-compatible API)
	ProviderBaseURL   string `env:"PROVIDER_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ProviderAPIKey    string `env:"PROVIDER_API_KEY"`
	ProviderModel     string `env:"PROVIDER_MODEL" envDefault:"gpt-4o-mini"`
	ProviderMaxTokens int    `env:"PROVIDER_MAX_TOKENS" envDefault:"100"`

	// Billing webhook verification
	BillingWebhookSecret string        `env:"BILLING_WEBHOOK_SECRET"`
	BillingReplayWindow  time.Duration `env:"BILLING_REPLAY_WINDOW" envDefault:"5m"`

	// Per-user prompt rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPM     int  `env:"RATE_LIMIT_RPM" envDefault:"60"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Usage event pipeline
	UsagePipelineEnabled bool `env:"USAGE_PIPELINE_ENABLED" envDefault:"true"`
	UsageBatchSize       int  `env:"USAGE_BATCH_SIZE" envDefault:"500"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
