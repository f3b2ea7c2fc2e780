package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the voice-api service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"voice-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"VOICE_API_PORT" envDefault:"8190"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Auth (identity provider JWKS)
	AuthEnabled  bool   `env:"AUTH_ENABLED" envDefault:"true"`
	AuthIssuer   string `env:"ISSUER"`
	AuthAudience string `env:"AUDIENCE"`
	AuthJWKSURL  string `env:"JWKS_URL"`

	// Database
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`

	// Realtime speech provider
	ProviderURL            string        `env:"REALTIME_PROVIDER_URL" envDefault:"wss://api.openai.com/v1/realtime"`
	ProviderAPIKey         string        `env:"REALTIME_PROVIDER_API_KEY"`
	ProviderModel          string        `env:"REALTIME_PROVIDER_MODEL" envDefault:"gpt-4o-realtime-preview"`
	ProviderDialTimeout    time.Duration `env:"REALTIME_PROVIDER_DIAL_TIMEOUT" envDefault:"10s"`
	ProviderDefaultVoice   string        `env:"REALTIME_PROVIDER_VOICE" envDefault:"alloy"`
	ProviderDefaultSpeedX  float64       `env:"REALTIME_PROVIDER_SPEED" envDefault:"1.0"`

	// Lesson content service
	LessonPlanBaseURL string        `env:"LESSON_PLAN_BASE_URL" envDefault:"http://localhost:8184"`
	LessonPlanAPIKey  string        `env:"LESSON_PLAN_API_KEY"`
	LessonPlanTimeout time.Duration `env:"LESSON_PLAN_TIMEOUT" envDefault:"5s"`

	// Session limits
	MaxSessionDuration time.Duration `env:"MAX_SESSION_DURATION" envDefault:"5m"`
	KeepaliveInterval  time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"20s"`
	DailyQuotaSeconds  int           `env:"DAILY_QUOTA_SECONDS" envDefault:"1800"`

	// Maintenance
	StaleConversationTTL   time.Duration `env:"STALE_CONVERSATION_TTL" envDefault:"24h"`
	StaleSweepCronSchedule string        `env:"STALE_SWEEP_CRON" envDefault:"0 3 * * *"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthAudience) == "" {
			return nil, fmt.Errorf("AUDIENCE is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("JWKS_URL is required when AUTH_ENABLED is true")
		}
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(cfg.ProviderAPIKey) == "" {
		return nil, fmt.Errorf("REALTIME_PROVIDER_API_KEY is required")
	}

	if cfg.MaxSessionDuration <= 0 {
		return nil, fmt.Errorf("MAX_SESSION_DURATION must be positive")
	}
	if cfg.KeepaliveInterval <= 0 {
		return nil, fmt.Errorf("KEEPALIVE_INTERVAL must be positive")
	}
	if cfg.DailyQuotaSeconds <= 0 {
		return nil, fmt.Errorf("DAILY_QUOTA_SECONDS must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
