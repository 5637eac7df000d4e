// Package config loads chatwire daemon configuration from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven configuration for the chatwire daemon.
// Every field has a default; nothing is required except the endpoints of
// the transports actually in use.
type Config struct {
	// Transports
	LegacyURL     string `env:"CHATWIRE_LEGACY_URL" envDefault:"ws://localhost:8080/ws"`
	EnterpriseURL string `env:"CHATWIRE_AMQP_URL"`
	RedisURL      string `env:"CHATWIRE_REDIS_URL"`
	AuthToken     string `env:"CHATWIRE_AUTH_TOKEN"`

	// Migration
	Mode                 string `env:"CHATWIRE_MIGRATION_MODE" envDefault:"hybrid"`
	EnableLegacyFallback bool   `env:"CHATWIRE_LEGACY_FALLBACK" envDefault:"true"`
	UseEnterpriseAdapter bool   `env:"CHATWIRE_USE_ENTERPRISE" envDefault:"false"`

	// Chat feature toggles
	EnableTypingIndicators            bool `env:"CHATWIRE_TYPING_INDICATORS" envDefault:"true"`
	EnableOnlineStatus                bool `env:"CHATWIRE_ONLINE_STATUS" envDefault:"true"`
	EnablePresenceManagement          bool `env:"CHATWIRE_PRESENCE" envDefault:"true"`
	EnableMessageDeliveryConfirmation bool `env:"CHATWIRE_DELIVERY_CONFIRMATION" envDefault:"true"`

	// Timing
	TypingIndicatorTimeout time.Duration `env:"CHATWIRE_TYPING_TIMEOUT" envDefault:"3s"`
	OnlineStatusHeartbeat  time.Duration `env:"CHATWIRE_ONLINE_HEARTBEAT" envDefault:"30s"`
	PresenceUpdateInterval time.Duration `env:"CHATWIRE_PRESENCE_INTERVAL" envDefault:"60s"`
	MaxMessageRetries      int           `env:"CHATWIRE_MAX_MESSAGE_RETRIES" envDefault:"3"`

	// Logging
	LogLevel string `env:"CHATWIRE_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Mode {
	case "legacy_only", "adapter_only", "hybrid":
	default:
		return fmt.Errorf("invalid migration mode %q", c.Mode)
	}
	if c.Mode == "adapter_only" && c.EnterpriseURL == "" {
		return fmt.Errorf("adapter_only mode requires CHATWIRE_AMQP_URL")
	}
	return nil
}
