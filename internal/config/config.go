package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	AdminPasswordHash      string `env:"ADMIN_PASSWORD_HASH"`
	PasscodeTTLSeconds     int    `env:"PASSCODE_TTL_SECONDS" envDefault:"60"`
	PasscodeMaxTTLSeconds  int    `env:"PASSCODE_MAX_TTL_SECONDS" envDefault:"1800"`
	CheckInRateLimitPerMin int    `env:"CHECKIN_RATE_LIMIT_PER_MIN" envDefault:"10"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PasscodeTTL() time.Duration {
	return time.Duration(c.PasscodeTTLSeconds) * time.Second
}

func (c *Config) PasscodeMaxTTL() time.Duration {
	return time.Duration(c.PasscodeMaxTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.PasscodeTTLSeconds <= 0 {
		return fmt.Errorf("PASSCODE_TTL_SECONDS must be positive")
	}
	if c.PasscodeMaxTTLSeconds < c.PasscodeTTLSeconds {
		return fmt.Errorf("PASSCODE_MAX_TTL_SECONDS must be >= PASSCODE_TTL_SECONDS")
	}

	if isProduction {
		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: destructive admin endpoints disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
