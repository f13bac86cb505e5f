package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const insecureDefaultSecret = "change-this-to-a-secure-secret"

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`
	BaseHost string `env:"BASE_HOST" envDefault:"example.com"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"reqsphere"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"reqsphere_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"reqsphere"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis (session cache + token revocation set)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Token signing
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	ResetTTL      time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"168h"`

	// Sessions
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	RememberSessionTTL time.Duration `env:"REMEMBER_SESSION_TTL" envDefault:"168h"`
	SessionCacheTTL    time.Duration `env:"SESSION_CACHE_TTL" envDefault:"60s"`
	SessionSweep       time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`

	// Password hashing
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("invalid bcrypt cost: %d", cfg.BcryptCost)
	}

	// Outside development, an explicitly set, strong signing secret is required.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == insecureDefaultSecret {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RedisAddr returns the redis host:port address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
