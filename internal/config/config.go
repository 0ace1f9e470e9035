// Package config loads process configuration from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/exposed-backend/internal/store"
)

type Config struct {
	Addr        string `env:"EXPOSED_ADDR" envDefault:":8080"`
	BaseURL     string `env:"EXPOSED_BASE_URL" envDefault:"http://localhost:8080"`
	Store       string `env:"EXPOSED_STORE" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"EXPOSED_SQLITE_PATH" envDefault:"data/exposed.db"`
	DBVerbose   bool   `env:"EXPOSED_DB_VERBOSE"`

	ModeratorPassword string        `env:"MODERATOR_PASSWORD"`
	SecretKey         string        `env:"SECRET_KEY"`
	SessionTTL        time.Duration `env:"EXPOSED_SESSION_TTL" envDefault:"12h"`
	SecureCookies     bool          `env:"EXPOSED_SECURE_COOKIES"`
	TokenTTL          time.Duration `env:"EXPOSED_TOKEN_TTL" envDefault:"720h"`

	NATSURL     string `env:"NATS_URL"`
	NATSToken   string `env:"NATS_TOKEN"`
	NATSSubject string `env:"EXPOSED_NATS_SUBJECT" envDefault:"exposed.transcript"`

	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit      int           `env:"EXPOSED_RATE_LIMIT" envDefault:"120"`
	AllowedOrigins []string      `env:"EXPOSED_ALLOWED_ORIGINS" envSeparator:","`
	WSIdleTimeout  time.Duration `env:"EXPOSED_WS_IDLE_TIMEOUT" envDefault:"10m"`

	LogLevel string `env:"EXPOSED_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"EXPOSED_LOG_DEV"`
}

// Load reads envFile when it exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.Store {
	case store.DriverMemory, store.DriverSQLite:
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown EXPOSED_STORE %q", c.Store)
	}
	if c.BaseURL == "" {
		return errors.New("EXPOSED_BASE_URL is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("EXPOSED_TOKEN_TTL must be positive")
	}
	if c.RateLimit < 0 {
		return errors.New("EXPOSED_RATE_LIMIT must not be negative")
	}
	return nil
}

// ValidateServe adds the checks that only matter when serving HTTP.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ModeratorPassword == "" {
		return errors.New("MODERATOR_PASSWORD is required")
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("EXPOSED_SESSION_TTL must be positive")
	}
	return nil
}

func (c Config) StoreOptions() store.Options {
	return store.Options{
		Driver:      c.Store,
		DatabaseURL: c.DatabaseURL,
		SQLitePath:  c.SQLitePath,
		Verbose:     c.DBVerbose,
	}
}
