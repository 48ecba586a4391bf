// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration of the quorum process. Every field
// has a workable default; only the database path tends to need setting.
type Config struct {
	// DBPath is the SQLite database file. The file is created on first
	// open.
	DBPath string `env:"QUORUM_DB" envDefault:"quorum.db"`

	// DefaultPollLimit is the poll time limit in seconds applied when a
	// start-poll submission carries none.
	DefaultPollLimit int `env:"QUORUM_POLL_LIMIT" envDefault:"20"`

	// SweepInterval is how often persisted deadlines are reconciled
	// against armed timers.
	SweepInterval time.Duration `env:"QUORUM_SWEEP_INTERVAL" envDefault:"30s"`

	// DefaultLocale is the card locale for rooms with no stored
	// settings.
	DefaultLocale string `env:"QUORUM_LOCALE" envDefault:"en"`

	// Verbose switches logging to debug level.
	Verbose bool `env:"QUORUM_VERBOSE" envDefault:"false"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.DefaultPollLimit <= 0 {
		return fmt.Errorf("default poll limit must be positive, got %d", c.DefaultPollLimit)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	return nil
}
