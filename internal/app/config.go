package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath  string // .hcl file or directory
	ProjectsDir string // parent of every pipeline root

	// Restart continues the most recent pipeline root instead of creating
	// a new one.
	Restart bool
	// DirectOrdinal runs only the stage with this ordinal in the most recent
	// pipeline root. Negative disables direct mode.
	DirectOrdinal int

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	PollInterval    time.Duration
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.ProjectsDir == "" {
		return nil, errors.New("ProjectsDir is a required configuration field and cannot be empty")
	}
	if cfg.Restart && cfg.DirectOrdinal >= 0 {
		return nil, errors.New("restart and direct mode cannot be combined")
	}
	if cfg.PollInterval < 0 {
		return nil, errors.New("PollInterval cannot be negative")
	}
	return &cfg, nil
}
