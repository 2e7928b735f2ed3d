package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
)

// Session is the ambient cloud context a reconciliation runs in: the active
// project and region, plus where reconciliation state is persisted. It is
// read from the environment once and passed explicitly everywhere.
type Session struct {
	Project string `env:"GCEVM_PROJECT"`
	Region  string `env:"GCEVM_REGION"`

	// StateFile is the local state location. Ignored when StateBucket is set.
	StateFile string `env:"GCEVM_STATE_FILE" envDefault:"gcevm-state.json"`

	// StateBucket selects the S3-compatible remote state store.
	StateBucket   string `env:"GCEVM_STATE_BUCKET"`
	StateKey      string `env:"GCEVM_STATE_KEY" envDefault:"gcevm/state.json"`
	StateEndpoint string `env:"GCEVM_STATE_ENDPOINT"`
	StateRegion   string `env:"GCEVM_STATE_REGION" envDefault:"auto"`
	StateAccess   string `env:"GCEVM_STATE_ACCESS_KEY"`
	StateSecret   string `env:"GCEVM_STATE_SECRET_KEY"`
}

// SessionFromEnv reads the session from the environment.
func SessionFromEnv() (*Session, error) {
	var s Session
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if s.Project == "" {
		return nil, &ValidationError{Field: "GCEVM_PROJECT", Reason: "is required"}
	}
	if s.Region == "" {
		return nil, &ValidationError{Field: "GCEVM_REGION", Reason: "is required"}
	}
	return &s, nil
}
