package config

import (
	"fmt"
	"time"

	"github.com/novavault/recovery-orchestrator/internal/utils"
)

// RetryConfig parameterizes a bounded retry loop. MaxAttempts includes the
// first execution; IntervalMs is the initial wait and BackoffFactor multiplies
// it after each failed attempt.
type RetryConfig struct {
	MaxAttempts   int     `mapstructure:"max-attempts"`
	IntervalMs    int     `mapstructure:"interval-ms"`
	BackoffFactor float64 `mapstructure:"backoff-factor"`
}

func (cfg *RetryConfig) Validate() error {
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("max-attempts must be a positive integer")
	}

	if cfg.IntervalMs <= 0 {
		return fmt.Errorf("interval-ms must be a positive integer")
	}

	if cfg.BackoffFactor < 1 {
		return fmt.Errorf("backoff-factor must be at least 1")
	}
	return nil
}

func (cfg *RetryConfig) Policy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		Interval:      time.Duration(cfg.IntervalMs) * time.Millisecond,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// SagaConfig bounds the waits inside the recovery saga. Collaborator covers
// per-call retries against external services; Confirmation covers the longer
// polling loop for cross-chain transfer confirmation.
type SagaConfig struct {
	Collaborator RetryConfig `mapstructure:"collaborator-retry"`
	Confirmation RetryConfig `mapstructure:"confirmation-poll"`
}

func (cfg *SagaConfig) Validate() error {
	if err := cfg.Collaborator.Validate(); err != nil {
		return fmt.Errorf("invalid collaborator-retry config: %w", err)
	}

	if err := cfg.Confirmation.Validate(); err != nil {
		return fmt.Errorf("invalid confirmation-poll config: %w", err)
	}
	return nil
}
