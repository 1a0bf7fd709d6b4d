package config

import (
	"fmt"
)

type QueueConfig struct {
	Url                        string `mapstructure:"url"`
	QueueUser                  string `mapstructure:"user"`
	QueuePassword              string `mapstructure:"password"`
	RecoveryExecutionQueueName string `mapstructure:"recovery-execution-queue-name"`
	QueueProcessingTimeout     int    `mapstructure:"processing-timeout"`
}

func (cfg *QueueConfig) Validate() error {
	if cfg.Url == "" {
		return fmt.Errorf("missing queue url")
	}

	if cfg.QueueUser == "" {
		return fmt.Errorf("missing queue user")
	}

	if cfg.QueuePassword == "" {
		return fmt.Errorf("missing queue password")
	}

	if cfg.RecoveryExecutionQueueName == "" {
		return fmt.Errorf("missing recovery execution queue name")
	}

	// Saga executions are long running; the ceiling guards against a stuck
	// consumer holding a delivery forever, not against slow chains.
	if cfg.QueueProcessingTimeout <= 0 {
		return fmt.Errorf("queue processing timeout must be a positive number of seconds")
	}
	return nil
}
