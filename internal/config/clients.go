package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ExternalClientConfig is the shared shape for the collaborator service
// endpoints. Timeout is in milliseconds.
type ExternalClientConfig struct {
	Host    string `mapstructure:"host"`
	Timeout int    `mapstructure:"timeout"`
}

func (cfg *ExternalClientConfig) Validate() error {
	if cfg.Host == "" {
		return errors.New("host cannot be empty")
	}

	if cfg.Timeout <= 0 {
		return errors.New("timeout cannot be smaller or equal to 0")
	}

	parsedURL, err := url.ParseRequestURI(cfg.Host)
	if err != nil {
		return errors.New("invalid client host")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("host must start with http or https")
	}

	return nil
}

// ClientsConfig wires the four collaborator services. Policy is optional: the
// policy gateway is a defense-in-depth layer and the saga runs without it.
type ClientsConfig struct {
	Balance *ExternalClientConfig `mapstructure:"balance"`
	Router  *ExternalClientConfig `mapstructure:"router"`
	Naming  *ExternalClientConfig `mapstructure:"naming"`
	Policy  *ExternalClientConfig `mapstructure:"policy"`
}

func (cfg *ClientsConfig) Validate() error {
	if cfg.Balance == nil {
		return errors.New("missing balance client config")
	}
	if err := cfg.Balance.Validate(); err != nil {
		return fmt.Errorf("invalid balance client config: %w", err)
	}

	if cfg.Router == nil {
		return errors.New("missing router client config")
	}
	if err := cfg.Router.Validate(); err != nil {
		return fmt.Errorf("invalid router client config: %w", err)
	}

	if cfg.Naming == nil {
		return errors.New("missing naming client config")
	}
	if err := cfg.Naming.Validate(); err != nil {
		return fmt.Errorf("invalid naming client config: %w", err)
	}

	if cfg.Policy != nil {
		if err := cfg.Policy.Validate(); err != nil {
			return fmt.Errorf("invalid policy client config: %w", err)
		}
	}

	return nil
}
