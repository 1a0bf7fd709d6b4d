package config

import (
	"errors"
	"fmt"
)

const maxSupportedChains = 20

// ChainsConfig declares the fixed chain set a recovery sweeps over and the
// single settlement chain balances are consolidated onto. Chain names follow
// the Circle convention, e.g. ETH-SEPOLIA, MATIC-AMOY, AVAX-FUJI, ARB-SEPOLIA.
type ChainsConfig struct {
	Asset      string   `mapstructure:"asset"`
	Supported  []string `mapstructure:"supported"`
	Settlement string   `mapstructure:"settlement"`
}

func (cfg *ChainsConfig) Validate() error {
	if cfg.Asset == "" {
		return errors.New("missing asset symbol")
	}

	if len(cfg.Supported) == 0 {
		return errors.New("supported chain set cannot be empty")
	}

	if len(cfg.Supported) > maxSupportedChains {
		return fmt.Errorf("supported chain set cannot exceed %d chains", maxSupportedChains)
	}

	seen := make(map[string]struct{}, len(cfg.Supported))
	for _, chain := range cfg.Supported {
		if chain == "" {
			return errors.New("supported chain name cannot be empty")
		}
		if _, ok := seen[chain]; ok {
			return fmt.Errorf("duplicate supported chain: %s", chain)
		}
		seen[chain] = struct{}{}
	}

	if cfg.Settlement == "" {
		return errors.New("missing settlement chain")
	}

	if _, ok := seen[cfg.Settlement]; !ok {
		return fmt.Errorf("settlement chain %s is not in the supported chain set", cfg.Settlement)
	}

	return nil
}
