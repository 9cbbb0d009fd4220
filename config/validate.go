package config

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}

	if cfg.Chain.ChainID == 0 {
		return fmt.Errorf("chain.id must be set")
	}
	if len(cfg.Chain.Endpoints) == 0 {
		return fmt.Errorf("chain.endpoints must list at least one RPC URL")
	}
	if err := validateEndpoints(cfg.Chain.Endpoints); err != nil {
		return err
	}
	if cfg.Chain.RequiredConfirmations == 0 {
		return fmt.Errorf("chain.confirmations must be at least 1")
	}
	if err := validateWei(cfg.Chain.FallbackGasPriceWei, "chain.fallback_gas_price"); err != nil {
		return err
	}

	if err := validateWei(cfg.Invoice.AmountWei, "invoice.amount_wei"); err != nil {
		return err
	}
	if cfg.Invoice.TTLSeconds <= 0 {
		return fmt.Errorf("invoice.ttl must be positive")
	}
	if cfg.Invoice.AddressSpace == 0 {
		return fmt.Errorf("invoice.address_space must be positive")
	}

	if cfg.Auth.NonceTTLSeconds <= 0 {
		return fmt.Errorf("auth.nonce_ttl must be positive")
	}
	if cfg.Auth.SessionTTLSeconds <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in range [0, 65535]")
	}
	if cfg.HTTP.CreatePerMin < 0 || cfg.HTTP.CreateBurst < 0 {
		return fmt.Errorf("http rate limit values must not be negative")
	}

	return nil
}

func validateEndpoints(endpoints []string) error {
	seen := make(map[string]struct{}, len(endpoints))
	for i, ep := range endpoints {
		u, err := url.Parse(strings.TrimSpace(ep))
		if err != nil || u.Host == "" {
			return fmt.Errorf("chain.endpoints[%d]: %q is not a valid URL", i, ep)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("chain.endpoints[%d]: unsupported scheme %q", i, u.Scheme)
		}
		if _, ok := seen[ep]; ok {
			return fmt.Errorf("chain.endpoints has duplicate %q", ep)
		}
		seen[ep] = struct{}{}
	}
	return nil
}

func validateWei(s, field string) error {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return fmt.Errorf("%s must be a positive integer wei amount", field)
	}
	return nil
}
