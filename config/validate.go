package config

import (
	"fmt"
	"strings"
)

var (
	MaxFeeBps = uint64(10_000)
)

func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen_address: empty")
	}
	if _, err := cfg.GovernanceAddress(); err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	if cfg.GMX.MintFeeBps >= MaxFeeBps || cfg.GMX.BurnFeeBps >= MaxFeeBps {
		return fmt.Errorf("gmx: fee_bps >= %d", MaxFeeBps)
	}
	if cfg.GMX.VestingDurationSeconds <= 0 {
		return fmt.Errorf("gmx: vesting_duration_seconds <= 0")
	}
	if _, err := cfg.GMX.Params(); err != nil {
		return err
	}
	seed, err := cfg.GMX.SeedLiquidity()
	if err != nil {
		return err
	}
	if seed.Sign() == 0 {
		return fmt.Errorf("gmx: seed_liquidity_usdc == 0")
	}
	if cfg.Plutus.ExitFeeBps >= MaxFeeBps {
		return fmt.Errorf("plutus: exit_fee_bps >= %d", MaxFeeBps)
	}
	seen := make(map[string]bool, len(cfg.Markets))
	for _, market := range cfg.Markets {
		switch market.Symbol {
		case SymbolUSDC, SymbolWETH:
		default:
			return fmt.Errorf("markets: unknown symbol %q", market.Symbol)
		}
		if seen[market.Symbol] {
			return fmt.Errorf("markets: duplicate symbol %q", market.Symbol)
		}
		seen[market.Symbol] = true
		price, err := market.PriceValue()
		if err != nil {
			return err
		}
		if price.Sign() == 0 {
			return fmt.Errorf("markets: %s price == 0", market.Symbol)
		}
	}
	if !seen[SymbolUSDC] {
		return fmt.Errorf("markets: USDC market is required")
	}
	return nil
}
