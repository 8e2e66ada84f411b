package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
)

// Params parses the configured GMX section into ecosystem parameters.
func (g GMX) Params() (gmx.Params, error) {
	params := gmx.DefaultParams()
	params.MintFeeBps = g.MintFeeBps
	params.BurnFeeBps = g.BurnFeeBps
	params.MultiplierPointsAprBps = g.MultiplierPointsAprBps
	params.VestingDurationSeconds = g.VestingDurationSeconds

	rates := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"WethPerGlpPerSecond", g.WethPerGlpPerSecond, &params.WethPerGlpPerSecond},
		{"WethPerGmxPerSecond", g.WethPerGmxPerSecond, &params.WethPerGmxPerSecond},
		{"EsGmxPerGlpPerSecond", g.EsGmxPerGlpPerSecond, &params.EsGmxPerGlpPerSecond},
		{"EsGmxPerGmxPerSecond", g.EsGmxPerGmxPerSecond, &params.EsGmxPerGmxPerSecond},
	}
	for _, rate := range rates {
		parsed, err := parseUintAmount(rate.value)
		if err != nil {
			return params, fmt.Errorf("invalid gmx.%s: %w", rate.name, err)
		}
		*rate.dst = parsed
	}
	return params, nil
}

// SeedLiquidity parses the startup pool deposit.
func (g GMX) SeedLiquidity() (*big.Int, error) {
	amount, err := parseUintAmount(g.SeedLiquidityUSDC)
	if err != nil {
		return nil, fmt.Errorf("invalid gmx.SeedLiquidityUSDC: %w", err)
	}
	return amount, nil
}

// PriceValue parses the configured ledger price.
func (m Market) PriceValue() (*big.Int, error) {
	price, err := parseUintAmount(m.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid markets.%s.Price: %w", m.Symbol, err)
	}
	return price, nil
}

// GovernanceAddress parses the governance account.
func (c *Config) GovernanceAddress() (common.Address, error) {
	value := strings.TrimSpace(c.Governance)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid Governance address %q", c.Governance)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("governance address must not be zero")
	}
	return addr, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
