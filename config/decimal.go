package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"cdpchain/native/auction"
	"cdpchain/native/cdp"
	"cdpchain/native/common"
	"cdpchain/native/dex"
)

const fixedDecimals = 18

// ParseFixed converts a decimal string such as "1.5" into an 18 decimal
// fixed-point integer. Digits beyond the 18th are truncated.
func ParseFixed(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("empty decimal")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("decimal %q must not be negative", value)
	}
	out := d.Shift(fixedDecimals).Truncate(0).BigInt()
	if err := common.CheckU128(out); err != nil {
		return nil, fmt.Errorf("decimal %q: %w", value, err)
	}
	return out, nil
}

// ParseOptionalFixed returns nil for an empty string.
func ParseOptionalFixed(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return ParseFixed(value)
}

// ParseAmount converts a base-unit amount. Scientific notation such as
// "1e18" is accepted as long as the result is integral.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("amount %q must be an integer", value)
	}
	out := d.BigInt()
	if err := common.CheckU128(out); err != nil {
		return nil, fmt.Errorf("amount %q: %w", value, err)
	}
	return out, nil
}

// ParseOptionalAmount returns nil for an empty string.
func ParseOptionalAmount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return ParseAmount(value)
}

// FormatFixed renders a fixed-point integer as a decimal string.
func FormatFixed(v *big.Int) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromBigInt(v, -fixedDecimals).String()
}

// EngineConfig converts the section into the risk engine configuration.
func (c CDP) EngineConfig() (cdp.Config, error) {
	cfg := cdp.DefaultConfig()
	fields := []struct {
		name   string
		value  string
		target **big.Int
	}{
		{"DefaultDebitExchangeRate", c.DefaultDebitExchangeRate, &cfg.DefaultDebitExchangeRate},
		{"DefaultLiquidationRatio", c.DefaultLiquidationRatio, &cfg.DefaultLiquidationRatio},
		{"DefaultLiquidationPenalty", c.DefaultLiquidationPenalty, &cfg.DefaultLiquidationPenalty},
		{"MaxSwapSlippageCompareToOracle", c.MaxSwapSlippageCompareToOracle, &cfg.MaxSwapSlippageCompareToOracle},
		{"GlobalInterestRatePerSec", c.GlobalInterestRatePerSec, &cfg.GlobalInterestRatePerSec},
	}
	for _, field := range fields {
		v, err := ParseOptionalFixed(field.value)
		if err != nil {
			return cdp.Config{}, fmt.Errorf("cdp.%s: %w", field.name, err)
		}
		if v != nil {
			*field.target = v
		}
	}
	minimum, err := ParseOptionalAmount(c.MinimumDebitValue)
	if err != nil {
		return cdp.Config{}, fmt.Errorf("cdp.MinimumDebitValue: %w", err)
	}
	if minimum != nil {
		cfg.MinimumDebitValue = minimum
	}
	cfg.MaxLiquidationsPerBlock = c.MaxLiquidationsPerBlock
	cfg.EnsureDefaults()
	return cfg, nil
}

// EngineConfig converts the section into the pool configuration.
func (c DEX) EngineConfig() (dex.Config, error) {
	cfg := dex.Config{
		FeeNumerator:     c.FeeNumerator,
		FeeDenominator:   c.FeeDenominator,
		TradingPathLimit: c.TradingPathLimit,
	}
	minimum, err := ParseOptionalAmount(c.MinLiquidityIncrement)
	if err != nil {
		return dex.Config{}, fmt.Errorf("dex.MinLiquidityIncrement: %w", err)
	}
	cfg.MinLiquidityIncrement = minimum
	cfg.EnsureDefaults()
	return cfg, nil
}

// EngineConfig converts the section into the auction configuration.
func (c Auction) EngineConfig() (auction.Config, error) {
	cfg := auction.Config{DecayIntervalBlocks: c.DecayIntervalBlocks}
	var err error
	if cfg.StartPremium, err = ParseOptionalFixed(c.StartPremium); err != nil {
		return auction.Config{}, fmt.Errorf("auction.StartPremium: %w", err)
	}
	if cfg.DecayFactor, err = ParseOptionalFixed(c.DecayFactor); err != nil {
		return auction.Config{}, fmt.Errorf("auction.DecayFactor: %w", err)
	}
	if cfg.FloorRatio, err = ParseOptionalFixed(c.FloorRatio); err != nil {
		return auction.Config{}, fmt.Errorf("auction.FloorRatio: %w", err)
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// Params converts the entry into collateral risk parameters.
func (c GenesisCollateral) Params() (cdp.CollateralParams, error) {
	var (
		out cdp.CollateralParams
		err error
	)
	if out.InterestRatePerSec, err = ParseOptionalFixed(c.InterestRatePerSec); err != nil {
		return out, fmt.Errorf("InterestRatePerSec: %w", err)
	}
	if out.LiquidationRatio, err = ParseOptionalFixed(c.LiquidationRatio); err != nil {
		return out, fmt.Errorf("LiquidationRatio: %w", err)
	}
	if out.LiquidationPenalty, err = ParseOptionalFixed(c.LiquidationPenalty); err != nil {
		return out, fmt.Errorf("LiquidationPenalty: %w", err)
	}
	if out.RequiredCollateralRatio, err = ParseOptionalFixed(c.RequiredCollateralRatio); err != nil {
		return out, fmt.Errorf("RequiredCollateralRatio: %w", err)
	}
	if out.MaximumTotalDebitValue, err = ParseOptionalAmount(c.MaximumTotalDebitValue); err != nil {
		return out, fmt.Errorf("MaximumTotalDebitValue: %w", err)
	}
	return out, nil
}
