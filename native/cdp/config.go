package cdp

import (
	"math/big"

	"cdpchain/native/common"
)

// Config carries the engine-wide risk defaults.
type Config struct {
	// DefaultDebitExchangeRate converts debit units into stable value until
	// interest has accrued for a collateral.
	DefaultDebitExchangeRate *big.Int
	// DefaultLiquidationRatio applies when a collateral has no liquidation
	// ratio of its own.
	DefaultLiquidationRatio *big.Int
	// DefaultLiquidationPenalty applies when a collateral has no penalty of
	// its own.
	DefaultLiquidationPenalty *big.Int
	// MinimumDebitValue is the smallest stable value a position may owe.
	MinimumDebitValue *big.Int
	// MaxSwapSlippageCompareToOracle bounds how far the exchange strategy's
	// realised price may fall below the oracle price.
	MaxSwapSlippageCompareToOracle *big.Int
	// GlobalInterestRatePerSec is added to every collateral's own rate.
	GlobalInterestRatePerSec *big.Int
	// MaxLiquidationsPerBlock caps the per-block scan.
	MaxLiquidationsPerBlock int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultDebitExchangeRate:       new(big.Int).Set(common.FixedOne),
		DefaultLiquidationRatio:        common.FixedFromRational(3, 2),
		DefaultLiquidationPenalty:      common.FixedFromRational(1, 10),
		MinimumDebitValue:              new(big.Int),
		MaxSwapSlippageCompareToOracle: common.FixedFromRational(1, 10),
		GlobalInterestRatePerSec:       new(big.Int),
		MaxLiquidationsPerBlock:        32,
	}
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	defaults := DefaultConfig()
	if c.DefaultDebitExchangeRate == nil || c.DefaultDebitExchangeRate.Sign() <= 0 {
		c.DefaultDebitExchangeRate = defaults.DefaultDebitExchangeRate
	}
	if c.DefaultLiquidationRatio == nil || c.DefaultLiquidationRatio.Sign() <= 0 {
		c.DefaultLiquidationRatio = defaults.DefaultLiquidationRatio
	}
	if c.DefaultLiquidationPenalty == nil || c.DefaultLiquidationPenalty.Sign() < 0 {
		c.DefaultLiquidationPenalty = defaults.DefaultLiquidationPenalty
	}
	if c.MinimumDebitValue == nil || c.MinimumDebitValue.Sign() < 0 {
		c.MinimumDebitValue = defaults.MinimumDebitValue
	}
	if c.MaxSwapSlippageCompareToOracle == nil || c.MaxSwapSlippageCompareToOracle.Sign() < 0 {
		c.MaxSwapSlippageCompareToOracle = defaults.MaxSwapSlippageCompareToOracle
	}
	if c.GlobalInterestRatePerSec == nil || c.GlobalInterestRatePerSec.Sign() < 0 {
		c.GlobalInterestRatePerSec = defaults.GlobalInterestRatePerSec
	}
	if c.MaxLiquidationsPerBlock <= 0 {
		c.MaxLiquidationsPerBlock = defaults.MaxLiquidationsPerBlock
	}
}
