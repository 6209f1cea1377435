package dex

import "math/big"

// Config captures the runtime configuration for the liquidity pools.
type Config struct {
	// FeeNumerator/FeeDenominator is the fee taken from every hop's input.
	FeeNumerator   uint64 `toml:"FeeNumerator" yaml:"feeNumerator"`
	FeeDenominator uint64 `toml:"FeeDenominator" yaml:"feeDenominator"`
	// TradingPathLimit bounds the number of assets in a swap path.
	TradingPathLimit int `toml:"TradingPathLimit" yaml:"tradingPathLimit"`
	// MinLiquidityIncrement is the smallest deposit accepted on either side.
	MinLiquidityIncrement *big.Int `toml:"-" yaml:"-"`
}

// DefaultConfig returns the 0.3% fee, three-asset path configuration.
func DefaultConfig() Config {
	return Config{
		FeeNumerator:          3,
		FeeDenominator:        1000,
		TradingPathLimit:      3,
		MinLiquidityIncrement: big.NewInt(1),
	}
}

// EnsureDefaults fills zero fields with defaults.
func (c *Config) EnsureDefaults() {
	defaults := DefaultConfig()
	if c.FeeDenominator == 0 {
		c.FeeNumerator = defaults.FeeNumerator
		c.FeeDenominator = defaults.FeeDenominator
	}
	if c.TradingPathLimit < 2 {
		c.TradingPathLimit = defaults.TradingPathLimit
	}
	if c.MinLiquidityIncrement == nil || c.MinLiquidityIncrement.Sign() <= 0 {
		c.MinLiquidityIncrement = defaults.MinLiquidityIncrement
	}
}
