package auction

import (
	"math/big"

	"cdpchain/native/common"
)

// Config controls the Dutch collateral auctions.
type Config struct {
	// StartPremium lifts the opening ask above the oracle price
	// (fixed point, 0.1 opens at 110%).
	StartPremium *big.Int
	// DecayIntervalBlocks is the number of blocks between price steps.
	DecayIntervalBlocks uint64
	// DecayFactor multiplies the ask at every step (fixed point).
	DecayFactor *big.Int
	// FloorRatio bounds the ask from below relative to the opening ask.
	FloorRatio *big.Int
}

// DefaultConfig opens at 110% of the oracle price and drops 3% every ten
// blocks down to half of the opening ask.
func DefaultConfig() Config {
	return Config{
		StartPremium:        common.FixedFromRational(1, 10),
		DecayIntervalBlocks: 10,
		DecayFactor:         common.FixedFromRational(97, 100),
		FloorRatio:          common.FixedFromRational(1, 2),
	}
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	defaults := DefaultConfig()
	if c.StartPremium == nil || c.StartPremium.Sign() < 0 {
		c.StartPremium = defaults.StartPremium
	}
	if c.DecayIntervalBlocks == 0 {
		c.DecayIntervalBlocks = defaults.DecayIntervalBlocks
	}
	if c.DecayFactor == nil || c.DecayFactor.Sign() <= 0 || c.DecayFactor.Cmp(common.FixedOne) > 0 {
		c.DecayFactor = defaults.DecayFactor
	}
	if c.FloorRatio == nil || c.FloorRatio.Sign() <= 0 || c.FloorRatio.Cmp(common.FixedOne) > 0 {
		c.FloorRatio = defaults.FloorRatio
	}
}
