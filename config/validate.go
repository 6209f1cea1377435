package config

import (
	"fmt"
	"strings"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

var validLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// ValidateConfig checks cross-field constraints after normalisation.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config required")
	}
	if _, ok := validLevels[cfg.Log.Level]; !ok {
		return fmt.Errorf("log: unsupported level %q", cfg.Log.Level)
	}
	if cfg.RPC.TxRatePerSecond < 0 || cfg.RPC.TxBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("rpc: auth clock skew must not be negative")
	}
	switch cfg.Chain.DBBackend {
	case "leveldb", "memory":
	default:
		return fmt.Errorf("chain: unsupported db backend %q", cfg.Chain.DBBackend)
	}
	if cfg.Chain.MempoolLimit < 0 {
		return fmt.Errorf("chain: mempool limit must not be negative")
	}
	if cfg.Chain.PriorityReservedBPS > 10_000 {
		return fmt.Errorf("chain: priority reserved bps %d exceeds 10000", cfg.Chain.PriorityReservedBPS)
	}
	if cfg.Oracle.MaxAgeSeconds < 0 {
		return fmt.Errorf("oracle: max_age_seconds must not be negative")
	}
	if cfg.DEX.FeeDenominator != 0 && cfg.DEX.FeeNumerator >= cfg.DEX.FeeDenominator {
		return fmt.Errorf("dex: fee numerator must be below denominator")
	}
	if _, err := cfg.CDP.EngineConfig(); err != nil {
		return err
	}
	if _, err := cfg.DEX.EngineConfig(); err != nil {
		return err
	}
	auctionCfg, err := cfg.Auction.EngineConfig()
	if err != nil {
		return err
	}
	if auctionCfg.DecayFactor.Cmp(common.FixedOne) > 0 {
		return fmt.Errorf("auction: decay factor above one")
	}
	return validateGenesis(cfg)
}

func validateGenesis(cfg *Config) error {
	g := cfg.Genesis
	tokens := make(map[string]struct{}, len(g.Tokens))
	for _, token := range g.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("genesis: token symbol required")
		}
		if _, dup := tokens[symbol]; dup {
			return fmt.Errorf("genesis: duplicate token %s", symbol)
		}
		tokens[symbol] = struct{}{}
	}
	if _, ok := tokens[cfg.Chain.StableAsset]; !ok {
		return fmt.Errorf("genesis: stable asset %s not registered", cfg.Chain.StableAsset)
	}
	known := func(asset string) bool {
		_, ok := tokens[strings.ToUpper(strings.TrimSpace(asset))]
		return ok
	}
	for i, bal := range g.Balances {
		if _, err := crypto.DecodeAddress(bal.Address); err != nil {
			return fmt.Errorf("genesis: balances[%d]: %w", i, err)
		}
		if !known(bal.Asset) {
			return fmt.Errorf("genesis: balances[%d]: unknown asset %s", i, bal.Asset)
		}
		if _, err := ParseAmount(bal.Amount); err != nil {
			return fmt.Errorf("genesis: balances[%d]: %w", i, err)
		}
	}
	for _, group := range [][]string{g.Governance, g.Feeders} {
		for _, addr := range group {
			if _, err := crypto.DecodeAddress(addr); err != nil {
				return fmt.Errorf("genesis: role member %q: %w", addr, err)
			}
		}
	}
	for _, price := range g.Prices {
		if !known(price.Asset) {
			return fmt.Errorf("genesis: price for unknown asset %s", price.Asset)
		}
		if _, err := ParseFixed(price.Price); err != nil {
			return fmt.Errorf("genesis: price %s: %w", price.Asset, err)
		}
	}
	for _, coll := range g.Collaterals {
		if !known(coll.Asset) {
			return fmt.Errorf("genesis: collateral %s not registered", coll.Asset)
		}
		if strings.EqualFold(strings.TrimSpace(coll.Asset), cfg.Chain.StableAsset) {
			return fmt.Errorf("genesis: stable asset cannot be collateral")
		}
		if _, err := coll.Params(); err != nil {
			return fmt.Errorf("genesis: collateral %s: %w", coll.Asset, err)
		}
	}
	for _, pair := range g.TradingPairs {
		if !known(pair.AssetA) || !known(pair.AssetB) {
			return fmt.Errorf("genesis: trading pair %s/%s uses unknown asset", pair.AssetA, pair.AssetB)
		}
		if strings.EqualFold(pair.AssetA, pair.AssetB) {
			return fmt.Errorf("genesis: trading pair %s/%s is not distinct", pair.AssetA, pair.AssetB)
		}
	}
	return nil
}
