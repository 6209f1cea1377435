package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"cdpchain/config"
	"cdpchain/core/pricing"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/cdp"
	"cdpchain/native/common"
)

// State is the ledger surface genesis writes to.
type State interface {
	RegisterToken(symbol, name string, decimals uint8) error
	Mint(addr crypto.Address, asset types.AssetID, amount *big.Int) error
	SetRole(role string, addr crypto.Address) error
}

// CollateralRegistry stores collateral risk parameters.
type CollateralRegistry interface {
	SetCollateralParams(origin types.Origin, asset types.AssetID, changes cdp.CollateralParamsChange) error
}

// PairRegistry enables trading pairs.
type PairRegistry interface {
	SetTradingPairStatus(origin types.Origin, a, b types.AssetID, enabled bool) error
}

// PriceFeeder seeds oracle prices.
type PriceFeeder interface {
	FeedPrice(origin types.Origin, asset types.AssetID, price *big.Int) error
}

// Modules bundles the components initialised at genesis.
type Modules struct {
	State       State
	Collaterals CollateralRegistry
	Pairs       PairRegistry
	Prices      PriceFeeder
}

// Apply writes the genesis section into state. Entries are applied in a
// deterministic order: tokens, balances, roles, prices, collaterals then
// trading pairs. The caller commits.
func Apply(g config.Genesis, m Modules) error {
	if m.State == nil || m.Collaterals == nil || m.Pairs == nil || m.Prices == nil {
		return fmt.Errorf("genesis: modules not configured")
	}
	root := types.RootOrigin()

	tokens := append([]config.GenesisToken(nil), g.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return strings.ToUpper(tokens[i].Symbol) < strings.ToUpper(tokens[j].Symbol)
	})
	for _, token := range tokens {
		name := token.Name
		if strings.TrimSpace(name) == "" {
			name = token.Symbol
		}
		if err := m.State.RegisterToken(token.Symbol, name, token.Decimals); err != nil {
			return fmt.Errorf("register token %q: %w", token.Symbol, err)
		}
	}

	for i, bal := range g.Balances {
		addr, err := crypto.DecodeAddress(bal.Address)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		amount, err := config.ParseAmount(bal.Amount)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		if amount.Sign() == 0 {
			continue
		}
		if err := m.State.Mint(addr, types.NormalizeAsset(bal.Asset), amount); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	roles := []struct {
		role    string
		members []string
	}{
		{common.GovernanceRole, g.Governance},
		{pricing.FeederRole, g.Feeders},
	}
	for _, entry := range roles {
		members := append([]string(nil), entry.members...)
		sort.Strings(members)
		for _, member := range members {
			addr, err := crypto.DecodeAddress(member)
			if err != nil {
				return fmt.Errorf("role %s: %w", entry.role, err)
			}
			if err := m.State.SetRole(entry.role, addr); err != nil {
				return fmt.Errorf("role %s: %w", entry.role, err)
			}
		}
	}

	for _, price := range g.Prices {
		value, err := config.ParseFixed(price.Price)
		if err != nil {
			return fmt.Errorf("price %s: %w", price.Asset, err)
		}
		if err := m.Prices.FeedPrice(root, types.NormalizeAsset(price.Asset), value); err != nil {
			return fmt.Errorf("price %s: %w", price.Asset, err)
		}
	}

	for _, coll := range g.Collaterals {
		params, err := coll.Params()
		if err != nil {
			return fmt.Errorf("collateral %s: %w", coll.Asset, err)
		}
		changes := cdp.CollateralParamsChange{
			InterestRatePerSec:      changeOf(params.InterestRatePerSec),
			LiquidationRatio:        changeOf(params.LiquidationRatio),
			LiquidationPenalty:      changeOf(params.LiquidationPenalty),
			RequiredCollateralRatio: changeOf(params.RequiredCollateralRatio),
			MaximumTotalDebitValue:  changeOf(params.MaximumTotalDebitValue),
		}
		if err := m.Collaterals.SetCollateralParams(root, types.NormalizeAsset(coll.Asset), changes); err != nil {
			return fmt.Errorf("collateral %s: %w", coll.Asset, err)
		}
	}

	for _, pair := range g.TradingPairs {
		if err := m.Pairs.SetTradingPairStatus(root, types.NormalizeAsset(pair.AssetA), types.NormalizeAsset(pair.AssetB), true); err != nil {
			return fmt.Errorf("trading pair %s/%s: %w", pair.AssetA, pair.AssetB, err)
		}
	}
	return nil
}

func changeOf(v *big.Int) cdp.ParamChange {
	if v == nil {
		return cdp.Keep()
	}
	return cdp.Set(v)
}
