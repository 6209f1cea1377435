package genesis

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/config"
	"cdpchain/core/pricing"
	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/auction"
	"cdpchain/native/cdp"
	"cdpchain/native/common"
	"cdpchain/native/dex"
	"cdpchain/native/treasury"
	"cdpchain/storage"
)

type fixture struct {
	mgr    *state.Manager
	engine *cdp.Engine
	pools  *dex.Engine
	oracle *pricing.Oracle
}

func newFixture() *fixture {
	mgr := state.NewManager(storage.NewMemDB())
	tr := treasury.New(mgr, "USD")
	pools := dex.NewEngine(mgr, dex.DefaultConfig())
	tr.SetDEX(pools)
	auctions := auction.NewManager(mgr, tr, auction.DefaultConfig())
	oracle := pricing.NewOracle(mgr, "USD", 0)
	engine := cdp.NewEngine(mgr, tr, auctions, oracle, cdp.DefaultConfig())
	return &fixture{mgr: mgr, engine: engine, pools: pools, oracle: oracle}
}

func (f *fixture) modules() Modules {
	return Modules{State: f.mgr, Collaterals: f.engine, Pairs: f.pools, Prices: f.oracle}
}

func addr(b byte) crypto.Address {
	return crypto.BytesToAddress([]byte{0x6e, b})
}

func TestApplyGenesis(t *testing.T) {
	f := newFixture()
	alice := addr(1)
	gov := addr(2)
	feeder := addr(3)

	g := config.Genesis{
		Tokens: []config.GenesisToken{
			{Symbol: "usd", Name: "Dollar", Decimals: 12},
			{Symbol: "DOT", Decimals: 10},
		},
		Balances: []config.GenesisBalance{
			{Address: alice.String(), Asset: "DOT", Amount: "1000"},
			{Address: alice.String(), Asset: "USD", Amount: "0"},
		},
		Governance: []string{gov.String()},
		Feeders:    []string{feeder.String()},
		Prices:     []config.GenesisPrice{{Asset: "DOT", Price: "7.5"}},
		Collaterals: []config.GenesisCollateral{{
			Asset:                  "DOT",
			LiquidationRatio:       "1.5",
			MaximumTotalDebitValue: "10000",
		}},
		TradingPairs: []config.GenesisPair{{AssetA: "DOT", AssetB: "USD"}},
	}
	require.NoError(t, Apply(g, f.modules()))

	bal, err := f.mgr.Balance(alice, "DOT")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), bal)
	require.True(t, f.mgr.HasRole(common.GovernanceRole, gov))
	require.True(t, f.mgr.HasRole(pricing.FeederRole, feeder))

	price, ok := f.oracle.Price("DOT")
	require.True(t, ok)
	require.Equal(t, common.FixedFromRational(15, 2), price)

	params, err := f.engine.CollateralParams("DOT")
	require.NoError(t, err)
	require.Equal(t, common.FixedFromRational(3, 2), params.LiquidationRatio)
	require.Nil(t, params.RequiredCollateralRatio)
	require.Equal(t, big.NewInt(10000), params.MaximumTotalDebitValue)

	enabled, err := f.pools.IsEnabled("USD", "DOT")
	require.NoError(t, err)
	require.True(t, enabled)
	require.True(t, f.mgr.TokenExists(string(types.TradingPair{A: "DOT", B: "USD"}.ShareAsset())))
}

func TestApplyGenesisRejectsStableCollateral(t *testing.T) {
	f := newFixture()
	g := config.Genesis{
		Tokens:      []config.GenesisToken{{Symbol: "USD", Decimals: 12}},
		Collaterals: []config.GenesisCollateral{{Asset: "USD"}},
	}
	require.ErrorIs(t, Apply(g, f.modules()), cdp.ErrInvalidCollateralType)
}

func TestApplyGenesisRequiresModules(t *testing.T) {
	require.Error(t, Apply(config.Genesis{}, Modules{}))
}
