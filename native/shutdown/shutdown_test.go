package shutdown

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/core/events"
	"cdpchain/core/pricing"
	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/auction"
	"cdpchain/native/cdp"
	"cdpchain/native/common"
	"cdpchain/native/treasury"
	"cdpchain/storage"
)

var dollarUnit = big.NewInt(1_000_000_000_000)

func dollar(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), dollarUnit)
}

func makeAddress(b byte) crypto.Address {
	return crypto.BytesToAddress([]byte{0x5D, b})
}

type testEnv struct {
	mgr      *state.Manager
	treasury *treasury.Treasury
	auctions *auction.Manager
	oracle   *pricing.Oracle
	engine   *cdp.Engine
	shutdown *Manager
	alice    crypto.Address
	bob      crypto.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for _, symbol := range []string{"USD", "RELAY", "LIQUID"} {
		require.NoError(t, mgr.RegisterToken(symbol, symbol, 12))
	}
	tr := treasury.New(mgr, "USD")
	auctions := auction.NewManager(mgr, tr, auction.DefaultConfig())
	oracle := pricing.NewOracle(mgr, "USD", 0)
	engine := cdp.NewEngine(mgr, tr, auctions, oracle, cdp.DefaultConfig())
	sd := NewManager(mgr, tr, engine, auctions, oracle)
	sd.SetEmitter(events.NewSinkEmitter(mgr))
	engine.SetShutdownView(sd)
	auctions.SetShutdownView(sd)
	for _, asset := range []types.AssetID{"RELAY", "LIQUID"} {
		require.NoError(t, engine.SetCollateralParams(types.RootOrigin(), asset, cdp.CollateralParamsChange{
			MaximumTotalDebitValue: cdp.Set(dollar(100_000_000)),
		}))
	}
	return &testEnv{
		mgr:      mgr,
		treasury: tr,
		auctions: auctions,
		oracle:   oracle,
		engine:   engine,
		shutdown: sd,
		alice:    makeAddress(1),
		bob:      makeAddress(2),
	}
}

func TestEmergencyShutdownAndRefund(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.mgr.Mint(env.alice, "USD", dollar(2_000_000)))
	require.NoError(t, env.mgr.Mint(env.bob, "USD", dollar(8_000_000)))
	require.NoError(t, env.mgr.Mint(env.bob, "RELAY", dollar(300_000_000)))
	require.NoError(t, env.mgr.Mint(env.bob, "LIQUID", dollar(50_000_000)))
	require.NoError(t, env.treasury.DepositCollateral(env.bob, "RELAY", dollar(200_000_000)))
	require.NoError(t, env.treasury.DepositCollateral(env.bob, "LIQUID", dollar(40_000_000)))

	_, err := env.shutdown.RefundCollaterals(env.alice, dollar(1_000_000))
	require.True(t, errors.Is(err, ErrCanNotRefund))

	err = env.shutdown.EmergencyShutdown(types.SignedOrigin(env.alice))
	require.True(t, errors.Is(err, common.ErrBadOrigin))
	require.NoError(t, env.shutdown.EmergencyShutdown(types.RootOrigin()))
	require.True(t, env.shutdown.IsShutdown())
	require.True(t, errors.Is(env.shutdown.EmergencyShutdown(types.RootOrigin()), ErrAlreadyShutdown))

	require.NoError(t, env.shutdown.OpenCollateralRefund(types.RootOrigin()))
	payouts, err := env.shutdown.RefundCollaterals(env.alice, dollar(1_000_000))
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	free, err := env.treasury.FreeCollateral("RELAY")
	require.NoError(t, err)
	require.Equal(t, dollar(180_000_000), free)
	free, err = env.treasury.FreeCollateral("LIQUID")
	require.NoError(t, err)
	require.Equal(t, dollar(36_000_000), free)

	balance := func(who crypto.Address, asset types.AssetID) *big.Int {
		bal, err := env.mgr.Balance(who, asset)
		require.NoError(t, err)
		return bal
	}
	require.Equal(t, dollar(1_000_000), balance(env.alice, "USD"))
	require.Equal(t, dollar(20_000_000), balance(env.alice, "RELAY"))
	require.Equal(t, dollar(4_000_000), balance(env.alice, "LIQUID"))
	issuance, err := env.mgr.TotalIssuance("USD")
	require.NoError(t, err)
	require.Equal(t, dollar(9_000_000), issuance)

	_, err = env.shutdown.RefundCollaterals(env.alice, dollar(1_000_001))
	require.True(t, errors.Is(err, ErrCanNotRefund))
}

func TestOpenCollateralRefundRequirements(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, errors.Is(env.shutdown.OpenCollateralRefund(types.RootOrigin()), ErrMustAfterShutdown))

	require.NoError(t, env.mgr.Mint(env.alice, "RELAY", big.NewInt(1_000)))
	require.NoError(t, env.oracle.FeedPrice(types.RootOrigin(), "RELAY", common.FixedOne))
	_, err := env.engine.AdjustPosition(env.alice, "RELAY", big.NewInt(1_000), big.NewInt(100))
	require.NoError(t, err)

	require.NoError(t, env.shutdown.EmergencyShutdown(types.RootOrigin()))
	quote, err := env.oracle.Quote("RELAY")
	require.NoError(t, err)
	require.Equal(t, pricing.PriceStatusLocked, quote.Status)

	_, err = env.engine.AdjustPosition(env.alice, "RELAY", big.NewInt(0), big.NewInt(1))
	require.True(t, errors.Is(err, cdp.ErrAlreadyShutdown))

	err = env.shutdown.OpenCollateralRefund(types.RootOrigin())
	require.True(t, errors.Is(err, ErrExistUnhandledDebit))

	_, err = env.engine.Settle(types.SignedOrigin(env.bob), "RELAY", env.alice)
	require.NoError(t, err)

	_, err = env.auctions.NewCollateralAuction(env.alice, "RELAY", big.NewInt(10), big.NewInt(10), common.FixedOne, 0)
	require.NoError(t, err)
	err = env.shutdown.OpenCollateralRefund(types.RootOrigin())
	require.True(t, errors.Is(err, ErrExistActiveAuctions))

	auctions, err := env.auctions.Auctions()
	require.NoError(t, err)
	require.NoError(t, env.auctions.Cancel(auctions[0].ID))
	require.NoError(t, env.shutdown.OpenCollateralRefund(types.RootOrigin()))
	require.True(t, env.shutdown.IsRefundOpen())
	require.True(t, errors.Is(env.shutdown.OpenCollateralRefund(types.RootOrigin()), ErrRefundAlreadyOpen))
}
