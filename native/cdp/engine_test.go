package cdp

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
	"cdpchain/native/common"
	"cdpchain/native/dex"
	"cdpchain/native/treasury"
	"cdpchain/storage"
)

var dollarUnit = big.NewInt(1_000_000_000_000)

func dollar(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), dollarUnit)
}

func makeAddress(b byte) crypto.Address {
	return crypto.BytesToAddress([]byte{0xCD, b})
}

type shutdownFlag struct{ on bool }

func (s *shutdownFlag) IsShutdown() bool { return s.on }

type testEnv struct {
	mgr      *state.Manager
	treasury *treasury.Treasury
	dex      *dex.Engine
	auctions *auction.Manager
	oracle   *pricing.Oracle
	engine   *Engine
	shutdown *shutdownFlag
	alice    crypto.Address
	bob      crypto.Address
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for _, symbol := range []string{"USD", "DOT"} {
		require.NoError(t, mgr.RegisterToken(symbol, symbol, 12))
	}
	tr := treasury.New(mgr, "USD")
	pools := dex.NewEngine(mgr, dex.DefaultConfig())
	auctions := auction.NewManager(mgr, tr, auction.DefaultConfig())
	oracle := pricing.NewOracle(mgr, "USD", 0)
	engine := NewEngine(mgr, tr, auctions, oracle, cfg)
	flag := &shutdownFlag{}
	engine.SetShutdownView(flag)
	engine.SetEmitter(events.NewSinkEmitter(mgr))
	return &testEnv{
		mgr:      mgr,
		treasury: tr,
		dex:      pools,
		auctions: auctions,
		oracle:   oracle,
		engine:   engine,
		shutdown: flag,
		alice:    makeAddress(1),
		bob:      makeAddress(2),
	}
}

// tenthDebitUnitConfig prices one debit unit at a tenth of a
// stable unit.
func tenthDebitUnitConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultDebitExchangeRate = common.FixedFromRational(1, 10)
	return cfg
}

func (env *testEnv) feed(t *testing.T, asset types.AssetID, price *big.Int) {
	t.Helper()
	require.NoError(t, env.oracle.FeedPrice(types.RootOrigin(), asset, price))
}

func (env *testEnv) balance(t *testing.T, who crypto.Address, asset types.AssetID) *big.Int {
	t.Helper()
	bal, err := env.mgr.Balance(who, asset)
	require.NoError(t, err)
	return bal
}

func standardParams(maxDebit *big.Int) CollateralParamsChange {
	return CollateralParamsChange{
		InterestRatePerSec:      Set(common.FixedFromRational(1, 100000)),
		LiquidationRatio:        Set(common.FixedFromRational(3, 2)),
		LiquidationPenalty:      Set(common.FixedFromRational(2, 10)),
		RequiredCollateralRatio: Set(common.FixedFromRational(9, 5)),
		MaximumTotalDebitValue:  Set(maxDebit),
	}
}

func findEvent(env *testEnv, eventType string) *types.Event {
	for _, evt := range env.mgr.Events() {
		if evt.Type == eventType {
			e := evt
			return &e
		}
	}
	return nil
}

func TestSetCollateralParams(t *testing.T) {
	env := newTestEnv(t, tenthDebitUnitConfig())

	err := env.engine.SetCollateralParams(types.SignedOrigin(env.alice), "DOT", standardParams(dollar(10_000)))
	require.True(t, errors.Is(err, common.ErrBadOrigin))

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(dollar(10_000))))
	params, err := env.engine.CollateralParams("DOT")
	require.NoError(t, err)
	require.Equal(t, common.FixedFromRational(1, 100000), params.InterestRatePerSec)
	require.Equal(t, common.FixedFromRational(3, 2), params.LiquidationRatio)
	require.Equal(t, common.FixedFromRational(2, 10), params.LiquidationPenalty)
	require.Equal(t, common.FixedFromRational(9, 5), params.RequiredCollateralRatio)
	require.Equal(t, dollar(10_000), params.MaximumTotalDebitValue)

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		LiquidationRatio:        Set(common.FixedFromInt(3)),
		RequiredCollateralRatio: Unset(),
	}))
	params, err = env.engine.CollateralParams("DOT")
	require.NoError(t, err)
	require.Equal(t, common.FixedFromInt(3), params.LiquidationRatio)
	require.Nil(t, params.RequiredCollateralRatio)
	require.Equal(t, common.FixedFromRational(2, 10), params.LiquidationPenalty)
	require.NotNil(t, findEvent(env, events.TypeCDPParamsUpdated))

	err = env.engine.SetCollateralParams(types.RootOrigin(), "USD", standardParams(dollar(1)))
	require.True(t, errors.Is(err, ErrInvalidCollateralType))

	assets, err := env.engine.Collaterals()
	require.NoError(t, err)
	require.Equal(t, []types.AssetID{"DOT"}, assets)
}

func TestCalculateCollateralRatioAndDebitCap(t *testing.T) {
	env := newTestEnv(t, tenthDebitUnitConfig())
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(dollar(10_000))))

	ratio, err := env.engine.CalculateCollateralRatio("DOT", dollar(100), dollar(50), common.FixedOne)
	require.NoError(t, err)
	require.Equal(t, common.FixedFromInt(20), ratio)

	ratio, err = env.engine.CalculateCollateralRatio("DOT", dollar(100), big.NewInt(0), common.FixedOne)
	require.NoError(t, err)
	require.Equal(t, MaxRatio, ratio)

	require.NoError(t, env.engine.CheckDebitCap("DOT", dollar(99_999)))
	err = env.engine.CheckDebitCap("DOT", dollar(100_001))
	require.True(t, errors.Is(err, ErrExceedDebitValueHardCap))
}

func TestAdjustPositionAndSettle(t *testing.T) {
	env := newTestEnv(t, tenthDebitUnitConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "USD", dollar(2_000)))
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", dollar(2_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(dollar(10_000))))

	_, err := env.engine.AdjustPosition(env.alice, "DOT", dollar(200), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, dollar(1_800), env.balance(t, env.alice, "DOT"))
	pos, err := env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.Zero(t, pos.Debit.Sign())
	require.Equal(t, dollar(200), pos.Collateral)

	_, err = env.engine.SettleCDPHasDebit(env.alice, "DOT")
	require.True(t, errors.Is(err, ErrNoDebitValue))

	env.feed(t, "DOT", common.FixedFromInt(3))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(0), dollar(200))
	require.NoError(t, err)
	pos, err = env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.Equal(t, dollar(200), pos.Debit)
	require.Equal(t, dollar(2_020), env.balance(t, env.alice, "USD"))

	pool, err := env.treasury.DebitPool()
	require.NoError(t, err)
	require.Zero(t, pool.Sign())
	free, err := env.treasury.FreeCollateral("DOT")
	require.NoError(t, err)
	require.Zero(t, free.Sign())

	confiscated, err := env.engine.SettleCDPHasDebit(env.alice, "DOT")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(6_666_666_666_666), confiscated)
	require.NotNil(t, findEvent(env, events.TypeCDPSettled))

	pos, err = env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.Zero(t, pos.Debit.Sign())
	require.Equal(t, new(big.Int).Sub(dollar(200), confiscated), pos.Collateral)
	pool, err = env.treasury.DebitPool()
	require.NoError(t, err)
	require.Equal(t, dollar(20), pool)
	free, err = env.treasury.FreeCollateral("DOT")
	require.NoError(t, err)
	require.Equal(t, confiscated, free)

	_, err = env.engine.SettleCDPHasDebit(env.alice, "DOT")
	require.True(t, errors.Is(err, ErrNoDebitValue))
}

func TestAdjustPositionRejectsUnsafeDebit(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(1_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(10_000))))

	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(10))
	require.True(t, errors.Is(err, ErrInvalidFeedPrice))

	env.feed(t, "DOT", common.FixedOne)
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(60))
	require.True(t, errors.Is(err, ErrBelowRequiredCollateralRatio))
	// Below both ratios the required ratio is reported.
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(70))
	require.True(t, errors.Is(err, ErrBelowRequiredCollateralRatio))

	require.Equal(t, int64(1_000), env.balance(t, env.alice, "DOT").Int64())
	require.Zero(t, env.balance(t, env.alice, "USD").Sign())
	custody, err := env.treasury.Custody("DOT")
	require.NoError(t, err)
	require.Zero(t, custody.Total.Sign())
	pos, err := env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.True(t, pos.IsEmpty())

	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(50))
	require.NoError(t, err)

	// Lowering the price does not block deleveraging.
	env.feed(t, "DOT", common.FixedFromRational(1, 10))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(0), big.NewInt(-10))
	require.NoError(t, err)
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(-1), big.NewInt(0))
	require.True(t, errors.Is(err, ErrBelowRequiredCollateralRatio))
}

func TestAdjustPositionLiquidationRatioWithoutRequiredRatio(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(1_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(10_000))))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		RequiredCollateralRatio: Unset(),
	}))
	env.feed(t, "DOT", common.FixedOne)

	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(70))
	require.True(t, errors.Is(err, ErrBelowLiquidationRatio))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(60))
	require.NoError(t, err)
}

func TestAdjustPositionDebitCapAndMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumDebitValue = big.NewInt(20)
	env := newTestEnv(t, cfg)
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(10_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(100))))
	env.feed(t, "DOT", common.FixedOne)

	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(1_000), big.NewInt(101))
	require.True(t, errors.Is(err, ErrExceedDebitValueHardCap))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(1_000), big.NewInt(10))
	require.True(t, errors.Is(err, ErrRemainDebitValueTooSmall))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(1_000), big.NewInt(100))
	require.NoError(t, err)
}

func TestAdjustPositionUnknownCollateral(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(1), big.NewInt(0))
	require.True(t, errors.Is(err, ErrInvalidCollateralType))
}

func TestAdjustPositionDuringShutdown(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(1_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(10_000))))
	env.feed(t, "DOT", common.FixedOne)
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(500), big.NewInt(100))
	require.NoError(t, err)

	env.shutdown.on = true
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(0), big.NewInt(1))
	require.True(t, errors.Is(err, ErrAlreadyShutdown))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(0), big.NewInt(-50))
	require.NoError(t, err)
}

func TestSettleRequiresRootBeforeShutdown(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(1_000)))
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(10_000))))
	env.feed(t, "DOT", common.FixedOne)
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(500), big.NewInt(100))
	require.NoError(t, err)

	_, err = env.engine.Settle(types.SignedOrigin(env.bob), "DOT", env.alice)
	require.True(t, errors.Is(err, common.ErrBadOrigin))

	env.shutdown.on = true
	confiscated, err := env.engine.Settle(types.SignedOrigin(env.bob), "DOT", env.alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), confiscated.Int64())
}

func TestChooseLiquidationStrategy(t *testing.T) {
	price := common.FixedFromInt(10)
	slippage := common.FixedFromRational(1, 10)
	cases := []struct {
		name   string
		supply *big.Int
		want   LiquidationStrategy
	}{
		{name: "no route", supply: nil, want: StrategyAuction},
		{name: "exceeds collateral", supply: big.NewInt(101), want: StrategyAuction},
		{name: "within slippage", supply: big.NewInt(55), want: StrategyExchange},
		{name: "far below oracle", supply: big.NewInt(100), want: StrategyAuction},
		{name: "just past slippage bound", supply: big.NewInt(56), want: StrategyAuction},
	}
	for _, tc := range cases {
		got := ChooseLiquidationStrategy(LiquidationQuote{
			Collateral:  big.NewInt(100),
			Target:      big.NewInt(500),
			Supply:      tc.supply,
			OraclePrice: price,
			MaxSlippage: slippage,
		})
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestLiquidateRequiresUnsafePosition(t *testing.T) {
	env := newTestEnv(t, tenthDebitUnitConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", dollar(1_000)))
	env.feed(t, "DOT", common.FixedOne)
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(dollar(10_000))))

	_, err := env.engine.AdjustPosition(env.alice, "DOT", dollar(100), dollar(500))
	require.NoError(t, err)
	require.Equal(t, dollar(900), env.balance(t, env.alice, "DOT"))
	require.Equal(t, dollar(50), env.balance(t, env.alice, "USD"))

	_, err = env.engine.Liquidate(types.NoneOrigin(), "DOT", env.alice)
	require.True(t, errors.Is(err, ErrMustBeUnsafe))
	_, err = env.engine.Liquidate(types.RootOrigin(), "DOT", env.alice)
	require.True(t, errors.Is(err, ErrMustBeUnsafe))

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		LiquidationRatio: Set(common.FixedFromInt(3)),
	}))
	result, err := env.engine.Liquidate(types.NoneOrigin(), "DOT", env.alice)
	require.NoError(t, err)
	require.Equal(t, StrategyAuction, result.Strategy)

	require.Equal(t, dollar(900), env.balance(t, env.alice, "DOT"))
	require.Equal(t, dollar(50), env.balance(t, env.alice, "USD"))
	pos, err := env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.True(t, pos.IsEmpty())
}

func TestLiquidateUnsafeCDPStrategies(t *testing.T) {
	env := newTestEnv(t, tenthDebitUnitConfig())
	env.treasury.SetDEX(env.dex)
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", dollar(51)))
	require.NoError(t, env.mgr.Mint(env.bob, "USD", dollar(1_000_001)))
	require.NoError(t, env.mgr.Mint(env.bob, "DOT", dollar(102)))
	env.feed(t, "DOT", common.FixedFromInt(10_000))

	require.NoError(t, env.dex.SetTradingPairStatus(types.RootOrigin(), "DOT", "USD", true))
	_, err := env.dex.AddLiquidity(env.bob, "DOT", "USD", dollar(100), dollar(1_000_000), big.NewInt(0), false)
	require.NoError(t, err)

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		InterestRatePerSec:      Set(big.NewInt(0)),
		LiquidationRatio:        Set(common.FixedFromInt(2)),
		LiquidationPenalty:      Set(common.FixedFromRational(2, 10)),
		RequiredCollateralRatio: Set(common.FixedFromInt(2)),
		MaximumTotalDebitValue:  Set(dollar(1_000_000)),
	}))
	_, err = env.engine.AdjustPosition(env.alice, "DOT", dollar(50), dollar(2_500_000))
	require.NoError(t, err)
	_, err = env.engine.AdjustPosition(env.bob, "DOT", dollar(1), dollar(50_000))
	require.NoError(t, err)

	pool, err := env.treasury.DebitPool()
	require.NoError(t, err)
	require.Zero(t, pool.Sign())

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		LiquidationRatio:        Set(common.FixedFromInt(4)),
		RequiredCollateralRatio: Set(common.FixedFromInt(4)),
	}))

	result, err := env.engine.LiquidateUnsafeCDP(env.alice, "DOT")
	require.NoError(t, err)
	require.Equal(t, StrategyAuction, result.Strategy)
	require.Equal(t, dollar(50), result.Collateral)
	require.Equal(t, dollar(250_000), result.DebitValue)
	require.Equal(t, dollar(300_000), result.Target)
	pos, err := env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.True(t, pos.IsEmpty())
	opened, err := env.auctions.Auction(result.AuctionID)
	require.NoError(t, err)
	require.Equal(t, dollar(50), opened.Amount)
	pool, err = env.treasury.DebitPool()
	require.NoError(t, err)
	require.Equal(t, dollar(250_000), pool)

	result, err = env.engine.LiquidateUnsafeCDP(env.bob, "DOT")
	require.NoError(t, err)
	require.Equal(t, StrategyExchange, result.Strategy)
	require.Equal(t, dollar(5_000), result.DebitValue)
	pos, err = env.engine.Position("DOT", env.bob)
	require.NoError(t, err)
	require.True(t, pos.IsEmpty())
	pool, err = env.treasury.DebitPool()
	require.NoError(t, err)
	require.Equal(t, dollar(255_000), pool)
	surplus, err := env.treasury.SurplusPool()
	require.NoError(t, err)
	require.True(t, surplus.Cmp(dollar(5_000)) >= 0)

	// Leftover collateral beyond what the swap needed goes back to bob.
	leftover := new(big.Int).Sub(dollar(1), result.Sold)
	require.Equal(t, new(big.Int).Add(dollar(1), leftover), env.balance(t, env.bob, "DOT"))

	// Conservation: every unit of DOT held by the treasury is an auction lot
	// or free collateral now that no positions remain.
	custody, err := env.treasury.Custody("DOT")
	require.NoError(t, err)
	locked, err := env.auctions.TotalLocked("DOT")
	require.NoError(t, err)
	require.Equal(t, custody.Total, new(big.Int).Add(locked, custody.Free))
	require.Equal(t, custody.Total, env.balance(t, env.treasury.Account(), "DOT"))
}

func TestLiquidationScenarioWithPenalty(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(100)))
	env.feed(t, "DOT", common.FixedOne)
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		LiquidationRatio:       Set(common.FixedFromRational(3, 2)),
		LiquidationPenalty:     Set(common.FixedFromRational(1, 10)),
		MaximumTotalDebitValue: Set(big.NewInt(1_000)),
	}))
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(50))
	require.NoError(t, err)

	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		LiquidationRatio: Set(common.FixedFromInt(4)),
	}))
	snapshot := len(env.mgr.Events())
	result, err := env.engine.LiquidateUnsafeCDP(env.alice, "DOT")
	require.NoError(t, err)
	require.Equal(t, int64(55), result.Target.Int64())

	pos, err := env.engine.Position("DOT", env.alice)
	require.NoError(t, err)
	require.True(t, pos.IsEmpty())
	pool, err := env.treasury.DebitPool()
	require.NoError(t, err)
	require.Equal(t, int64(50), pool.Int64())

	var liquidated *types.Event
	for _, evt := range env.mgr.Events()[snapshot:] {
		if evt.Type == events.TypeCDPLiquidated {
			e := evt
			liquidated = &e
		}
	}
	require.NotNil(t, liquidated)
	require.Equal(t, "100", liquidated.Attributes["collateral"])
	require.Equal(t, "auction", liquidated.Attributes["strategy"])
}

func TestAccrueInterest(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(10_000)))
	env.feed(t, "DOT", common.FixedOne)
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		InterestRatePerSec:     Set(common.FixedFromRational(1, 100)),
		MaximumTotalDebitValue: Set(big.NewInt(100_000)),
	}))
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(10_000), big.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, env.engine.AccrueInterest(100))
	rate, err := env.engine.DebitExchangeRate("DOT")
	require.NoError(t, err)
	require.Equal(t, common.FixedOne, rate)

	require.NoError(t, env.engine.AccrueInterest(102))
	rate, err = env.engine.DebitExchangeRate("DOT")
	require.NoError(t, err)
	require.Equal(t, common.FixedFromRational(10201, 10000), rate)
	surplus, err := env.treasury.SurplusPool()
	require.NoError(t, err)
	require.Equal(t, int64(20), surplus.Int64())

	value, err := env.engine.DebitValue("DOT", big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(1_020), value.Int64())
}

func TestOnBlockLiquidatesAndSettles(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.mgr.Mint(env.alice, "DOT", big.NewInt(1_000)))
	require.NoError(t, env.mgr.Mint(env.bob, "DOT", big.NewInt(1_000)))
	env.feed(t, "DOT", common.FixedOne)
	require.NoError(t, env.engine.SetCollateralParams(types.RootOrigin(), "DOT", CollateralParamsChange{
		MaximumTotalDebitValue: Set(big.NewInt(10_000)),
	}))
	_, err := env.engine.AdjustPosition(env.alice, "DOT", big.NewInt(100), big.NewInt(60))
	require.NoError(t, err)
	_, err = env.engine.AdjustPosition(env.bob, "DOT", big.NewInt(400), big.NewInt(60))
	require.NoError(t, err)

	report, err := env.engine.OnBlock()
	require.NoError(t, err)
	require.Zero(t, report.Liquidated)

	env.feed(t, "DOT", common.FixedFromRational(8, 10))
	env.engine.SetBlockContext(types.BlockContext{Height: 7})
	report, err = env.engine.OnBlock()
	require.NoError(t, err)
	require.Equal(t, 1, report.Liquidated)
	auctions, err := env.auctions.Auctions()
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	require.Equal(t, uint64(7), auctions[0].StartBlock)

	env.shutdown.on = true
	report, err = env.engine.OnBlock()
	require.NoError(t, err)
	require.Equal(t, 1, report.Settled)
	pos, err := env.engine.Position("DOT", env.bob)
	require.NoError(t, err)
	require.Zero(t, pos.Debit.Sign())
	require.Equal(t, int64(325), pos.Collateral.Int64())
}
