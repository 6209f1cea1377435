package cdp

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/pricing"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/loans"
)

const moduleName = "cdp"

var (
	errNilState = errors.New("cdp engine: state not configured")

	ErrInvalidCollateralType        = errors.New("cdp engine: invalid collateral type")
	ErrInvalidParams                = errors.New("cdp engine: invalid collateral params")
	ErrBelowRequiredCollateralRatio = errors.New("cdp engine: below required collateral ratio")
	ErrBelowLiquidationRatio        = errors.New("cdp engine: below liquidation ratio")
	ErrExceedDebitValueHardCap      = errors.New("cdp engine: exceeds debit value hard cap")
	ErrRemainDebitValueTooSmall     = errors.New("cdp engine: remaining debit value too small")
	ErrInvalidFeedPrice             = errors.New("cdp engine: invalid feed price")
	ErrMustBeUnsafe                 = errors.New("cdp engine: position must be unsafe")
	ErrNoDebitValue                 = errors.New("cdp engine: no debit value")
	ErrAlreadyShutdown              = errors.New("cdp engine: system shut down")
)

// MaxRatio is reported for positions without debit.
var MaxRatio = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// engineState captures the state surface the risk engine needs.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	HasRole(role string, addr crypto.Address) bool
	Snapshot() int
	RevertToSnapshot(int)
}

// Treasury is the custody and debit accounting the engine settles through.
type Treasury interface {
	StableAsset() types.AssetID
	PledgeCollateral(from crypto.Address, asset types.AssetID, amount *big.Int) error
	ReleaseCollateral(to crypto.Address, asset types.AssetID, amount *big.Int) error
	ConfiscateCollateral(asset types.AssetID, amount *big.Int) error
	IssueDebit(who crypto.Address, amount *big.Int, backed bool) error
	RepayDebit(who crypto.Address, amount *big.Int) error
	AddDebit(amount *big.Int) error
	AddSurplus(amount *big.Int) error
	SwapCollateralForExactStable(asset types.AssetID, maxSupply, target *big.Int) (*big.Int, error)
	QuoteCollateralForStable(asset types.AssetID, target *big.Int) (*big.Int, error)
}

// Auctioneer opens collateral auctions.
type Auctioneer interface {
	NewCollateralAuction(refund crypto.Address, asset types.AssetID, amount, target, oraclePrice *big.Int, height uint64) (uint64, error)
}

// Engine enforces collateral ratios, dispatches liquidations and accrues
// stability fees.
type Engine struct {
	state    engineState
	ledger   *loans.Ledger
	treasury Treasury
	auctions Auctioneer
	oracle   pricing.PriceFeed
	cfg      Config
	pauses   common.PauseView
	shutdown common.ShutdownView
	emitter  events.Emitter
	logger   *slog.Logger
	block    types.BlockContext
}

// NewEngine wires the risk engine. Missing config fields take defaults.
func NewEngine(state engineState, treasury Treasury, auctions Auctioneer, oracle pricing.PriceFeed, cfg Config) *Engine {
	cfg.EnsureDefaults()
	e := &Engine{
		state:    state,
		treasury: treasury,
		auctions: auctions,
		oracle:   oracle,
		cfg:      cfg,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
	if state != nil {
		e.ledger = loans.NewLedger(state)
	}
	return e
}

// SetPauses wires the pause view.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetShutdownView wires the emergency shutdown status.
func (e *Engine) SetShutdownView(v common.ShutdownView) {
	if e == nil {
		return
	}
	e.shutdown = v
}

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetBlockContext records the block being executed. Auctions opened by
// liquidations start at its height.
func (e *Engine) SetBlockContext(ctx types.BlockContext) {
	if e == nil {
		return
	}
	e.block = ctx
}

// Ledger exposes the position ledger.
func (e *Engine) Ledger() *loans.Ledger { return e.ledger }

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.treasury == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) isShutdown() bool {
	return e.shutdown != nil && e.shutdown.IsShutdown()
}

func (e *Engine) price(asset types.AssetID) (*big.Int, error) {
	if e.oracle == nil {
		return nil, ErrInvalidFeedPrice
	}
	price, ok := e.oracle.Price(asset)
	if !ok || price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeedPrice, asset)
	}
	return price, nil
}

// Position returns the position of owner in asset.
func (e *Engine) Position(asset types.AssetID, owner crypto.Address) (loans.Position, error) {
	if err := e.ready(); err != nil {
		return loans.Position{}, err
	}
	return e.ledger.Position(types.NormalizeAsset(string(asset)), owner)
}

// DebitValue converts debit units of asset into stable value, rounding down.
func (e *Engine) DebitValue(asset types.AssetID, debit *big.Int) (*big.Int, error) {
	rate, err := e.DebitExchangeRate(asset)
	if err != nil {
		return nil, err
	}
	return common.FixedMulInt(rate, debit), nil
}

// CalculateCollateralRatio returns collateral*price divided by the stable
// value of debit. Positions without debit report MaxRatio.
func (e *Engine) CalculateCollateralRatio(asset types.AssetID, collateral, debit, price *big.Int) (*big.Int, error) {
	value, err := e.DebitValue(asset, debit)
	if err != nil {
		return nil, err
	}
	return collateralRatio(collateral, value, price)
}

func collateralRatio(collateral, debitValue, price *big.Int) (*big.Int, error) {
	if debitValue == nil || debitValue.Sign() == 0 {
		return new(big.Int).Set(MaxRatio), nil
	}
	ratio, err := common.MulDiv(common.Copy(collateral), common.Copy(price), debitValue)
	if err != nil {
		return nil, err
	}
	if ratio.Cmp(MaxRatio) > 0 {
		return new(big.Int).Set(MaxRatio), nil
	}
	return ratio, nil
}

// CheckDebitCap fails when totalDebit units of asset are worth more than the
// collateral's maximum total debit value. An unset cap allows no debit.
func (e *Engine) CheckDebitCap(asset types.AssetID, totalDebit *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	asset = types.NormalizeAsset(string(asset))
	params, err := e.CollateralParams(asset)
	if err != nil {
		return err
	}
	value, err := e.DebitValue(asset, totalDebit)
	if err != nil {
		return err
	}
	hardCap := common.Copy(params.MaximumTotalDebitValue)
	if value.Cmp(hardCap) > 0 {
		return fmt.Errorf("%w: %s exceeds %s", ErrExceedDebitValueHardCap, value, hardCap)
	}
	return nil
}

// AdjustPosition moves collateralDelta of asset between who and the treasury,
// mints or burns the stable value of debitDelta, and updates the position.
// Risk-increasing adjustments must leave the position above both the
// liquidation ratio and the required collateral ratio.
func (e *Engine) AdjustPosition(who crypto.Address, asset types.AssetID, collateralDelta, debitDelta *big.Int) (loans.Position, error) {
	if err := e.ready(); err != nil {
		return loans.Position{}, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return loans.Position{}, err
	}
	collateralDelta = common.Copy(collateralDelta)
	debitDelta = common.Copy(debitDelta)
	if debitDelta.Sign() > 0 && e.isShutdown() {
		return loans.Position{}, ErrAlreadyShutdown
	}
	asset = types.NormalizeAsset(string(asset))
	known, err := e.IsCollateral(asset)
	if err != nil {
		return loans.Position{}, err
	}
	if !known {
		return loans.Position{}, fmt.Errorf("%w: %s", ErrInvalidCollateralType, asset)
	}

	var updated loans.Position
	err = common.Atomic(e.state, func() error {
		switch collateralDelta.Sign() {
		case 1:
			if err := e.treasury.PledgeCollateral(who, asset, collateralDelta); err != nil {
				return err
			}
		case -1:
			if err := e.treasury.ReleaseCollateral(who, asset, new(big.Int).Neg(collateralDelta)); err != nil {
				return err
			}
		}
		switch debitDelta.Sign() {
		case 1:
			value, err := e.DebitValue(asset, debitDelta)
			if err != nil {
				return err
			}
			if err := e.treasury.IssueDebit(who, value, true); err != nil {
				return err
			}
		case -1:
			value, err := e.DebitValue(asset, new(big.Int).Neg(debitDelta))
			if err != nil {
				return err
			}
			if err := e.treasury.RepayDebit(who, value); err != nil {
				return err
			}
		}
		var err error
		updated, err = e.ledger.Update(asset, who, debitDelta, collateralDelta)
		if err != nil {
			return err
		}
		riskIncreasing := debitDelta.Sign() > 0 || collateralDelta.Sign() < 0
		if err := e.checkPosition(asset, updated, riskIncreasing); err != nil {
			return err
		}
		if debitDelta.Sign() > 0 {
			totals, err := e.ledger.Totals(asset)
			if err != nil {
				return err
			}
			if err := e.CheckDebitCap(asset, totals.Debit); err != nil {
				return err
			}
		}
		e.emitter.Emit(events.PositionUpdated{
			Owner:           who,
			Asset:           asset,
			CollateralDelta: collateralDelta,
			DebitDelta:      debitDelta,
			Collateral:      updated.Collateral,
			Debit:           updated.Debit,
		})
		return nil
	})
	if err != nil {
		return loans.Position{}, err
	}
	return updated, nil
}

// checkPosition validates a position after adjustment. Ratio checks only
// apply to risk-increasing adjustments so owners can always deleverage.
func (e *Engine) checkPosition(asset types.AssetID, pos loans.Position, riskIncreasing bool) error {
	if pos.Debit.Sign() == 0 {
		return nil
	}
	value, err := e.DebitValue(asset, pos.Debit)
	if err != nil {
		return err
	}
	if value.Cmp(e.cfg.MinimumDebitValue) < 0 {
		return fmt.Errorf("%w: %s below %s", ErrRemainDebitValueTooSmall, value, e.cfg.MinimumDebitValue)
	}
	if !riskIncreasing {
		return nil
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}
	ratio, err := collateralRatio(pos.Collateral, value, price)
	if err != nil {
		return err
	}
	params, err := e.CollateralParams(asset)
	if err != nil {
		return err
	}
	// The required ratio is the safety gate; it is reported even when the
	// position is also below the liquidation ratio.
	if params.RequiredCollateralRatio != nil && ratio.Cmp(params.RequiredCollateralRatio) < 0 {
		return ErrBelowRequiredCollateralRatio
	}
	if ratio.Cmp(e.liquidationRatio(params)) < 0 {
		return ErrBelowLiquidationRatio
	}
	return nil
}

// TotalDebit returns the debit units outstanding against asset.
func (e *Engine) TotalDebit(asset types.AssetID) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	totals, err := e.ledger.Totals(types.NormalizeAsset(string(asset)))
	if err != nil {
		return nil, err
	}
	return totals.Debit, nil
}
