package cdp

import (
	"fmt"
	"log/slog"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// LiquidationStrategy names how seized collateral is sold.
type LiquidationStrategy string

const (
	// StrategyAuction sells through a Dutch collateral auction.
	StrategyAuction LiquidationStrategy = "auction"
	// StrategyExchange sells immediately through the liquidity pools.
	StrategyExchange LiquidationStrategy = "exchange"
)

// LiquidationQuote is the input of the strategy decision.
type LiquidationQuote struct {
	// Collateral is the amount seized from the position.
	Collateral *big.Int
	// Target is the stable value owed including the penalty.
	Target *big.Int
	// Supply is the collateral the pools need to produce Target, nil when
	// no route exists.
	Supply *big.Int
	// OraclePrice is the current collateral price.
	OraclePrice *big.Int
	// MaxSlippage bounds the realised price relative to OraclePrice.
	MaxSlippage *big.Int
}

// ChooseLiquidationStrategy picks the exchange when the pools can raise the
// target from the seized collateral at a price within MaxSlippage of the
// oracle, and an auction otherwise.
func ChooseLiquidationStrategy(q LiquidationQuote) LiquidationStrategy {
	if q.Supply == nil || q.Supply.Sign() <= 0 || q.Collateral == nil || q.Target == nil {
		return StrategyAuction
	}
	if q.Supply.Cmp(q.Collateral) > 0 {
		return StrategyAuction
	}
	if q.OraclePrice == nil || q.OraclePrice.Sign() <= 0 {
		return StrategyAuction
	}
	slippage := common.Copy(q.MaxSlippage)
	if slippage.Cmp(common.FixedOne) >= 0 {
		return StrategyExchange
	}
	// The realised price target/supply must be at least oracle*(1-slippage).
	minPrice := common.FixedMul(q.OraclePrice, new(big.Int).Sub(common.FixedOne, slippage))
	if common.FixedMulInt(minPrice, q.Supply).Cmp(q.Target) > 0 {
		return StrategyAuction
	}
	return StrategyExchange
}

// LiquidationResult describes a completed liquidation.
type LiquidationResult struct {
	Strategy   LiquidationStrategy
	Collateral *big.Int
	DebitValue *big.Int
	Target     *big.Int
	// Sold is the collateral swapped by the exchange strategy.
	Sold *big.Int
	// AuctionID is set for the auction strategy.
	AuctionID uint64
}

// IsUnsafe reports whether the position of owner is below the liquidation
// ratio at the current price.
func (e *Engine) IsUnsafe(asset types.AssetID, owner crypto.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	asset = types.NormalizeAsset(string(asset))
	pos, err := e.ledger.Position(asset, owner)
	if err != nil {
		return false, err
	}
	if pos.Debit.Sign() == 0 {
		return false, nil
	}
	price, err := e.price(asset)
	if err != nil {
		return false, err
	}
	ratio, err := e.CalculateCollateralRatio(asset, pos.Collateral, pos.Debit, price)
	if err != nil {
		return false, err
	}
	params, err := e.CollateralParams(asset)
	if err != nil {
		return false, err
	}
	return ratio.Cmp(e.liquidationRatio(params)) < 0, nil
}

// Liquidate is the permissionless liquidation entry point. Every origin goes
// through the same unsafe check.
func (e *Engine) Liquidate(origin types.Origin, asset types.AssetID, owner crypto.Address) (LiquidationResult, error) {
	switch origin.Kind {
	case types.OriginNone, types.OriginSigned, types.OriginRoot:
	default:
		return LiquidationResult{}, common.ErrBadOrigin
	}
	return e.LiquidateUnsafeCDP(owner, asset)
}

// LiquidateUnsafeCDP closes an unsafe position. Its debit value moves to the
// treasury debit pool and its collateral is sold either through the pools or
// through an auction targeting the debit value plus the liquidation penalty.
func (e *Engine) LiquidateUnsafeCDP(owner crypto.Address, asset types.AssetID) (LiquidationResult, error) {
	if err := e.ready(); err != nil {
		return LiquidationResult{}, err
	}
	asset = types.NormalizeAsset(string(asset))
	var result LiquidationResult
	err := common.Atomic(e.state, func() error {
		unsafe, err := e.IsUnsafe(asset, owner)
		if err != nil {
			return err
		}
		if !unsafe {
			return ErrMustBeUnsafe
		}
		pos, err := e.ledger.Position(asset, owner)
		if err != nil {
			return err
		}
		price, err := e.price(asset)
		if err != nil {
			return err
		}
		params, err := e.CollateralParams(asset)
		if err != nil {
			return err
		}
		debitValue, err := e.DebitValue(asset, pos.Debit)
		if err != nil {
			return err
		}
		target := new(big.Int).Add(debitValue, common.FixedMulInt(e.liquidationPenalty(params), debitValue))
		if err := common.CheckU128(target); err != nil {
			return err
		}

		if _, err := e.ledger.Update(asset, owner, new(big.Int).Neg(pos.Debit), new(big.Int).Neg(pos.Collateral)); err != nil {
			return err
		}
		if err := e.treasury.AddDebit(debitValue); err != nil {
			return err
		}

		result = LiquidationResult{
			Collateral: pos.Collateral,
			DebitValue: debitValue,
			Target:     target,
		}
		quote := LiquidationQuote{
			Collateral:  pos.Collateral,
			Target:      target,
			OraclePrice: price,
			MaxSlippage: e.cfg.MaxSwapSlippageCompareToOracle,
		}
		if supply, err := e.treasury.QuoteCollateralForStable(asset, target); err == nil {
			quote.Supply = supply
		}
		result.Strategy = ChooseLiquidationStrategy(quote)
		if result.Strategy == StrategyExchange {
			sold, err := e.treasury.SwapCollateralForExactStable(asset, pos.Collateral, target)
			if err != nil {
				e.logger.Warn("cdp exchange liquidation failed, falling back to auction",
					slog.String("asset", string(asset)),
					slog.String("owner", owner.String()),
					slog.Any("error", err))
				result.Strategy = StrategyAuction
			} else {
				result.Sold = sold
				leftover := new(big.Int).Sub(pos.Collateral, sold)
				if leftover.Sign() > 0 {
					if err := e.treasury.ReleaseCollateral(owner, asset, leftover); err != nil {
						return err
					}
				}
			}
		}
		if result.Strategy == StrategyAuction {
			if e.auctions == nil {
				return fmt.Errorf("cdp engine: auction manager not configured")
			}
			id, err := e.auctions.NewCollateralAuction(owner, asset, pos.Collateral, target, price, e.block.Height)
			if err != nil {
				return err
			}
			result.AuctionID = id
		}
		e.emitter.Emit(events.LiquidateUnsafeCDP{
			Asset:         asset,
			Owner:         owner,
			Collateral:    pos.Collateral,
			BadDebitValue: debitValue,
			Target:        target,
			Strategy:      string(result.Strategy),
			AuctionID:     result.AuctionID,
		})
		return nil
	})
	if err != nil {
		return LiquidationResult{}, err
	}
	e.logger.Info("cdp position liquidated",
		slog.String("asset", string(asset)),
		slog.String("owner", owner.String()),
		slog.String("strategy", string(result.Strategy)),
		slog.String("debitValue", result.DebitValue.String()))
	return result, nil
}

// Settle is the settlement entry point. Anyone may settle once the system is
// shut down; before that only root may.
func (e *Engine) Settle(origin types.Origin, asset types.AssetID, owner crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.isShutdown() {
		if err := common.EnsureRoot(e.state, origin); err != nil {
			return nil, err
		}
	}
	return e.SettleCDPHasDebit(owner, asset)
}

// SettleCDPHasDebit clears the debit of a position by confiscating collateral
// worth the debit value, capped at the collateral held, and recording the
// debit value in the treasury debit pool. It returns the confiscated amount.
func (e *Engine) SettleCDPHasDebit(owner crypto.Address, asset types.AssetID) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	asset = types.NormalizeAsset(string(asset))
	var confiscated *big.Int
	err := common.Atomic(e.state, func() error {
		pos, err := e.ledger.Position(asset, owner)
		if err != nil {
			return err
		}
		if pos.Debit.Sign() == 0 {
			return ErrNoDebitValue
		}
		price, err := e.price(asset)
		if err != nil {
			return err
		}
		debitValue, err := e.DebitValue(asset, pos.Debit)
		if err != nil {
			return err
		}
		worth, err := common.IntDivFixed(debitValue, price)
		if err != nil {
			return err
		}
		confiscated = common.Min(pos.Collateral, worth)
		if confiscated.Sign() > 0 {
			if err := e.treasury.ConfiscateCollateral(asset, confiscated); err != nil {
				return err
			}
		}
		if debitValue.Sign() > 0 {
			if err := e.treasury.AddDebit(debitValue); err != nil {
				return err
			}
		}
		if _, err := e.ledger.Update(asset, owner, new(big.Int).Neg(pos.Debit), new(big.Int).Neg(confiscated)); err != nil {
			return err
		}
		e.emitter.Emit(events.SettleCDPInDebit{
			Asset:       asset,
			Owner:       owner,
			Confiscated: confiscated,
			DebitValue:  debitValue,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confiscated, nil
}
