package cdp

import (
	"log/slog"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

var lastAccrualKey = []byte("cdp/last-accrual")

func exchangeRateKey(asset types.AssetID) []byte {
	return []byte("cdp/debit-exchange-rate/" + string(asset))
}

// DebitExchangeRate returns the stable value of one debit unit of asset in
// fixed point.
func (e *Engine) DebitExchangeRate(asset types.AssetID) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rate := new(big.Int)
	ok, err := e.state.KVGet(exchangeRateKey(types.NormalizeAsset(string(asset))), rate)
	if err != nil {
		return nil, err
	}
	if !ok || rate.Sign() == 0 {
		return new(big.Int).Set(e.cfg.DefaultDebitExchangeRate), nil
	}
	return rate, nil
}

// AccrueInterest compounds every collateral's stability fee from the last
// accrual up to now (unix seconds). The interest owed on outstanding debit is
// minted to the treasury as surplus. The first call only records the time.
func (e *Engine) AccrueInterest(now int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if now < 0 {
		return nil
	}
	var last uint64
	found, err := e.state.KVGet(lastAccrualKey, &last)
	if err != nil {
		return err
	}
	current := uint64(now)
	if found && current <= last {
		return nil
	}
	return common.Atomic(e.state, func() error {
		if found && !e.isShutdown() {
			if err := e.accrue(current - last); err != nil {
				return err
			}
		}
		return e.state.KVPut(lastAccrualKey, current)
	})
}

func (e *Engine) accrue(elapsed uint64) error {
	assets, err := e.Collaterals()
	if err != nil {
		return err
	}
	for _, asset := range assets {
		params, err := e.CollateralParams(asset)
		if err != nil {
			return err
		}
		perSec := new(big.Int).Add(common.Copy(params.InterestRatePerSec), e.cfg.GlobalInterestRatePerSec)
		if perSec.Sign() == 0 {
			continue
		}
		rate, err := e.DebitExchangeRate(asset)
		if err != nil {
			return err
		}
		growth := common.FixedPow(new(big.Int).Add(common.FixedOne, perSec), elapsed)
		next := common.FixedMul(rate, growth)
		if err := common.CheckU128(next); err != nil {
			return err
		}
		totals, err := e.ledger.Totals(asset)
		if err != nil {
			return err
		}
		surplus := new(big.Int).Sub(common.FixedMulInt(next, totals.Debit), common.FixedMulInt(rate, totals.Debit))
		if surplus.Sign() > 0 {
			if err := e.treasury.AddSurplus(surplus); err != nil {
				return err
			}
		}
		if err := e.state.KVPut(exchangeRateKey(asset), next); err != nil {
			return err
		}
		e.emitter.Emit(events.InterestAccrued{Asset: asset, ExchangeRate: next, Surplus: surplus})
	}
	return nil
}

// BlockReport summarises the per-block scan.
type BlockReport struct {
	Liquidated int
	Settled    int
	Failed     int
}

// OnBlock scans every collateral's positions. Before shutdown unsafe
// positions are liquidated; after shutdown debit-bearing positions are
// settled. The scan stops after MaxLiquidationsPerBlock actions. Failures are
// logged and skipped so one bad position never blocks the block.
func (e *Engine) OnBlock() (BlockReport, error) {
	var report BlockReport
	if err := e.ready(); err != nil {
		return report, err
	}
	assets, err := e.Collaterals()
	if err != nil {
		return report, err
	}
	shutdown := e.isShutdown()
	budget := e.cfg.MaxLiquidationsPerBlock
	for _, asset := range assets {
		owners, err := e.ledger.Owners(asset)
		if err != nil {
			return report, err
		}
		for _, owner := range owners {
			if report.Liquidated+report.Settled >= budget {
				return report, nil
			}
			if shutdown {
				e.settleIfIndebted(asset, owner, &report)
				continue
			}
			e.liquidateIfUnsafe(asset, owner, &report)
		}
	}
	return report, nil
}

func (e *Engine) liquidateIfUnsafe(asset types.AssetID, owner crypto.Address, report *BlockReport) {
	unsafe, err := e.IsUnsafe(asset, owner)
	if err != nil || !unsafe {
		return
	}
	if _, err := e.LiquidateUnsafeCDP(owner, asset); err != nil {
		report.Failed++
		e.logger.Warn("cdp block liquidation failed",
			slog.String("asset", string(asset)),
			slog.String("owner", owner.String()),
			slog.Any("error", err))
		return
	}
	report.Liquidated++
}

func (e *Engine) settleIfIndebted(asset types.AssetID, owner crypto.Address, report *BlockReport) {
	pos, err := e.ledger.Position(asset, owner)
	if err != nil || pos.Debit.Sign() == 0 {
		return
	}
	if _, err := e.SettleCDPHasDebit(owner, asset); err != nil {
		report.Failed++
		e.logger.Warn("cdp block settlement failed",
			slog.String("asset", string(asset)),
			slog.String("owner", owner.String()),
			slog.Any("error", err))
		return
	}
	report.Settled++
}
