package events

import (
	"math/big"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	TypeCDPPositionUpdated  = "cdp.position_updated"
	TypeCDPLiquidated       = "cdp.liquidate_unsafe_cdp"
	TypeCDPSettled          = "cdp.settle_cdp_in_debit"
	TypeCDPParamsUpdated    = "cdp.collateral_params_updated"
	TypeCDPInterestAccrued  = "cdp.interest_accrued"
	TypeTreasuryDebitOffset = "treasury.surplus_debit_offset"
	TypeOraclePriceFed      = "oracle.price_fed"
	TypeOraclePriceLocked   = "oracle.price_locked"
	TypeSystemPausesUpdated = "system.pauses_updated"
)

// PositionUpdated reports the result of an owner-initiated position
// adjustment. Deltas are signed.
type PositionUpdated struct {
	Owner           crypto.Address
	Asset           types.AssetID
	CollateralDelta *big.Int
	DebitDelta      *big.Int
	Collateral      *big.Int
	Debit           *big.Int
}

func (PositionUpdated) EventType() string { return TypeCDPPositionUpdated }

func (e PositionUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPPositionUpdated,
		Attributes: map[string]string{
			"owner":           formatAddress(e.Owner),
			"asset":           normalizeAsset(e.Asset),
			"collateralDelta": formatAmount(e.CollateralDelta),
			"debitDelta":      formatAmount(e.DebitDelta),
			"collateral":      formatAmount(e.Collateral),
			"debit":           formatAmount(e.Debit),
		},
	}
}

// LiquidateUnsafeCDP is emitted when an unsafe position is closed. BadDebitValue
// is the stable value of the confiscated debt.
type LiquidateUnsafeCDP struct {
	Asset         types.AssetID
	Owner         crypto.Address
	Collateral    *big.Int
	BadDebitValue *big.Int
	Target        *big.Int
	Strategy      string
	AuctionID     uint64
}

func (LiquidateUnsafeCDP) EventType() string { return TypeCDPLiquidated }

func (e LiquidateUnsafeCDP) Event() *types.Event {
	attrs := map[string]string{
		"asset":         normalizeAsset(e.Asset),
		"owner":         formatAddress(e.Owner),
		"collateral":    formatAmount(e.Collateral),
		"badDebitValue": formatAmount(e.BadDebitValue),
		"target":        formatAmount(e.Target),
		"strategy":      e.Strategy,
	}
	if e.Strategy == "auction" {
		attrs["auctionId"] = new(big.Int).SetUint64(e.AuctionID).String()
	}
	return &types.Event{Type: TypeCDPLiquidated, Attributes: attrs}
}

type SettleCDPInDebit struct {
	Asset       types.AssetID
	Owner       crypto.Address
	Confiscated *big.Int
	DebitValue  *big.Int
}

func (SettleCDPInDebit) EventType() string { return TypeCDPSettled }

func (e SettleCDPInDebit) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPSettled,
		Attributes: map[string]string{
			"asset":       normalizeAsset(e.Asset),
			"owner":       formatAddress(e.Owner),
			"confiscated": formatAmount(e.Confiscated),
			"debitValue":  formatAmount(e.DebitValue),
		},
	}
}

// CollateralParamsUpdated lists the resulting parameters; unset fields render
// as empty strings.
type CollateralParamsUpdated struct {
	Asset                   types.AssetID
	InterestRatePerSec      *big.Int
	LiquidationRatio        *big.Int
	LiquidationPenalty      *big.Int
	RequiredCollateralRatio *big.Int
	MaximumTotalDebitValue  *big.Int
}

func (CollateralParamsUpdated) EventType() string { return TypeCDPParamsUpdated }

func (e CollateralParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPParamsUpdated,
		Attributes: map[string]string{
			"asset":                   normalizeAsset(e.Asset),
			"interestRatePerSec":      formatFixed(e.InterestRatePerSec),
			"liquidationRatio":        formatFixed(e.LiquidationRatio),
			"liquidationPenalty":      formatFixed(e.LiquidationPenalty),
			"requiredCollateralRatio": formatFixed(e.RequiredCollateralRatio),
			"maximumTotalDebitValue":  formatAmount(e.MaximumTotalDebitValue),
		},
	}
}

type InterestAccrued struct {
	Asset        types.AssetID
	ExchangeRate *big.Int
	Surplus      *big.Int
}

func (InterestAccrued) EventType() string { return TypeCDPInterestAccrued }

func (e InterestAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPInterestAccrued,
		Attributes: map[string]string{
			"asset":        normalizeAsset(e.Asset),
			"exchangeRate": formatFixed(e.ExchangeRate),
			"surplus":      formatAmount(e.Surplus),
		},
	}
}

type DebitOffset struct {
	Amount *big.Int
}

func (DebitOffset) EventType() string { return TypeTreasuryDebitOffset }

func (e DebitOffset) Event() *types.Event {
	return &types.Event{
		Type:       TypeTreasuryDebitOffset,
		Attributes: map[string]string{"amount": formatAmount(e.Amount)},
	}
}

type PriceFed struct {
	Asset  types.AssetID
	Price  *big.Int
	Feeder crypto.Address
}

func (PriceFed) EventType() string { return TypeOraclePriceFed }

func (e PriceFed) Event() *types.Event {
	return &types.Event{
		Type: TypeOraclePriceFed,
		Attributes: map[string]string{
			"asset":  normalizeAsset(e.Asset),
			"price":  formatFixed(e.Price),
			"feeder": formatAddress(e.Feeder),
		},
	}
}

type PriceLocked struct {
	Asset types.AssetID
	Price *big.Int
}

func (PriceLocked) EventType() string { return TypeOraclePriceLocked }

func (e PriceLocked) Event() *types.Event {
	return &types.Event{
		Type: TypeOraclePriceLocked,
		Attributes: map[string]string{
			"asset": normalizeAsset(e.Asset),
			"price": formatFixed(e.Price),
		},
	}
}

type PausesUpdated struct {
	Modules map[string]bool
}

func (PausesUpdated) EventType() string { return TypeSystemPausesUpdated }

func (e PausesUpdated) Event() *types.Event {
	attrs := make(map[string]string, len(e.Modules))
	for module, paused := range e.Modules {
		if paused {
			attrs[module] = "paused"
		} else {
			attrs[module] = "active"
		}
	}
	return &types.Event{Type: TypeSystemPausesUpdated, Attributes: attrs}
}
