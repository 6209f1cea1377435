package events

import (
	"math/big"
	"sort"
	"strconv"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	TypeShutdown          = "shutdown.emergency"
	TypeRefundOpen        = "shutdown.refund_open"
	TypeRefundCollaterals = "shutdown.refund_collaterals"
)

type Shutdown struct {
	Height uint64
}

func (Shutdown) EventType() string { return TypeShutdown }

func (e Shutdown) Event() *types.Event {
	return &types.Event{
		Type:       TypeShutdown,
		Attributes: map[string]string{"height": strconv.FormatUint(e.Height, 10)},
	}
}

type RefundOpen struct {
	Height uint64
}

func (RefundOpen) EventType() string { return TypeRefundOpen }

func (e RefundOpen) Event() *types.Event {
	return &types.Event{
		Type:       TypeRefundOpen,
		Attributes: map[string]string{"height": strconv.FormatUint(e.Height, 10)},
	}
}

// CollateralPayout is one asset paid out by a refund.
type CollateralPayout struct {
	Asset  types.AssetID
	Amount *big.Int
}

type RefundCollaterals struct {
	Who     crypto.Address
	Amount  *big.Int
	Payouts []CollateralPayout
}

func (RefundCollaterals) EventType() string { return TypeRefundCollaterals }

func (e RefundCollaterals) Event() *types.Event {
	attrs := map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}
	payouts := append([]CollateralPayout(nil), e.Payouts...)
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].Asset < payouts[j].Asset })
	for _, payout := range payouts {
		attrs["refund."+normalizeAsset(payout.Asset)] = formatAmount(payout.Amount)
	}
	return &types.Event{Type: TypeRefundCollaterals, Attributes: attrs}
}
