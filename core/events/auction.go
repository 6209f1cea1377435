package events

import (
	"math/big"
	"strconv"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	TypeAuctionCreated   = "auction.new_collateral_auction"
	TypeAuctionDecayed   = "auction.price_decayed"
	TypeAuctionDealt     = "auction.dealt"
	TypeAuctionCancelled = "auction.cancelled"
)

type NewCollateralAuction struct {
	ID         uint64
	Asset      types.AssetID
	Amount     *big.Int
	Target     *big.Int
	Refund     crypto.Address
	StartPrice *big.Int
}

func (NewCollateralAuction) EventType() string { return TypeAuctionCreated }

func (e NewCollateralAuction) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionCreated,
		Attributes: map[string]string{
			"auctionId":  strconv.FormatUint(e.ID, 10),
			"asset":      normalizeAsset(e.Asset),
			"amount":     formatAmount(e.Amount),
			"target":     formatAmount(e.Target),
			"refund":     formatAddress(e.Refund),
			"startPrice": formatFixed(e.StartPrice),
		},
	}
}

type AuctionPriceDecayed struct {
	ID    uint64
	Price *big.Int
	Floor bool
}

func (AuctionPriceDecayed) EventType() string { return TypeAuctionDecayed }

func (e AuctionPriceDecayed) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionDecayed,
		Attributes: map[string]string{
			"auctionId": strconv.FormatUint(e.ID, 10),
			"price":     formatFixed(e.Price),
			"floor":     strconv.FormatBool(e.Floor),
		},
	}
}

type AuctionDealt struct {
	ID       uint64
	Asset    types.AssetID
	Bidder   crypto.Address
	Sold     *big.Int
	Payment  *big.Int
	Price    *big.Int
	Refunded *big.Int
}

func (AuctionDealt) EventType() string { return TypeAuctionDealt }

func (e AuctionDealt) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionDealt,
		Attributes: map[string]string{
			"auctionId": strconv.FormatUint(e.ID, 10),
			"asset":     normalizeAsset(e.Asset),
			"bidder":    formatAddress(e.Bidder),
			"sold":      formatAmount(e.Sold),
			"payment":   formatAmount(e.Payment),
			"price":     formatFixed(e.Price),
			"refunded":  formatAmount(e.Refunded),
		},
	}
}

type AuctionCancelled struct {
	ID     uint64
	Asset  types.AssetID
	Amount *big.Int
}

func (AuctionCancelled) EventType() string { return TypeAuctionCancelled }

func (e AuctionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionCancelled,
		Attributes: map[string]string{
			"auctionId": strconv.FormatUint(e.ID, 10),
			"asset":     normalizeAsset(e.Asset),
			"amount":    formatAmount(e.Amount),
		},
	}
}
