package events

import (
	"math/big"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	// TypeDexAddLiquidity is emitted when liquidity is deposited into a pool.
	TypeDexAddLiquidity = "dex.add_liquidity"
	// TypeDexRemoveLiquidity is emitted when shares are redeemed.
	TypeDexRemoveLiquidity = "dex.remove_liquidity"
	// TypeDexSwap is emitted for every executed swap along a path.
	TypeDexSwap = "dex.swap"
	// TypeDexTradingPairEnabled and TypeDexTradingPairDisabled track pair
	// availability.
	TypeDexTradingPairEnabled  = "dex.trading_pair_enabled"
	TypeDexTradingPairDisabled = "dex.trading_pair_disabled"
	// TypeDexSharesUnstaked is emitted when staked LP shares are returned.
	TypeDexSharesUnstaked = "dex.shares_unstaked"
)

type AddLiquidity struct {
	Who     crypto.Address
	AssetA  types.AssetID
	AmountA *big.Int
	AssetB  types.AssetID
	AmountB *big.Int
	Share   *big.Int
	Staked  bool
}

func (AddLiquidity) EventType() string { return TypeDexAddLiquidity }

func (e AddLiquidity) Event() *types.Event {
	staked := "false"
	if e.Staked {
		staked = "true"
	}
	return &types.Event{
		Type: TypeDexAddLiquidity,
		Attributes: map[string]string{
			"who":     formatAddress(e.Who),
			"assetA":  normalizeAsset(e.AssetA),
			"amountA": formatAmount(e.AmountA),
			"assetB":  normalizeAsset(e.AssetB),
			"amountB": formatAmount(e.AmountB),
			"share":   formatAmount(e.Share),
			"staked":  staked,
		},
	}
}

type RemoveLiquidity struct {
	Who     crypto.Address
	AssetA  types.AssetID
	AmountA *big.Int
	AssetB  types.AssetID
	AmountB *big.Int
	Share   *big.Int
}

func (RemoveLiquidity) EventType() string { return TypeDexRemoveLiquidity }

func (e RemoveLiquidity) Event() *types.Event {
	return &types.Event{
		Type: TypeDexRemoveLiquidity,
		Attributes: map[string]string{
			"who":     formatAddress(e.Who),
			"assetA":  normalizeAsset(e.AssetA),
			"amountA": formatAmount(e.AmountA),
			"assetB":  normalizeAsset(e.AssetB),
			"amountB": formatAmount(e.AmountB),
			"share":   formatAmount(e.Share),
		},
	}
}

type Swap struct {
	Who          crypto.Address
	Path         []types.AssetID
	SupplyAmount *big.Int
	TargetAmount *big.Int
}

func (Swap) EventType() string { return TypeDexSwap }

func (e Swap) Event() *types.Event {
	return &types.Event{
		Type: TypeDexSwap,
		Attributes: map[string]string{
			"who":          formatAddress(e.Who),
			"path":         formatPath(e.Path),
			"supplyAmount": formatAmount(e.SupplyAmount),
			"targetAmount": formatAmount(e.TargetAmount),
		},
	}
}

type TradingPairStatus struct {
	Pair    types.TradingPair
	Enabled bool
}

func (e TradingPairStatus) EventType() string {
	if e.Enabled {
		return TypeDexTradingPairEnabled
	}
	return TypeDexTradingPairDisabled
}

func (e TradingPairStatus) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"assetA": normalizeAsset(e.Pair.A),
			"assetB": normalizeAsset(e.Pair.B),
		},
	}
}

type SharesUnstaked struct {
	Who    crypto.Address
	Share  types.AssetID
	Amount *big.Int
}

func (SharesUnstaked) EventType() string { return TypeDexSharesUnstaked }

func (e SharesUnstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeDexSharesUnstaked,
		Attributes: map[string]string{
			"who":    formatAddress(e.Who),
			"share":  normalizeAsset(e.Share),
			"amount": formatAmount(e.Amount),
		},
	}
}
