package rpc

import (
	"math/big"

	"cdpchain/config"
	"cdpchain/native/auction"
	"cdpchain/native/cdp"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// PositionResponse describes one CDP.
type PositionResponse struct {
	Asset           string   `json:"asset"`
	Owner           string   `json:"owner"`
	Collateral      *big.Int `json:"collateral"`
	Debit           *big.Int `json:"debit"`
	DebitValue      *big.Int `json:"debitValue"`
	CollateralRatio string   `json:"collateralRatio,omitempty"`
	Unsafe          bool     `json:"unsafe"`
}

// TreasuryResponse reports the treasury pools.
type TreasuryResponse struct {
	Account     string   `json:"account"`
	StableAsset string   `json:"stableAsset"`
	DebitPool   *big.Int `json:"debitPool"`
	SurplusPool *big.Int `json:"surplusPool"`
}

// CustodyResponse reports the collateral held for one asset.
type CustodyResponse struct {
	Asset    string   `json:"asset"`
	Total    *big.Int `json:"total"`
	Free     *big.Int `json:"free"`
	Reserved *big.Int `json:"reserved"`
}

// PoolResponse reports a liquidity pool.
type PoolResponse struct {
	AssetA   string   `json:"assetA"`
	AssetB   string   `json:"assetB"`
	Enabled  bool     `json:"enabled"`
	ReserveA *big.Int `json:"reserveA"`
	ReserveB *big.Int `json:"reserveB"`
}

// AuctionResponse describes an open collateral auction.
type AuctionResponse struct {
	ID         uint64   `json:"id"`
	Asset      string   `json:"asset"`
	Amount     *big.Int `json:"amount"`
	Target     *big.Int `json:"target"`
	Refund     string   `json:"refund"`
	StartBlock uint64   `json:"startBlock"`
	StartPrice string   `json:"startPrice"`
	FloorPrice string   `json:"floorPrice"`
	Price      string   `json:"price"`
	NextStep   uint64   `json:"nextStep"`
}

func newAuctionResponse(a *auction.CollateralAuction) AuctionResponse {
	return AuctionResponse{
		ID:         a.ID,
		Asset:      string(a.Asset),
		Amount:     a.Amount,
		Target:     a.Target,
		Refund:     a.Refund.String(),
		StartBlock: a.StartBlock,
		StartPrice: config.FormatFixed(a.StartPrice),
		FloorPrice: config.FormatFixed(a.FloorPrice),
		Price:      config.FormatFixed(a.Price),
		NextStep:   a.NextStep,
	}
}

// ParamsResponse lists collateral parameters. Unset values are omitted.
type ParamsResponse struct {
	Asset                   string   `json:"asset"`
	InterestRatePerSec      string   `json:"interestRatePerSec,omitempty"`
	LiquidationRatio        string   `json:"liquidationRatio,omitempty"`
	LiquidationPenalty      string   `json:"liquidationPenalty,omitempty"`
	RequiredCollateralRatio string   `json:"requiredCollateralRatio,omitempty"`
	MaximumTotalDebitValue  *big.Int `json:"maximumTotalDebitValue,omitempty"`
	DebitExchangeRate       string   `json:"debitExchangeRate"`
	TotalDebit              *big.Int `json:"totalDebit"`
}

func newParamsResponse(asset string, p cdp.CollateralParams, rate, total *big.Int) ParamsResponse {
	return ParamsResponse{
		Asset:                   asset,
		InterestRatePerSec:      config.FormatFixed(p.InterestRatePerSec),
		LiquidationRatio:        config.FormatFixed(p.LiquidationRatio),
		LiquidationPenalty:      config.FormatFixed(p.LiquidationPenalty),
		RequiredCollateralRatio: config.FormatFixed(p.RequiredCollateralRatio),
		MaximumTotalDebitValue:  p.MaximumTotalDebitValue,
		DebitExchangeRate:       config.FormatFixed(rate),
		TotalDebit:              total,
	}
}

// ShutdownResponse reports the shutdown phase and paused modules.
type ShutdownResponse struct {
	Shutdown       bool     `json:"shutdown"`
	RefundOpen     bool     `json:"refundOpen"`
	ShutdownHeight uint64   `json:"shutdownHeight,omitempty"`
	RefundHeight   uint64   `json:"refundHeight,omitempty"`
	Paused         []string `json:"paused"`
}

// HeadResponse reports the last committed block.
type HeadResponse struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// SubmitResponse acknowledges a queued transaction.
type SubmitResponse struct {
	TxHash  string `json:"txHash"`
	Pending int    `json:"pending"`
}
