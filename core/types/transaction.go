package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	cdpcrypto "cdpchain/crypto"
)

// TxType defines the purpose of a transaction.
type TxType string

const (
	TxTypeAdjustPosition      TxType = "cdp.adjust_position"
	TxTypeLiquidate           TxType = "cdp.liquidate"
	TxTypeSettle              TxType = "cdp.settle"
	TxTypeSetCollateralParams TxType = "cdp.set_collateral_params"

	TxTypeAddLiquidity      TxType = "dex.add_liquidity"
	TxTypeRemoveLiquidity   TxType = "dex.remove_liquidity"
	TxTypeSwapExactSupply   TxType = "dex.swap_exact_supply"
	TxTypeSwapExactTarget   TxType = "dex.swap_exact_target"
	TxTypeEnableTradingPair TxType = "dex.enable_trading_pair"
	TxTypeUnstakeShares     TxType = "dex.unstake_shares"

	TxTypeAuctionBid    TxType = "auction.bid"
	TxTypeAuctionCancel TxType = "auction.cancel"

	TxTypeEmergencyShutdown    TxType = "shutdown.emergency"
	TxTypeOpenCollateralRefund TxType = "shutdown.open_refund"
	TxTypeRefundCollaterals    TxType = "shutdown.refund"

	TxTypeFeedPrice TxType = "oracle.feed_price"
	TxTypeSetPauses TxType = "system.set_pauses"
	TxTypeTransfer  TxType = "bank.transfer"
)

// Transaction is an unsigned call submitted by Signer. Signature checking
// happens before a transaction reaches the state machine.
type Transaction struct {
	Type    TxType            `json:"type"`
	Signer  cdpcrypto.Address `json:"signer"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Hash returns the keccak256 hash of the JSON encoding.
func (tx *Transaction) Hash() ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}

// DecodePayload unmarshals the payload into out.
func (tx *Transaction) DecodePayload(out interface{}) error {
	if tx == nil || len(tx.Payload) == 0 {
		return fmt.Errorf("transaction %s: empty payload", tx.typeName())
	}
	if err := json.Unmarshal(tx.Payload, out); err != nil {
		return fmt.Errorf("transaction %s: decode payload: %w", tx.typeName(), err)
	}
	return nil
}

func (tx *Transaction) typeName() string {
	if tx == nil {
		return "<nil>"
	}
	return strings.TrimSpace(string(tx.Type))
}

// NewTransaction encodes payload and wraps it into a transaction.
func NewTransaction(txType TxType, signer cdpcrypto.Address, payload interface{}) (*Transaction, error) {
	tx := &Transaction{Type: txType, Signer: signer}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		tx.Payload = raw
	}
	return tx, nil
}

// Payloads. Amounts are JSON numbers; signed deltas may be negative.

type AdjustPositionPayload struct {
	Asset           AssetID  `json:"asset"`
	CollateralDelta *big.Int `json:"collateralDelta"`
	DebitDelta      *big.Int `json:"debitDelta"`
}

type PositionTargetPayload struct {
	Asset AssetID           `json:"asset"`
	Owner cdpcrypto.Address `json:"owner"`
}

// ParamChangePayload encodes one field change: Op is "noop", "clear" or
// "set"; Value is a decimal string for "set".
type ParamChangePayload struct {
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

type SetCollateralParamsPayload struct {
	Asset                   AssetID            `json:"asset"`
	InterestRatePerSec      ParamChangePayload `json:"interestRatePerSec"`
	LiquidationRatio        ParamChangePayload `json:"liquidationRatio"`
	LiquidationPenalty      ParamChangePayload `json:"liquidationPenalty"`
	RequiredCollateralRatio ParamChangePayload `json:"requiredCollateralRatio"`
	MaximumTotalDebitValue  ParamChangePayload `json:"maximumTotalDebitValue"`
}

type AddLiquidityPayload struct {
	AssetA   AssetID  `json:"assetA"`
	AssetB   AssetID  `json:"assetB"`
	MaxA     *big.Int `json:"maxA"`
	MaxB     *big.Int `json:"maxB"`
	MinShare *big.Int `json:"minShare"`
	Stake    bool     `json:"stake"`
}

type RemoveLiquidityPayload struct {
	AssetA AssetID  `json:"assetA"`
	AssetB AssetID  `json:"assetB"`
	Share  *big.Int `json:"share"`
	MinA   *big.Int `json:"minA"`
	MinB   *big.Int `json:"minB"`
}

type SwapExactSupplyPayload struct {
	Path         []AssetID `json:"path"`
	SupplyAmount *big.Int  `json:"supplyAmount"`
	MinTarget    *big.Int  `json:"minTarget"`
}

type SwapExactTargetPayload struct {
	Path         []AssetID `json:"path"`
	TargetAmount *big.Int  `json:"targetAmount"`
	MaxSupply    *big.Int  `json:"maxSupply"`
}

type TradingPairPayload struct {
	AssetA  AssetID `json:"assetA"`
	AssetB  AssetID `json:"assetB"`
	Enabled bool    `json:"enabled"`
}

type UnstakeSharesPayload struct {
	AssetA AssetID  `json:"assetA"`
	AssetB AssetID  `json:"assetB"`
	Amount *big.Int `json:"amount"`
}

type AuctionBidPayload struct {
	AuctionID uint64 `json:"auctionId"`
	MaxPrice  string `json:"maxPrice"`
}

type AuctionCancelPayload struct {
	AuctionID uint64 `json:"auctionId"`
}

type RefundCollateralsPayload struct {
	Amount *big.Int `json:"amount"`
}

type FeedPricePayload struct {
	Asset AssetID `json:"asset"`
	Price string  `json:"price"`
}

type SetPausesPayload struct {
	Modules map[string]bool `json:"modules"`
}

type TransferPayload struct {
	To     cdpcrypto.Address `json:"to"`
	Asset  AssetID           `json:"asset"`
	Amount *big.Int          `json:"amount"`
}
