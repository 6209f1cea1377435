package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/crypto"
)

// BlockContext carries the per-block values every module reads: the height
// drives auction scheduling and the timestamp drives interest accrual.
type BlockContext struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// BlockHeader represents the header of a block.
type BlockHeader struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	PrevHash  []byte `json:"prevHash"`
}

// Block represents a full block: an ordered list of transactions applied on
// top of the previous state.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
}

// NewBlock creates a new block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Context returns the execution context of the block.
func (b *Block) Context() BlockContext {
	if b == nil || b.Header == nil {
		return BlockContext{}
	}
	return BlockContext{Height: b.Header.Height, Timestamp: b.Header.Timestamp}
}

// Hash calculates the keccak256 hash of the JSON-encoded header.
func (h *BlockHeader) Hash() ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}
