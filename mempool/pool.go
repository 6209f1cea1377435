package mempool

import (
	"errors"
	"sync"

	"cdpchain/core/types"
)

// ErrPoolFull is returned when the pool is at capacity.
var ErrPoolFull = errors.New("mempool: pool full")

// Pool buffers submitted transactions until the next block is produced.
type Pool struct {
	mu      sync.Mutex
	pending []*types.Transaction
	limit   int
	quota   Quota
}

// NewPool returns a pool holding at most limit transactions. A non-positive
// limit disables the bound.
func NewPool(limit int, quota Quota) *Pool {
	return &Pool{limit: limit, quota: quota}
}

// Add queues tx.
func (p *Pool) Add(tx *types.Transaction) error {
	if tx == nil {
		return errors.New("mempool: nil transaction")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && len(p.pending) >= p.limit {
		return ErrPoolFull
	}
	p.pending = append(p.pending, tx)
	return nil
}

// Len returns the number of queued transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Take removes up to maxTxs transactions in block order. Transactions beyond
// the limit stay queued for the next block.
func (p *Pool) Take(maxTxs int) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	ordered, _ := Schedule(Classify(p.pending), maxTxs, p.quota)
	if maxTxs <= 0 || maxTxs > len(ordered) {
		maxTxs = len(ordered)
	}
	block := ordered[:maxTxs:maxTxs]
	p.pending = append([]*types.Transaction(nil), ordered[maxTxs:]...)
	return block
}
