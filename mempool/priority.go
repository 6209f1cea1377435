package mempool

import (
	"cdpchain/core/types"
)

// Lanes groups transactions into the keeper-priority and normal queues.
type Lanes struct {
	Priority []*types.Transaction
	Normal   []*types.Transaction
}

// Quota reserves a share of every block for priority transactions, in basis
// points of the block's transaction limit.
type Quota struct {
	ReservedBPS uint32
}

// ReservedSlots returns the number of slots reserved out of maxTxs, rounding
// up so a non-zero quota always reserves at least one slot.
func (q Quota) ReservedSlots(maxTxs int) int {
	if maxTxs <= 0 || q.ReservedBPS == 0 {
		return 0
	}
	bps := q.ReservedBPS
	if bps > 10_000 {
		bps = 10_000
	}
	return (maxTxs*int(bps) + 9_999) / 10_000
}

// IsPriority reports whether the transaction keeps the system solvent: price
// feeds, liquidations, settlements and shutdown calls go ahead of user
// traffic so positions are judged against fresh prices.
func IsPriority(tx *types.Transaction) bool {
	if tx == nil {
		return false
	}
	switch tx.Type {
	case types.TxTypeFeedPrice,
		types.TxTypeLiquidate,
		types.TxTypeSettle,
		types.TxTypeEmergencyShutdown,
		types.TxTypeSetPauses:
		return true
	default:
		return false
	}
}

// Classify separates transactions into lanes preserving arrival order.
func Classify(txs []*types.Transaction) Lanes {
	lanes := Lanes{Priority: make([]*types.Transaction, 0, len(txs)), Normal: make([]*types.Transaction, 0, len(txs))}
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		if IsPriority(tx) {
			lanes.Priority = append(lanes.Priority, tx)
			continue
		}
		lanes.Normal = append(lanes.Normal, tx)
	}
	return lanes
}

// Usage captures how much of the reserved capacity a schedule consumed.
type Usage struct {
	Target        int
	Used          int
	TotalPriority int
}

// Schedule orders the lanes so that the first maxTxs entries respect the
// reservation. The returned slice contains every transaction.
func Schedule(lanes Lanes, maxTxs int, quota Quota) ([]*types.Transaction, Usage) {
	total := len(lanes.Priority) + len(lanes.Normal)
	if total == 0 {
		return nil, Usage{}
	}
	if maxTxs <= 0 || maxTxs > total {
		maxTxs = total
	}

	target := quota.ReservedSlots(maxTxs)
	if target > maxTxs {
		target = maxTxs
	}

	priorityTake := min(target, len(lanes.Priority))
	normalTake := min(maxTxs-priorityTake, len(lanes.Normal))

	// Unused capacity goes to whichever lane still has entries.
	remaining := maxTxs - (priorityTake + normalTake)
	if extra := min(remaining, len(lanes.Priority)-priorityTake); extra > 0 {
		priorityTake += extra
		remaining -= extra
	}
	if extra := min(remaining, len(lanes.Normal)-normalTake); extra > 0 {
		normalTake += extra
	}

	ordered := make([]*types.Transaction, 0, total)
	ordered = append(ordered, lanes.Priority[:priorityTake]...)
	ordered = append(ordered, lanes.Normal[:normalTake]...)
	ordered = append(ordered, lanes.Priority[priorityTake:]...)
	ordered = append(ordered, lanes.Normal[normalTake:]...)

	return ordered, Usage{Target: target, Used: priorityTake, TotalPriority: len(lanes.Priority)}
}
