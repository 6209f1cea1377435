package main

import (
	"log/slog"
	"time"

	"cdpchain/core"
	"cdpchain/core/types"
	"cdpchain/mempool"
)

// producer seals pending transactions into a block on every tick.
type producer struct {
	proc   *core.Processor
	pool   *mempool.Pool
	maxTxs int
	logger *slog.Logger
	now    func() time.Time
}

func newProducer(proc *core.Processor, pool *mempool.Pool, maxTxs int, logger *slog.Logger) *producer {
	return &producer{proc: proc, pool: pool, maxTxs: maxTxs, logger: logger, now: time.Now}
}

// produce applies the next block. Block timestamps never run backwards even
// if the wall clock does.
func (p *producer) produce() (*core.BlockResult, error) {
	head := p.proc.Head()
	ts := p.now().Unix()
	if ts < head.Timestamp {
		ts = head.Timestamp
	}
	txs := p.pool.Take(p.maxTxs)
	header := &types.BlockHeader{Height: head.Height + 1, Timestamp: ts}
	result, err := p.proc.ApplyBlock(types.NewBlock(header, txs))
	if err != nil {
		p.logger.Error("block rejected", slog.Uint64("height", header.Height), slog.Any("error", err))
		return nil, err
	}
	failed := 0
	for _, receipt := range result.Receipts {
		if receipt.Error != "" {
			failed++
		}
	}
	p.logger.Debug("block committed",
		slog.Uint64("height", result.Height),
		slog.Int("txs", len(txs)),
		slog.Int("failed", failed),
		slog.Int("liquidated", result.EndBlock.Risk.Liquidated))
	return result, nil
}
