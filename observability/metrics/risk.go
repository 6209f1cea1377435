package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RiskMetrics tracks block execution and the health of the risk core.
type RiskMetrics struct {
	blocks         prometheus.Counter
	blockDuration  prometheus.Histogram
	transactions   *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	settlements    prometheus.Counter
	activeAuctions prometheus.Gauge
	debitPool      prometheus.Gauge
	surplusPool    prometheus.Gauge
	totalDebit     *prometheus.GaugeVec
	shutdown       prometheus.Gauge
}

var (
	riskOnce     sync.Once
	riskRegistry *RiskMetrics
)

// Risk returns the process-wide registry.
func Risk() *RiskMetrics {
	riskOnce.Do(func() {
		riskRegistry = &RiskMetrics{
			blocks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_blocks_committed_total",
				Help: "Number of committed blocks.",
			}),
			blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "cdp_block_execution_seconds",
				Help:    "Time spent executing a block.",
				Buckets: prometheus.DefBuckets,
			}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_transactions_total",
				Help: "Applied transactions by type and outcome.",
			}, []string{"type", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdp_liquidations_total",
				Help: "Liquidated positions by strategy.",
			}, []string{"strategy"}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cdp_settlements_total",
				Help: "Positions settled after shutdown or by root.",
			}),
			activeAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_active_auctions",
				Help: "Collateral auctions currently open.",
			}),
			debitPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_treasury_debit_pool",
				Help: "Bad debt awaiting surplus.",
			}),
			surplusPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_treasury_surplus_pool",
				Help: "Stable surplus held by the treasury.",
			}),
			totalDebit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "cdp_total_debit_units",
				Help: "Outstanding debit units per collateral.",
			}, []string{"asset"}),
			shutdown: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdp_emergency_shutdown",
				Help: "1 once emergency shutdown has been triggered.",
			}),
		}
		prometheus.MustRegister(
			riskRegistry.blocks,
			riskRegistry.blockDuration,
			riskRegistry.transactions,
			riskRegistry.liquidations,
			riskRegistry.settlements,
			riskRegistry.activeAuctions,
			riskRegistry.debitPool,
			riskRegistry.surplusPool,
			riskRegistry.totalDebit,
			riskRegistry.shutdown,
		)
	})
	return riskRegistry
}

// ObserveBlock records a committed block and its execution time.
func (m *RiskMetrics) ObserveBlock(d time.Duration) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.blockDuration.Observe(d.Seconds())
}

// RecordTransaction counts an applied transaction.
func (m *RiskMetrics) RecordTransaction(txType string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	txType = strings.TrimSpace(txType)
	if txType == "" {
		txType = "unknown"
	}
	m.transactions.WithLabelValues(txType, outcome).Inc()
}

// RecordLiquidation counts a liquidation by strategy name.
func (m *RiskMetrics) RecordLiquidation(strategy string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(strategy).Inc()
}

// RecordSettlements adds n settled positions.
func (m *RiskMetrics) RecordSettlements(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.settlements.Add(float64(n))
}

// SetActiveAuctions updates the open auction gauge.
func (m *RiskMetrics) SetActiveAuctions(n int) {
	if m == nil {
		return
	}
	m.activeAuctions.Set(float64(n))
}

// SetTreasury updates the treasury gauges.
func (m *RiskMetrics) SetTreasury(debitPool, surplus *big.Int) {
	if m == nil {
		return
	}
	m.debitPool.Set(toFloat(debitPool))
	m.surplusPool.Set(toFloat(surplus))
}

// SetTotalDebit updates the outstanding debit of asset.
func (m *RiskMetrics) SetTotalDebit(asset string, units *big.Int) {
	if m == nil {
		return
	}
	m.totalDebit.WithLabelValues(strings.ToUpper(strings.TrimSpace(asset))).Set(toFloat(units))
}

// SetShutdown flags emergency shutdown.
func (m *RiskMetrics) SetShutdown(on bool) {
	if m == nil {
		return
	}
	if on {
		m.shutdown.Set(1)
		return
	}
	m.shutdown.Set(0)
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
