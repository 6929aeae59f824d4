package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service counters and histograms, partitioned by chain where relevant.

var (
	// Ledger
	TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "transactions_recorded_total",
		Help:      "Total transactions recorded as pending",
	}, []string{"chain"})

	TransactionsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "transactions_confirmed_total",
		Help:      "Total transactions confirmed by reconciliation",
	}, []string{"chain"})

	TransactionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "transactions_failed_total",
		Help:      "Total transactions marked failed after a reverted receipt",
	}, []string{"chain"})

	ReconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "reconcile_runs_total",
		Help:      "Total reconciliation sweeps",
	})

	ReconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "reconcile_errors_total",
		Help:      "Total reconciliation sweep errors",
	})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "reconcile_duration_seconds",
		Help:      "Reconciliation sweep duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	PendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainledger",
		Subsystem: "ledger",
		Name:      "pending_transactions",
		Help:      "Pending transactions observed by the last sweep",
	})

	// Gate
	GateEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "gate",
		Name:      "evaluations_total",
		Help:      "Total gate evaluations by outcome",
	}, []string{"outcome"})

	GateEvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainledger",
		Subsystem: "gate",
		Name:      "evaluation_duration_seconds",
		Help:      "Gate evaluation duration including balance queries",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	GateCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "gate",
		Name:      "definition_cache_total",
		Help:      "Gate definition cache lookups by result",
	}, []string{"result"})

	// RPC
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainledger",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total chain RPC requests by method and status",
	}, []string{"chain", "method", "status"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainledger",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Chain RPC request duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"chain", "method"})
)
