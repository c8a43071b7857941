package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	OrdersFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_orders_filled_total",
		Help: "The total number of single chain orders filled",
	}, []string{"order_type"})

	BatchExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_batch_executions_total",
		Help: "The total number of batch executions by outcome",
	}, []string{"status"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_batch_size",
		Help:    "Number of orders per executed batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128 orders
	})

	ExecutionTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_execution_seconds",
		Help:    "Time taken by an atomic settlement operation",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // Start at 100us with 10 buckets quadrupling in size
	}, []string{"operation"})

	ReactorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reactor_errors_total",
		Help: "Total number of reactor errors by type",
	}, []string{"error_type"})

	// SettlementTransitions counts cross-chain status transitions
	SettlementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transitions_total",
		Help: "The total number of cross-chain settlement transitions",
	}, []string{"transition"})

	SettlementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_operation_errors_total",
		Help: "Total number of settlement operation errors by type",
	}, []string{"operation", "error_type"})

	SettlementsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settlement_records",
		Help: "Current number of settlement records by status",
	}, []string{"status"})

	// Keeper related metrics
	KeeperActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_keeper_actions_total",
		Help: "Number of keeper actions by action and outcome",
	}, []string{"action", "outcome"})

	KeeperPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_keeper_pending_jobs",
		Help: "The number of settlements queued for the keeper workers",
	})

	OracleReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_oracle_reads_total",
		Help: "Number of oracle fill record reads by source and outcome",
	}, []string{"source", "outcome"})
)
