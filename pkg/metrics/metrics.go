package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	TrackedNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nodewatch_tracked_nodes",
			Help: "Tracked nodes by last reconciled liveness",
		},
		[]string{"liveness"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nodewatch_reconciliation_duration_seconds",
			Help:    "Time to complete one reconciliation batch in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_reconciliation_cycles_total",
			Help: "Total reconciliation batches by outcome (ok, failed, cancelled)",
		},
		[]string{"outcome"},
	)

	BatchUnitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_batch_unit_errors_total",
			Help: "Per-unit errors recorded in batch reports by scope and kind",
		},
		[]string{"scope", "kind"},
	)

	NodesUpdatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nodewatch_nodes_updated_total",
			Help: "Total nodes whose liveness or job state changed",
		},
	)

	// Ledger metrics
	LedgerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_ledger_requests_total",
			Help: "Ledger requests by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	LedgerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodewatch_ledger_request_duration_seconds",
			Help:    "Ledger request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_notifications_total",
			Help: "Notification events by type and delivery outcome",
		},
		[]string{"type", "outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(TrackedNodes)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(BatchUnitErrorsTotal)
	prometheus.MustRegister(NodesUpdatedTotal)
	prometheus.MustRegister(LedgerRequestsTotal)
	prometheus.MustRegister(LedgerRequestDuration)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
