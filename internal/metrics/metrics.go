// Package metrics holds the Prometheus collectors shared by the ledger
// services, the worker pool and the HTTP middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MovementsPosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_movements_posted_total",
			Help: "Committed stock movements by reason kind",
		},
		[]string{"kind"},
	)

	ReconcileMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_reconcile_mismatches_total",
			Help: "Ingredients whose cached stock disagreed with the movement log",
		},
	)

	StockRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_stock_repairs_total",
			Help: "Explicit cache repairs that changed a stored value",
		},
	)

	OrderItemsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_items_added_total",
			Help: "Order items committed together with their ingredient deductions",
		},
	)

	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Async jobs handled by the worker pool",
		},
		[]string{"type", "result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		MovementsPosted,
		ReconcileMismatches,
		StockRepairs,
		OrderItemsAdded,
		JobsProcessed,
		HTTPRequests,
		HTTPLatency,
	)
}
