// Package metrics defines and registers the custom Prometheus metrics for the
// receipts service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "receipts"

// ── Dispatch metrics ──────────────────────────────────────────────────────────

// DispatchesTotal counts recorded dispatch attempts.
// Labels:
//   - edition: "digital", "print", or the raw value of a rejected row
//   - status: "success" or "failed"
var DispatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Total number of receipt dispatch attempts, by edition and status.",
	},
	[]string{"edition", "status"},
)

// ProviderRequestDuration measures the latency of a single provider call.
// Label:
//   - outcome: "success", "error", or "timeout"
var ProviderRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Duration of transactional email provider calls.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// BulkBatchRows observes the number of rows per bulk upload.
var BulkBatchRows = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bulk_batch_rows",
		Help:      "Number of rows in each bulk receipt upload.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", or "rate_limited"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)
