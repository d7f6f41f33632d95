package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations and their outcome (allow|deny|defer|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbase_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"operation", "result"},
	)

	// MaskedRows counts rows rewritten by the masking pipeline, by surface (response|export|broadcast).
	MaskedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbase_masked_rows_total",
			Help: "Total number of rows masked before delivery",
		},
		[]string{"surface"},
	)

	// AudienceCacheLookups counts masking audience cache lookups by outcome (hit|miss|error).
	AudienceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbase_audience_cache_lookups_total",
			Help: "Total number of masking audience cache lookups",
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridbase_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
