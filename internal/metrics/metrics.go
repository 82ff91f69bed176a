// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SourceRequestsTotal counts calls to retail sources by source, operation and outcome.
	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapp_source_requests_total",
			Help: "Retail source requests",
		},
		[]string{"source", "operation", "outcome"},
	)

	// SourceLatency records retail source latency in seconds.
	SourceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapp_source_latency_seconds",
			Help:    "Retail source latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "operation"},
	)

	// CacheOpsTotal counts cache lookups by key namespace and result (hit, miss, error).
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapp_cache_operations_total",
			Help: "Cache operations",
		},
		[]string{"namespace", "result"},
	)

	// ScrapesTotal counts fallback scraper invocations by outcome.
	ScrapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapp_scrapes_total",
			Help: "Fallback scrapes",
		},
		[]string{"outcome"},
	)

	// AlertsEvaluatedTotal counts alert evaluations by alert type and result (fired, quiet, failed).
	AlertsEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapp_alerts_evaluated_total",
			Help: "Wishlist alert evaluations",
		},
		[]string{"type", "result"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapp_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SourceRequestsTotal,
		SourceLatency,
		CacheOpsTotal,
		ScrapesTotal,
		AlertsEvaluatedTotal,
		RequestDuration,
	)
}
