package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks outbound NextGen API calls.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextgen_api_requests_total",
			Help: "Total number of NextGen API requests made (by endpoint, method, and status).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration measures the duration of outbound NextGen API calls.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nextgen_api_request_duration_seconds",
			Help:    "Duration of NextGen API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// TokenRefreshTotal counts token endpoint calls by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextgen_token_refresh_total",
			Help: "Number of NextGen OAuth token refresh attempts by result.",
		},
		[]string{"result"},
	)

	// CatalogCacheTotal counts catalog cache lookups in the gateway.
	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextgen_catalog_cache_total",
			Help: "Catalog cache lookups by key kind and outcome (hit/miss).",
		},
		[]string{"kind", "outcome"},
	)
)

// IncRequest increments the NextGen API request counter.
func IncRequest(endpoint, method, status string) {
	RequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncTokenRefresh increments the refresh counter for result "success" or "failure".
func IncTokenRefresh(result string) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
}

// IncCatalogCache records a catalog cache hit or miss.
func IncCatalogCache(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CatalogCacheTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
