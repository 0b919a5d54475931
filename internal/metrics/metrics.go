// Package metrics holds the Prometheus collectors shared by the scanner components.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderRequests counts provider API calls by endpoint and outcome
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_provider_requests_total",
		Help: "Provider API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// ProviderRetries counts retried provider calls by endpoint
	ProviderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_provider_retries_total",
		Help: "Provider API retries by endpoint",
	}, []string{"endpoint"})

	// AggregationDegraded counts leaf fetches that fell back to an empty value
	AggregationDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_aggregation_degraded_total",
		Help: "Aggregation leaf failures replaced by empty values, by stage",
	}, []string{"stage"})

	// AggregationDuration tracks snapshot assembly latency
	AggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gh_actions_scan_aggregation_duration_seconds",
		Help:    "Snapshot aggregation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"result"})

	// CacheLookups counts analysis cache lookups by result (hit, miss, expired, error)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_cache_lookups_total",
		Help: "Analysis cache lookups by result",
	}, []string{"result"})

	// CacheWrites counts analysis cache upserts by result
	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_cache_writes_total",
		Help: "Analysis cache writes by result",
	}, []string{"result"})

	// CacheEvictions counts entries removed from the cache by reason
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_cache_evictions_total",
		Help: "Analysis cache entries removed, by reason",
	}, []string{"reason"})

	// AnalyzerCalls counts analyzer invocations by result
	AnalyzerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_actions_scan_analyzer_calls_total",
		Help: "AI analyzer invocations by result",
	}, []string{"result"})

	// AnalyzerDuration tracks analyzer latency
	AnalyzerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gh_actions_scan_analyzer_duration_seconds",
		Help:    "AI analyzer call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics endpoint on addr and returns the server so callers can shut it down
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}
