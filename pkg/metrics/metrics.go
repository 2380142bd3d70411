// Package metrics defines the Prometheus metric collectors used across the
// search services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	ShardLoadsTotal      *prometheus.CounterVec
	ShardLoadDuration    prometheus.Histogram
	LoadedShards         prometheus.Gauge
	ShardCacheTotal      *prometheus.CounterVec
	StaleResultsTotal    prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbol_search_queries_total",
				Help: "Total symbol searches by outcome (hit, zero_result, partial, empty_query).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "symbol_search_latency_seconds",
				Help:    "Symbol search latency in seconds, including shard loads.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "symbol_search_results_count",
				Help:    "Number of rows returned per symbol search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ShardLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_loads_total",
				Help: "Shard fetch+decode attempts by status (ok, error).",
			},
			[]string{"status"},
		),
		ShardLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shard_load_duration_seconds",
				Help:    "Shard fetch+decode latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		LoadedShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loaded_shards",
				Help: "Number of shards currently held in memory.",
			},
		),
		ShardCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_cache_total",
				Help: "Shard payload cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		StaleResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "session_stale_results_total",
				Help: "Result sets discarded because a newer generation superseded them.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ShardLoadsTotal,
		m.ShardLoadDuration,
		m.LoadedShards,
		m.ShardCacheTotal,
		m.StaleResultsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
