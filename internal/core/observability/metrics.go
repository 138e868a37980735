// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var driverLabel atomic.Value

func init() {
	driverLabel.Store("memory")
}

// SetDriver records which backend driver serves queries (memory, postgres).
func SetDriver(s string) {
	if s == "" {
		s = "memory"
	}
	driverLabel.Store(s)
}

func getDriver() string {
	if v := driverLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "memory"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "driver"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "driver"},
	)

	backendQuerySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_query_duration_seconds",
			Help:    "Latency of backend selects by table.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"table", "result", "driver"},
	)

	searchCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cycles_total",
			Help: "Fetch cycles by outcome (applied, superseded, failed, short_circuit).",
		},
		[]string{"outcome"},
	)

	autocompleteResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocomplete_requests_total",
			Help: "Autocomplete lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Query cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	hotKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "query_cache_hot_keys",
			Help: "Number of query keys tracked by the hotness model.",
		},
		[]string{"tier"},
	)

	invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_invalidations_total",
			Help: "Table generation bumps by table and source.",
		},
		[]string{"table", "source"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_sessions_active",
			Help: "Number of live search sessions.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	d := getDriver()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, d).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, d).Observe(durationSeconds)
}

func ObserveBackendQuery(table string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	backendQuerySeconds.WithLabelValues(table, res, getDriver()).Observe(durationSeconds)
}

func IncSearchCycle(outcome string) {
	searchCycles.WithLabelValues(outcome).Inc()
}

func IncAutocomplete(outcome string) {
	autocompleteResults.WithLabelValues(outcome).Inc()
}

func IncCacheHit() {
	cacheResults.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	cacheResults.WithLabelValues("miss").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOps.WithLabelValues(op, res).Inc()
	cacheOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func SetHotKeysGauge(tier string, n int) {
	hotKeys.WithLabelValues(tier).Set(float64(n))
}

func IncInvalidation(table, source string) {
	invalidations.WithLabelValues(table, source).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
