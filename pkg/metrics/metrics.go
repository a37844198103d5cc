package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybank_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mybank_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mybank_store_operation_duration_seconds",
			Help:    "Duration of storage units of work in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "result"},
	)

	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybank_ledger_postings_total",
			Help: "Ledger postings by transaction type and result",
		},
		[]string{"type", "result"},
	)

	WorkflowResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybank_workflow_resolutions_total",
			Help: "Resolved requests by kind and decision",
		},
		[]string{"kind", "decision", "result"},
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mybank_auth_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mybank_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mybank_cache_hits_total",
			Help: "Number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mybank_cache_misses_total",
			Help: "Number of cache misses",
		},
	)
)

func RecordHttpRequest(method, route, status string, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, route, status).Inc()
	HttpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordStoreOperation(kind string, err error, duration time.Duration) {
	StoreOperationDuration.WithLabelValues(kind, resultLabel(err)).Observe(duration.Seconds())
}

func RecordPosting(txType string, err error) {
	LedgerPostings.WithLabelValues(txType, resultLabel(err)).Inc()
}

func RecordResolution(kind, decision string, err error) {
	WorkflowResolutions.WithLabelValues(kind, decision, resultLabel(err)).Inc()
}

func RecordAuthAttempt(result string) {
	AuthAttempts.WithLabelValues(result).Inc()
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
