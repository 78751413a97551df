// Package metrics defines the Prometheus metric collectors used by the index
// and query services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so library code and tests can run without a registry.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	QueriesTotal          *prometheus.CounterVec
	QueryLatency          *prometheus.HistogramVec
	QueryResultsCount     prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	IndexOperationsTotal  *prometheus.CounterVec
	TransactionsTotal     *prometheus.CounterVec
	CommitLatency         prometheus.Histogram
	SegmentCount          *prometheus.GaugeVec
	MarkersDrainedTotal   *prometheus.CounterVec
	PermissionTruncations prometheus.Counter
	MessagesConsumedTotal *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec
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
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total queries by language and outcome (ok, parse_error, unresolved, error).",
			},
			[]string{"language", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_query_latency_seconds",
				Help:    "Query compile + execute latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"language"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of rows returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_operations_total",
				Help: "Indexer API operations by operation and mode.",
			},
			[]string{"op", "mode"},
		),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_transactions_total",
				Help: "Index transactions by outcome (committed, rolled_back, failed).",
			},
			[]string{"outcome"},
		),
		CommitLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_commit_latency_seconds",
				Help:    "Time to merge a delta into the main index.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		SegmentCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_segments",
				Help: "Live segments per store in the current generation.",
			},
			[]string{"store"},
		),
		MarkersDrainedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_background_markers_drained_total",
				Help: "Background work markers processed by action.",
			},
			[]string{"action"},
		),
		PermissionTruncations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_permission_truncations_total",
				Help: "Result sets truncated by the permission check budget.",
			},
		),
		MessagesConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Kafka messages consumed by topic and status.",
			},
			[]string{"topic", "status"},
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
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexOperationsTotal,
		m.TransactionsTotal,
		m.CommitLatency,
		m.SegmentCount,
		m.MarkersDrainedTotal,
		m.PermissionTruncations,
		m.MessagesConsumedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveQuery records a finished query.
func (m *Metrics) ObserveQuery(language, outcome string, elapsed time.Duration, rows int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(language, outcome).Inc()
	m.QueryLatency.WithLabelValues(language).Observe(elapsed.Seconds())
	if outcome == "ok" {
		m.QueryResultsCount.Observe(float64(rows))
	}
}

// CacheResult records a cache lookup.
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// IndexOperation records an Indexer API call.
func (m *Metrics) IndexOperation(op, mode string) {
	if m == nil {
		return
	}
	m.IndexOperationsTotal.WithLabelValues(op, mode).Inc()
}

// Transaction records a transaction outcome.
func (m *Metrics) Transaction(outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCommit records commit latency and the resulting segment count.
func (m *Metrics) ObserveCommit(store string, elapsed time.Duration, segments int) {
	if m == nil {
		return
	}
	m.CommitLatency.Observe(elapsed.Seconds())
	m.SegmentCount.WithLabelValues(store).Set(float64(segments))
}

// MarkerDrained records one processed background marker.
func (m *Metrics) MarkerDrained(action string) {
	if m == nil {
		return
	}
	m.MarkersDrainedTotal.WithLabelValues(action).Inc()
}

// PermissionTruncated records a result set cut short by the permission budget.
func (m *Metrics) PermissionTruncated() {
	if m == nil {
		return
	}
	m.PermissionTruncations.Inc()
}

// MessageConsumed records a consumed kafka message.
func (m *Metrics) MessageConsumed(topic, status string) {
	if m == nil {
		return
	}
	m.MessagesConsumedTotal.WithLabelValues(topic, status).Inc()
}

// BreakerState records the numeric state of a named circuit breaker.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
