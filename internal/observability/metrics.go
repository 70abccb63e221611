// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Derivation metrics
	ViewsDerived        *prometheus.CounterVec
	DerivationErrors    *prometheus.CounterVec
	InvariantViolations *prometheus.CounterVec
	IntegrityWarnings   *prometheus.CounterVec
	DerivationLatency   prometheus.Histogram
	ActionsOffered      *prometheus.CounterVec

	// Indexer metrics
	IndexerCallLatency *prometheus.HistogramVec
	IndexerCallErrors  *prometheus.CounterVec
	WSMessagesReceived prometheus.Counter

	// Ingestion metrics
	EventsFetched prometheus.Counter
	EventsStored  prometheus.Counter
	SyncRunsTotal *prometheus.CounterVec
	SyncDuration  prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil registerer uses the global default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "circlepot"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ViewsDerived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "views_total",
			Help:      "Total number of circle views derived by phase",
		}, []string{"phase"}),
		DerivationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "errors_total",
			Help:      "Total number of failed derivations by error class",
		}, []string{"class"}),
		InvariantViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "invariant_violations_total",
			Help:      "Total number of event feed invariant violations by rule",
		}, []string{"rule"}),
		IntegrityWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "integrity_warnings_total",
			Help:      "Total number of malformed events dropped by kind",
		}, []string{"event_kind"}),
		DerivationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "latency_seconds",
			Help:      "Circle view derivation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		ActionsOffered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "derivation",
			Name:      "primary_actions_total",
			Help:      "Total number of primary actions offered by kind",
		}, []string{"action"}),

		IndexerCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "call_latency_seconds",
			Help:      "Indexer query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		IndexerCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "call_errors_total",
			Help:      "Total number of failed indexer queries",
		}, []string{"query"}),
		WSMessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "ws_messages_total",
			Help:      "Total number of websocket notifications received",
		}),

		EventsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_fetched_total",
			Help:      "Total number of ledger events fetched from the indexer",
		}),
		EventsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_stored_total",
			Help:      "Total number of new ledger events stored",
		}),
		SyncRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "sync_runs_total",
			Help:      "Total number of circle sync runs by status",
		}, []string{"status"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "sync_duration_seconds",
			Help:      "Circle sync duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulSync: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordViewDerived records a successful derivation.
func RecordViewDerived(phase, primaryAction string, seconds float64) {
	DefaultMetrics.ViewsDerived.WithLabelValues(phase).Inc()
	DefaultMetrics.ActionsOffered.WithLabelValues(primaryAction).Inc()
	DefaultMetrics.DerivationLatency.Observe(seconds)
}

// RecordDerivationError records a failed derivation.
func RecordDerivationError(class string) {
	DefaultMetrics.DerivationErrors.WithLabelValues(class).Inc()
}

// RecordInvariantViolation records a broken feed invariant.
func RecordInvariantViolation(rule string) {
	DefaultMetrics.InvariantViolations.WithLabelValues(rule).Inc()
}

// RecordIntegrityWarning records a dropped malformed event.
func RecordIntegrityWarning(kind string) {
	DefaultMetrics.IntegrityWarnings.WithLabelValues(kind).Inc()
}

// RecordIndexerCall records indexer query metrics.
func RecordIndexerCall(query string, seconds float64, err error) {
	DefaultMetrics.IndexerCallLatency.WithLabelValues(query).Observe(seconds)
	if err != nil {
		DefaultMetrics.IndexerCallErrors.WithLabelValues(query).Inc()
	}
}

// RecordWSMessage increments the websocket notification counter.
func RecordWSMessage() {
	DefaultMetrics.WSMessagesReceived.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordSync records a circle sync run.
func RecordSync(status string, fetched, stored int, seconds float64, unixNow int64) {
	DefaultMetrics.SyncRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SyncDuration.Observe(seconds)
	DefaultMetrics.EventsFetched.Add(float64(fetched))
	DefaultMetrics.EventsStored.Add(float64(stored))
	if status == "ok" {
		DefaultMetrics.LastSuccessfulSync.Set(float64(unixNow))
	}
}
