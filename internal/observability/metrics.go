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
	// Stream metrics
	SSEEventsTotal   *prometheus.CounterVec
	SSEDropsTotal    *prometheus.CounterVec
	SSERepairsTotal  prometheus.Counter
	SSEReconnects    prometheus.Counter
	SSEState         *prometheus.GaugeVec
	SubEventsTotal   *prometheus.CounterVec
	SubReconnects    prometheus.Counter

	// Feed metrics
	TokensInFeed      prometheus.Gauge
	TokensMerged      prometheus.Counter
	FieldChangesTotal prometheus.Counter
	LastSnapshotUnix  prometheus.Gauge

	// Transform metrics
	BatchTransformDuration prometheus.Histogram
	BatchTransformFallback prometheus.Counter

	// Sink metrics
	ChangesPublished prometheus.Counter
	PublishErrors    prometheus.Counter
	DBQueryDuration  *prometheus.HistogramVec
	DBQueryErrors    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchfeed"
	}

	return &Metrics{
		SSEEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "events_total",
			Help:      "Total number of stream events processed by kind",
		}, []string{"kind"}),
		SSEDropsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "drops_total",
			Help:      "Total number of stream payloads dropped by reason",
		}, []string{"reason"}),
		SSERepairsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "repairs_total",
			Help:      "Total number of payloads salvaged by the JSON repair pass",
		}),
		SSEReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		SSEState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "connection_state",
			Help:      "Current stream connection state (1 for the active state)",
		}, []string{"state"}),
		SubEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "events_total",
			Help:      "Total number of realtime subscription events by type",
		}, []string{"event_type"}),
		SubReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "reconnects_total",
			Help:      "Total number of subscription reconnect attempts",
		}),

		TokensInFeed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "tokens",
			Help:      "Current number of tokens in the live snapshot",
		}),
		TokensMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "tokens_merged_total",
			Help:      "Total number of token merge operations",
		}),
		FieldChangesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "field_changes_total",
			Help:      "Total number of tracked field changes detected",
		}),
		LastSnapshotUnix: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix timestamp of the last snapshot replacement",
		}),

		BatchTransformDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch transform runs",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchTransformFallback: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "sync_fallbacks_total",
			Help:      "Total number of batches transformed on the caller goroutine",
		}),

		ChangesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "changes_total",
			Help:      "Total number of change messages published",
		}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "Total number of publish failures",
		}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// sseStates enumerates the label values of the connection state gauge.
var sseStates = []string{"idle", "connecting", "streaming", "error", "closed"}

// RecordSSEState marks the given connection state active and the rest idle.
func RecordSSEState(state string) {
	for _, s := range sseStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		DefaultMetrics.SSEState.WithLabelValues(s).Set(v)
	}
}

// RecordSSEEvent increments the stream event counter for one event kind.
func RecordSSEEvent(kind string) {
	DefaultMetrics.SSEEventsTotal.WithLabelValues(kind).Inc()
}

// RecordSSEDrop records a dropped stream payload.
func RecordSSEDrop(reason string) {
	DefaultMetrics.SSEDropsTotal.WithLabelValues(reason).Inc()
}

// RecordSSERepair records a payload salvaged by the repair pass.
func RecordSSERepair() {
	DefaultMetrics.SSERepairsTotal.Inc()
}

// RecordSSEReconnect records a stream reconnect attempt.
func RecordSSEReconnect() {
	DefaultMetrics.SSEReconnects.Inc()
}

// RecordSubscriptionEvent increments the subscription event counter.
func RecordSubscriptionEvent(eventType string) {
	DefaultMetrics.SubEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordSubscriptionReconnect records a subscription reconnect attempt.
func RecordSubscriptionReconnect() {
	DefaultMetrics.SubReconnects.Inc()
}

// UpdateFeedSize updates the live snapshot gauges.
func UpdateFeedSize(tokens int, unixSeconds float64) {
	DefaultMetrics.TokensInFeed.Set(float64(tokens))
	DefaultMetrics.LastSnapshotUnix.Set(unixSeconds)
}

// RecordMerge records token merges and the field changes they produced.
func RecordMerge(changedFields int) {
	DefaultMetrics.TokensMerged.Inc()
	if changedFields > 0 {
		DefaultMetrics.FieldChangesTotal.Add(float64(changedFields))
	}
}

// RecordBatchTransform records one batch transform run.
func RecordBatchTransform(seconds float64, syncFallback bool) {
	DefaultMetrics.BatchTransformDuration.Observe(seconds)
	if syncFallback {
		DefaultMetrics.BatchTransformFallback.Inc()
	}
}

// RecordPublish records a publish attempt.
func RecordPublish(err error) {
	if err != nil {
		DefaultMetrics.PublishErrors.Inc()
		return
	}
	DefaultMetrics.ChangesPublished.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
