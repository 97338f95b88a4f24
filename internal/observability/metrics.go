// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Feed metrics
	EventsReceived     *prometheus.CounterVec
	MalformedEvents    prometheus.Counter
	WSReconnects       prometheus.Counter
	ForcedResubscribes prometheus.Counter
	SubscribedTokens   prometheus.Gauge
	PendingSubscribe   prometheus.Gauge
	PendingUnsubscribe prometheus.Gauge

	// Discovery metrics
	CacheSize           prometheus.Gauge
	CacheBufferedTrades prometheus.Gauge
	CacheActivations    prometheus.Counter
	CacheExpirations    prometheus.Counter
	FilterRejects       *prometheus.CounterVec
	CurveKeyMismatches  prometheus.Counter

	// Tracking metrics
	WatchlistSize     prometheus.Gauge
	TradesProcessed   prometheus.Counter
	TradesBuffered    prometheus.Counter
	TradesDropped     prometheus.Counter
	FlushRows         prometheus.Counter
	StaleSuppressions prometheus.Counter
	PhaseTransitions  prometheus.Counter
	Graduations       prometheus.Counter
	FinishedStreams   prometheus.Counter
	FlushBatchSize    prometheus.Histogram

	// Sink metrics
	MetricInsertErrors prometheus.Counter
	InsertDuration     prometheus.Histogram
	ATHFlushes         prometheus.Counter
	ArchiveRows        prometheus.Counter
	WebhookBatches     prometheus.Counter
	WebhookFailures    prometheus.Counter
	WebhookDuration    prometheus.Histogram

	// Health metrics
	WSConnected prometheus.Gauge
	DBConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pump_tracker"
	}

	return &Metrics{
		// Feed metrics
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_received_total",
			Help:      "Total number of upstream events received by type",
		}, []string{"type"}),
		MalformedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "malformed_events_total",
			Help:      "Total number of upstream frames dropped as malformed",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		ForcedResubscribes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "forced_resubscribes_total",
			Help:      "Total number of forced unsubscribe/resubscribe cycles",
		}),
		SubscribedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribed_tokens",
			Help:      "Current number of confirmed token trade subscriptions",
		}),
		PendingSubscribe: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pending_subscribe",
			Help:      "Current number of tokens queued for subscription",
		}),
		PendingUnsubscribe: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pending_unsubscribe",
			Help:      "Current number of tokens queued for unsubscription",
		}),

		// Discovery metrics
		CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cache_size",
			Help:      "Current number of tokens held in the discovery cache",
		}),
		CacheBufferedTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cache_buffered_trades",
			Help:      "Current number of trades buffered for unpromoted tokens",
		}),
		CacheActivations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cache_activations_total",
			Help:      "Total number of cached tokens promoted to the watchlist",
		}),
		CacheExpirations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cache_expirations_total",
			Help:      "Total number of cached tokens evicted on TTL expiry",
		}),
		FilterRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "filter_rejects_total",
			Help:      "Total number of creation events rejected by reason",
		}, []string{"reason"}),
		CurveKeyMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "curve_key_mismatches_total",
			Help:      "Total number of create events whose bondingCurveKey differs from the derived PDA",
		}),

		// Tracking metrics
		WatchlistSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "watchlist_size",
			Help:      "Current number of tokens on the watchlist",
		}),
		TradesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "trades_processed_total",
			Help:      "Total number of trades aggregated for watchlisted tokens",
		}),
		TradesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "trades_buffered_total",
			Help:      "Total number of trades buffered in the discovery cache",
		}),
		TradesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "trades_dropped_total",
			Help:      "Total number of trades for tokens that are neither cached nor tracked",
		}),
		FlushRows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "flush_rows_total",
			Help:      "Total number of metric rows emitted by flush sweeps",
		}),
		StaleSuppressions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "stale_suppressions_total",
			Help:      "Total number of flushes suppressed by an unchanged signature",
		}),
		PhaseTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "phase_transitions_total",
			Help:      "Total number of phase transitions",
		}),
		Graduations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "graduations_total",
			Help:      "Total number of streams retired by bonding-curve graduation",
		}),
		FinishedStreams: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "finished_streams_total",
			Help:      "Total number of streams retired by age",
		}),
		FlushBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "flush_batch_size",
			Help:      "Number of metric rows per sweep batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		// Sink metrics
		MetricInsertErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "metric_insert_errors_total",
			Help:      "Total number of failed metric batch inserts",
		}),
		InsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "insert_duration_seconds",
			Help:      "Metric batch insert duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ATHFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "ath_flushes_total",
			Help:      "Total number of all-time-high batch updates",
		}),
		ArchiveRows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "archive_rows_total",
			Help:      "Total number of raw trades written to the archive",
		}),
		WebhookBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "webhook_batches_total",
			Help:      "Total number of discovery batches delivered to the automation endpoint",
		}),
		WebhookFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "webhook_failures_total",
			Help:      "Total number of discovery batches dropped after failed delivery",
		}),
		WebhookDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "webhook_duration_seconds",
			Help:      "Automation endpoint attempt duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Health metrics
		WSConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "ws_connected",
			Help:      "1 while the upstream WebSocket is connected",
		}),
		DBConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "db_connected",
			Help:      "1 while the store connection pool is healthy",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventReceived increments the received-events counter for a txType.
func RecordEventReceived(eventType string) {
	DefaultMetrics.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordMalformedEvent increments the malformed-frame counter.
func RecordMalformedEvent() {
	DefaultMetrics.MalformedEvents.Inc()
}

// RecordFilterReject increments the filter reject counter for a reason.
func RecordFilterReject(reason string) {
	DefaultMetrics.FilterRejects.WithLabelValues(reason).Inc()
}

// SetConnected updates the health gauges.
func SetConnected(ws, db bool) {
	DefaultMetrics.WSConnected.Set(boolGauge(ws))
	DefaultMetrics.DBConnected.Set(boolGauge(db))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
