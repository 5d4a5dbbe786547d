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
	// Feed metrics
	FeedConnected         prometheus.Gauge
	FeedStateTransitions  *prometheus.CounterVec
	FeedReconnects        prometheus.Counter
	FeedRetriesExhausted  prometheus.Counter
	FeedMessagesReceived  *prometheus.CounterVec
	FeedDecodeErrors      prometheus.Counter
	FeedReconnectDelaySec prometheus.Histogram

	// Ingestion metrics
	TradesIngested        prometheus.Counter
	TradesDuplicate       prometheus.Counter
	MarketCapUpdates      prometheus.Counter
	EventProcessingErrors *prometheus.CounterVec
	CopyTradeDecisions    *prometheus.CounterVec
	IndexedTokens         prometheus.Gauge

	// Search metrics
	SearchesDispatched   prometheus.Counter
	SearchesShortQuery   prometheus.Counter
	SearchErrors         prometheus.Counter
	SearchStaleDiscarded prometheus.Counter
	SearchLatency        prometheus.Histogram
	ActiveSessions       prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// API client metrics
	APICallLatency *prometheus.HistogramVec
	APICallErrors  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_find"
	}

	return &Metrics{
		// Feed metrics
		FeedConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connected",
			Help:      "1 if the realtime feed socket is open, 0 otherwise",
		}),
		FeedStateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "state_transitions_total",
			Help:      "Total number of feed connection state transitions by target state",
		}, []string{"state"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect attempts scheduled",
		}),
		FeedRetriesExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "retries_exhausted_total",
			Help:      "Total number of times the feed gave up reconnecting",
		}),
		FeedMessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Total number of feed messages received by event",
		}, []string{"event"}),
		FeedDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Total number of malformed feed frames dropped",
		}),
		FeedReconnectDelaySec: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnect_delay_seconds",
			Help:      "Scheduled reconnect delay in seconds",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),

		// Ingestion metrics
		TradesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_ingested_total",
			Help:      "Total number of trades stored",
		}),
		TradesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_duplicate_total",
			Help:      "Total number of trades skipped as duplicates",
		}),
		MarketCapUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "market_cap_updates_total",
			Help:      "Total number of market cap updates stored",
		}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"event_type", "error_type"}),
		CopyTradeDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "decisions_total",
			Help:      "Total number of copy-trade rule evaluations by reason",
		}, []string{"reason"}),
		IndexedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "indexed_tokens",
			Help:      "Number of tokens in the local search index",
		}),

		// Search metrics
		SearchesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "dispatched_total",
			Help:      "Total number of debounced searches dispatched",
		}),
		SearchesShortQuery: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "short_query_total",
			Help:      "Total number of debounced queries below minimum length",
		}),
		SearchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "errors_total",
			Help:      "Total number of search function failures",
		}),
		SearchStaleDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "stale_discarded_total",
			Help:      "Total number of superseded search results discarded",
		}),
		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search function latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of open websocket search sessions",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// API client metrics
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "call_latency_seconds",
			Help:      "Backend API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		APICallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "call_errors_total",
			Help:      "Total number of failed backend API calls",
		}, []string{"endpoint"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// SetFeedState records the current feed connection state.
func SetFeedState(state string, connected bool) {
	DefaultMetrics.FeedStateTransitions.WithLabelValues(state).Inc()
	if connected {
		DefaultMetrics.FeedConnected.Set(1)
	} else {
		DefaultMetrics.FeedConnected.Set(0)
	}
}

// RecordReconnectScheduled records a scheduled reconnect and its delay.
func RecordReconnectScheduled(delaySeconds float64) {
	DefaultMetrics.FeedReconnects.Inc()
	DefaultMetrics.FeedReconnectDelaySec.Observe(delaySeconds)
}

// RecordRetriesExhausted increments the exhausted retries counter.
func RecordRetriesExhausted() {
	DefaultMetrics.FeedRetriesExhausted.Inc()
}

// RecordFeedMessage increments the received messages counter for an event.
func RecordFeedMessage(event string) {
	if event == "" {
		event = "unknown"
	}
	DefaultMetrics.FeedMessagesReceived.WithLabelValues(event).Inc()
}

// RecordFeedDecodeError increments the malformed frame counter.
func RecordFeedDecodeError() {
	DefaultMetrics.FeedDecodeErrors.Inc()
}

// RecordTradeIngested increments the stored trades counter.
func RecordTradeIngested() {
	DefaultMetrics.TradesIngested.Inc()
}

// RecordTradeDuplicate increments the duplicate trades counter.
func RecordTradeDuplicate() {
	DefaultMetrics.TradesDuplicate.Inc()
}

// RecordMarketCapUpdate increments the stored market cap updates counter.
func RecordMarketCapUpdate() {
	DefaultMetrics.MarketCapUpdates.Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// RecordCopyTradeDecision records a copy-trade rule evaluation.
func RecordCopyTradeDecision(reason string) {
	DefaultMetrics.CopyTradeDecisions.WithLabelValues(reason).Inc()
}

// SetIndexedTokens updates the token index size gauge.
func SetIndexedTokens(n int) {
	DefaultMetrics.IndexedTokens.Set(float64(n))
}

// RecordSearchDispatched records a dispatched search and its latency.
func RecordSearchDispatched(seconds float64, err error) {
	DefaultMetrics.SearchesDispatched.Inc()
	DefaultMetrics.SearchLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.SearchErrors.Inc()
	}
}

// RecordSearchShortQuery increments the short query counter.
func RecordSearchShortQuery() {
	DefaultMetrics.SearchesShortQuery.Inc()
}

// RecordSearchStale increments the discarded stale results counter.
func RecordSearchStale() {
	DefaultMetrics.SearchStaleDiscarded.Inc()
}

// SessionOpened increments the active sessions gauge.
func SessionOpened() {
	DefaultMetrics.ActiveSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func SessionClosed() {
	DefaultMetrics.ActiveSessions.Dec()
}

// RecordDBQuery records a database query.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordAPICall records a backend API call.
func RecordAPICall(endpoint string, seconds float64, err error) {
	DefaultMetrics.APICallLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.APICallErrors.WithLabelValues(endpoint).Inc()
	}
}
