// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Session metrics
	SessionsStarted    prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsStopped    prometheus.Counter
	SessionStartErrors *prometheus.CounterVec

	// Trade metrics
	TradesSpawned      prometheus.Counter
	TradesFinalized    *prometheus.CounterVec
	ProposalsRejected  prometheus.Counter
	InstrumentsSkipped prometheus.Counter
	ActiveTrades       prometheus.Gauge

	// Collaborator metrics
	PriceFetchErrors   prometheus.Counter
	StrategyCallsTotal *prometheus.CounterVec
	StrategyLatency    prometheus.Histogram

	// Event stream metrics
	EventSubscribers prometheus.Gauge
	EventsDropped    prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradesim"
	}

	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total number of sessions started",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "completed_total",
			Help:      "Total number of sessions that reached completion",
		}),
		SessionsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stopped_total",
			Help:      "Total number of sessions stopped manually",
		}),
		SessionStartErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "start_errors_total",
			Help:      "Total number of session start failures by reason",
		}, []string{"reason"}),

		TradesSpawned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "spawned_total",
			Help:      "Total number of trade monitors spawned",
		}),
		TradesFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "finalized_total",
			Help:      "Total number of trades finalized by outcome",
		}, []string{"status"}),
		ProposalsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "proposals_rejected_total",
			Help:      "Total number of proposals rejected during allocation",
		}),
		InstrumentsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "instruments_skipped_total",
			Help:      "Total number of proposals skipped for missing entry prices",
		}),
		ActiveTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "active",
			Help:      "Number of currently active trades",
		}),

		PriceFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed entry-price fetches",
		}),
		StrategyCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "calls_total",
			Help:      "Total number of strategy provider calls by result",
		}, []string{"result"}),
		StrategyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "call_duration_seconds",
			Help:      "Latency of strategy provider calls",
			Buckets:   prometheus.DefBuckets,
		}),

		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Number of active event stream subscribers",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of events dropped on slow subscribers",
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
