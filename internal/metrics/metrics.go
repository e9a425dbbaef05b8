package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine metrics
	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricealerts_ticks_total",
			Help: "Total number of price snapshots evaluated",
		},
	)

	Triggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealerts_triggers_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"direction"},
	)

	MalformedQuotes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricealerts_malformed_quotes_total",
			Help: "Snapshot entries skipped because the price or instrument was unusable",
		},
	)

	ArmedAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricealerts_armed_alerts",
			Help: "Number of enabled, untriggered alerts",
		},
	)

	// Delivery metrics
	Dispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealerts_notifications_total",
			Help: "Notifications delivered per channel",
		},
		[]string{"channel"}, // toast, system
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealerts_notification_failures_total",
			Help: "Notification attempts that failed per channel",
		},
		[]string{"channel"},
	)

	// Persistence and feed metrics
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealerts_persist_failures_total",
			Help: "Alert store operations that failed",
		},
		[]string{"op"}, // load, decode, encode, save
	)

	FeedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricealerts_feed_errors_total",
			Help: "Price feed fetch or decode failures",
		},
		[]string{"source"},
	)

	FeedLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricealerts_feed_fetch_duration_seconds",
			Help:    "Latency of price feed fetches in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
)
