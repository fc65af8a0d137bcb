package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Tracking events accepted by the ingestion endpoints
	TrackingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_tracking_events_total",
			Help: "Count of tracking events by event_type.",
		},
		[]string{"event_type"},
	)

	// Buffered impression/click deltas written durably per flush
	MetricsFlushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "experiment_metrics_flushed_total",
		Help: "Total buffered counter deltas flushed to the database.",
	})

	FlushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "experiment_flush_latency_seconds",
		Help:    "Latency of metrics buffer flushes",
		Buckets: prometheus.DefBuckets,
	})

	WinnersDeclaredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "experiment_winners_declared_total",
		Help: "Total experiments concluded with a declared winner.",
	})

	SweepLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "experiment_sweep_latency_seconds",
			Help:    "Latency of periodic sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	AssignmentConflictRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "experiment_assignment_conflict_retries_total",
		Help: "Sticky assignment inserts retried after a concurrent duplicate.",
	})
)

func Init() {
	prometheus.MustRegister(
		TrackingEventsTotal,
		MetricsFlushedTotal,
		FlushLatency,
		WinnersDeclaredTotal,
		SweepLatency,
		AssignmentConflictRetries,
	)
}
