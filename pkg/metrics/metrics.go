package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deskhive_queue_depth",
			Help: "Approximate number of visible messages on the event queue",
		},
	)

	// Worker pool metrics
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deskhive_workers_active",
			Help: "Current number of worker goroutines in the pool",
		},
	)

	PoolResizes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deskhive_pool_resizes_total",
			Help: "Total number of worker pool size changes",
		},
	)

	// Event metrics
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskhive_events_processed_total",
			Help: "Total number of processed events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	EventHandlingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskhive_event_handling_duration_seconds",
			Help:    "Event handling duration in seconds by event type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	ChecksumFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deskhive_message_checksum_failures_total",
			Help: "Total number of messages dropped due to body checksum mismatch",
		},
	)

	SenderRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deskhive_sender_rejections_total",
			Help: "Total number of messages rejected for untrusted senders",
		},
	)

	// Session metrics
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deskhive_sessions_total",
			Help: "Total number of sessions by state",
		},
		[]string{"state"},
	)

	SessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskhive_session_errors_total",
			Help: "Total number of sessions moved to ERROR by exhausted counter type",
		},
		[]string{"counter_type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(PoolResizes)
	prometheus.MustRegister(EventsProcessed)
	prometheus.MustRegister(EventHandlingDuration)
	prometheus.MustRegister(ChecksumFailures)
	prometheus.MustRegister(SenderRejections)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(SessionErrors)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
