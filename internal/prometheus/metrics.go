package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	processingBucketStart  = 0.001
	processingBucketFactor = 2.0
	processingBucketCount  = 14
)

const (
	lockWaitBucketStart  = 0.0005
	lockWaitBucketFactor = 2.5
	lockWaitBucketCount  = 12
)

var EventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "phonelog_events_total",
		Help: "Action URL events by dialect, kind and processing outcome",
	},
	[]string{"dialect", "kind", "outcome"},
)

var EventProcessingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "phonelog_event_processing_duration_seconds",
		Help: "Time taken to apply an event to its call record",
		Buckets: prometheus.ExponentialBuckets(
			processingBucketStart,
			processingBucketFactor,
			processingBucketCount,
		),
	},
	[]string{"kind"},
)

var LockWaitDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "phonelog_lock_wait_seconds",
		Help: "Time spent waiting for the per-call lock",
		Buckets: prometheus.ExponentialBuckets(
			lockWaitBucketStart,
			lockWaitBucketFactor,
			lockWaitBucketCount,
		),
	},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "phonelog_notifications_total",
		Help: "Call state change publishes by target and result",
	},
	[]string{"target", "result"},
)

var DeadLetterEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "phonelog_dead_letter_events_total",
		Help: "Dead-letter events by action",
	},
	[]string{"action"},
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(DeadLetterEventsTotal)
}
