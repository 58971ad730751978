package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gd_queue_depth",
			Help: "Current number of users waiting in the global GD queue",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gd_queue_operations_total",
			Help: "Total queue operations by type and outcome",
		},
		[]string{"operation", "outcome"},
	)

	roomsFormed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gd_rooms_formed_total",
			Help: "Total rooms formed from the global GD queue",
		},
	)

	timeToMatch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gd_time_to_match_seconds",
			Help:    "Time users spent queued before being matched",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gd_events_published_total",
			Help: "Total push events published to the message bus",
		},
		[]string{"type"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gd_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)

// SetQueueDepth records the current waiting-pool size.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// QueueOperation counts a queue operation outcome, e.g. ("join", "queued").
func QueueOperation(operation, outcome string) {
	queueOperations.WithLabelValues(operation, outcome).Inc()
}

// RoomFormed counts a successful group formation.
func RoomFormed() {
	roomsFormed.Inc()
}

// ObserveTimeToMatch records how long a user waited before matching.
func ObserveTimeToMatch(d time.Duration) {
	timeToMatch.Observe(d.Seconds())
}

// EventPublished counts a push event handed to the message bus.
func EventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// WSConnectionOpened increments the active WebSocket connection gauge.
func WSConnectionOpened() {
	wsConnections.Inc()
}

// WSConnectionClosed decrements the active WebSocket connection gauge.
func WSConnectionClosed() {
	wsConnections.Dec()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
