// Package metrics exposes the gateway's prometheus collectors. Collectors
// are registered once on the default registry via promauto; callers import
// the package and touch the vars directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsPublished counts events accepted by the bus, per channel.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Events published to the bus.",
	}, []string{"channel"})

	// EventsDropped counts events dropped by the bus, per channel and cause
	// (queue_full, handler_timeout, handler_panic, publish_failed).
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Events dropped by the bus.",
	}, []string{"channel", "cause"})

	// VenueRequests counts venue API calls by venue and outcome.
	VenueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "requests_total",
		Help:      "Venue API requests by outcome.",
	}, []string{"venue", "outcome"})

	// VenueLatency observes venue API call latency in seconds.
	VenueLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "request_duration_seconds",
		Help:      "Venue API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"venue"})

	// BreakerState reports each venue breaker state (0 closed, 1 half-open,
	// 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "venue",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per venue.",
	}, []string{"venue"})

	// HubConnections tracks active client WebSocket connections.
	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Active client WebSocket connections.",
	})

	// HubMessagesSent counts messages pushed to clients, per topic.
	HubMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "hub",
		Name:      "messages_sent_total",
		Help:      "Messages sent to WebSocket clients.",
	}, []string{"topic"})

	// OrdersPlaced counts orders placed through the gateway by venue and
	// resulting status.
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Orders placed by venue and status.",
	}, []string{"venue", "status"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
