// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journey_gateway_active_connections",
		Help: "Number of websocket connections currently open.",
	})

	RoomBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journey_room_broadcasts_total",
		Help: "Messages fanned out to journey rooms, by event.",
	}, []string{"event"})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journey_location_updates_total",
		Help: "Location samples accepted from connections.",
	})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journey_persistence_failures_total",
		Help: "Durable writes that failed and were skipped in favor of live broadcast.",
	})
)

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
