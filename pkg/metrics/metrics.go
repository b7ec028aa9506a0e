package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive counts websocket connections currently admitted
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Websocket connections currently admitted to a room.",
	})

	// RoomsActive counts rooms created since startup (rooms live for the
	// process lifetime)
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Rooms currently registered.",
	})

	// MessagesRelayed counts broadcast calls
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_relayed_total",
		Help: "Messages fanned out to room members.",
	})

	// SendFailures counts per-recipient send errors that evicted a member
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_failures_total",
		Help: "Failed sends that caused a member eviction.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
