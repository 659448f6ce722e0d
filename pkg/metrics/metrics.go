package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groovesync_active_connections",
		Help: "Number of open websocket connections.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groovesync_active_rooms",
		Help: "Number of live rooms.",
	})

	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groovesync_events_relayed_total",
		Help: "Playback and queue events relayed, by event type.",
	}, []string{"type"})

	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groovesync_chat_messages_total",
		Help: "Chat messages relayed.",
	})
)

// Handler exposes prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
