package guiserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greentic_gui",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "API requests served, by path.",
	}, []string{"path"})

	metricWorkerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greentic_gui",
		Subsystem: "server",
		Name:      "worker_messages_total",
		Help:      "Worker messages accepted, by worker id.",
	}, []string{"worker_id"})

	metricEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greentic_gui",
		Subsystem: "server",
		Name:      "events_total",
		Help:      "GUI events accepted, by event type.",
	}, []string{"event_type"})

	metricSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greentic_gui",
		Subsystem: "server",
		Name:      "sessions_total",
		Help:      "Sessions established.",
	})
)

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
