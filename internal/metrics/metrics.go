// internal/metrics/metrics.go
// Prometheus collectors for the game server, registered on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gameroom"

// Metrics holds every collector the server updates.
type Metrics struct {
	registry *prometheus.Registry

	Sessions      prometheus.Gauge
	Rooms         *prometheus.GaugeVec
	Inbound       *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	GamesFinished *prometheus.CounterVec
	RecordWrites  *prometheus.CounterVec
	RecordsSkip   prometheus.Counter
	RoomsSwept    prometheus.Counter
	Comments      *prometheus.CounterVec
	HandleSeconds *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_connected",
			Help:      "Websocket sessions currently connected.",
		}),
		Rooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently registered, by game.",
		}, []string{"game"}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_inbound_total",
			Help:      "Client messages received, by type.",
		}, []string{"type"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Error events sent to clients, by code.",
		}, []string{"code"}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games played to completion, by game.",
		}, []string{"game"}),
		RecordWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_writes_total",
			Help:      "Game record writes, by result.",
		}, []string{"result"}),
		RecordsSkip: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Game records dropped because the write queue was full.",
		}),
		RoomsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_swept_total",
			Help:      "Rooms removed by the inactivity sweep.",
		}),
		Comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Chat comments, by outcome.",
		}, []string{"outcome"}),
		HandleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one client message, by type.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Sessions,
		m.Rooms,
		m.Inbound,
		m.Rejections,
		m.GamesFinished,
		m.RecordWrites,
		m.RecordsSkip,
		m.RoomsSwept,
		m.Comments,
		m.HandleSeconds,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordWrite counts a store write result.
func (m *Metrics) RecordWrite(err error) {
	if err != nil {
		m.RecordWrites.WithLabelValues("error").Inc()
		return
	}
	m.RecordWrites.WithLabelValues("ok").Inc()
}
