package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livefeed"

// Delivery outcomes recorded on DeliveriesTotal.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
)

// Metrics holds every collector exported by livefeed-server, registered on a
// private registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	// ActiveConnections tracks open WebSocket connections.
	ActiveConnections prometheus.Gauge

	// Subscriptions tracks live subscriptions by topic.
	Subscriptions *prometheus.GaugeVec

	// EventsPublished counts events handed to the hub by topic.
	EventsPublished *prometheus.CounterVec

	// Deliveries counts per-connection sends by outcome (delivered/dropped).
	Deliveries *prometheus.CounterVec

	// ProtocolErrors counts error envelopes sent to clients by code.
	ProtocolErrors *prometheus.CounterVec

	// FeedEvents counts events received from each producer (http/postgres/amqp).
	FeedEvents *prometheus.CounterVec

	// FeedRejected counts feed messages that could not be decoded.
	FeedRejected *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_active_connections",
			Help:      "Current number of open WebSocket connections",
		}),
		Subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Current number of subscriptions by topic",
		}, []string{"topic"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total events published to the hub by topic",
		}, []string{"topic"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total per-connection event deliveries by outcome (delivered/dropped)",
		}, []string{"outcome"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total protocol error responses sent to clients by code",
		}, []string{"code"}),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Total events received from each feed",
		}, []string{"feed"}),
		FeedRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_rejected_total",
			Help:      "Total feed messages rejected as undecodable",
		}, []string{"feed"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveConnections,
		m.Subscriptions,
		m.EventsPublished,
		m.Deliveries,
		m.ProtocolErrors,
		m.FeedEvents,
		m.FeedRejected,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus text exposition for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
