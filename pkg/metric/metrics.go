package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// Metrics contains the server-level metrics. It implements both the
// dispatcher and publisher observer interfaces, so a single instance is
// handed to both.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	EventsEmitted  *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	Subscribers    *prometheus.GaugeVec
	Connections    prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with its own Prometheus registry
// (plus Go runtime and process collectors).
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hololinked",
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests",
			},
			[]string{"thing", "operation", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hololinked",
				Subsystem: "dispatch",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"thing", "operation"},
		),

		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hololinked",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Total number of event deliveries handed to subscribers",
			},
			[]string{"thing", "event"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hololinked",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of event payloads dropped from full subscriber queues",
			},
			[]string{"thing", "event"},
		),

		Subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hololinked",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Current number of event subscribers",
			},
			[]string{"thing", "event"},
		),

		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hololinked",
				Subsystem: "transport",
				Name:      "connections",
				Help:      "Current number of open client connections",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hololinked",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of HTTP gateway requests",
			},
			[]string{"method", "code"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.EventsEmitted,
		m.EventsDropped,
		m.Subscribers,
		m.Connections,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestHandled records a finished dispatch (dispatch.Observer).
func (m *Metrics) RequestHandled(thingID string, op wire.Operation, status wire.Status, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(thingID, op.String(), status.String()).Inc()
	m.RequestDuration.WithLabelValues(thingID, op.String()).Observe(elapsed.Seconds())
}

// EventEmitted records a delivery handed to a subscriber (events.Observer).
func (m *Metrics) EventEmitted(thingID, event string) {
	m.EventsEmitted.WithLabelValues(thingID, event).Inc()
}

// EventDropped records a payload lost to a full subscriber queue
// (events.Observer).
func (m *Metrics) EventDropped(thingID, event string) {
	m.EventsDropped.WithLabelValues(thingID, event).Inc()
}

// SubscriberAdded tracks the subscriber gauge (events.Observer).
func (m *Metrics) SubscriberAdded(thingID, event string) {
	m.Subscribers.WithLabelValues(thingID, event).Inc()
}

// SubscriberRemoved tracks the subscriber gauge (events.Observer).
func (m *Metrics) SubscriberRemoved(thingID, event string) {
	m.Subscribers.WithLabelValues(thingID, event).Dec()
}

// ConnectionOpened tracks the connection gauge.
func (m *Metrics) ConnectionOpened() {
	m.Connections.Inc()
}

// ConnectionClosed tracks the connection gauge.
func (m *Metrics) ConnectionClosed() {
	m.Connections.Dec()
}

// HTTPRequestServed counts one HTTP gateway request (gateway.Observer).
func (m *Metrics) HTTPRequestServed(method string, code int) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
