package ascomserver

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the server. All methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	hookDuration     *prometheus.HistogramVec
	sessions         *prometheus.GaugeVec
	discoveryReplies prometheus.Counter
	eventsDropped    prometheus.Counter
}

// NewMetrics creates collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alpaca",
			Name:      "requests_total",
			Help:      "Device requests handled, by device, action and outcome.",
		}, []string{"device_type", "device_number", "action", "outcome"}),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alpaca",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling device requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device_type", "device_number"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "alpaca",
			Name:      "client_sessions",
			Help:      "Bound client session slots per device.",
		}, []string{"device_type", "device_number"}),
		discoveryReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alpaca",
			Name:      "discovery_replies_total",
			Help:      "Discovery packets answered.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alpaca",
			Name:      "events_dropped_total",
			Help:      "Device events dropped because the publish queue was full.",
		}),
	}
	m.registry.MustRegister(m.requests, m.hookDuration, m.sessions, m.discoveryReplies, m.eventsDropped)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(desc Descriptor, action string, res Result, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if res.Err != nil {
		outcome = res.Err.Kind.String()
	}
	number := strconv.Itoa(desc.DeviceNumber)
	m.requests.WithLabelValues(desc.DeviceType, number, action, outcome).Inc()
	m.hookDuration.WithLabelValues(desc.DeviceType, number).Observe(seconds)
}

func (m *Metrics) sessionGauge(desc Descriptor) prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.sessions.WithLabelValues(desc.DeviceType, strconv.Itoa(desc.DeviceNumber))
}

func (m *Metrics) observeDiscovery() {
	if m == nil {
		return
	}
	m.discoveryReplies.Inc()
}

func (m *Metrics) observeDroppedEvent() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
