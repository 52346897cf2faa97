package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream names used as label values.
const (
	UpstreamOllama      = "ollama"
	UpstreamCallService = "call_service"
	UpstreamSummary     = "summary_forward"
	UpstreamStore       = "store"
)

// Metrics holds the Prometheus collectors for the server. All methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	eventSubscribers prometheus.Gauge
	eventsDelivered  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optilead",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optilead",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"route", "method"}),

		upstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optilead",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Calls to upstream services by outcome.",
		}, []string{"upstream", "outcome"}),

		upstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "optilead",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"upstream"}),

		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optilead",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),

		eventSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "optilead",
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Connected call-event stream subscribers.",
		}),

		eventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optilead",
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Call events delivered to subscribers by type.",
		}, []string{"type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveUpstream records one call to an upstream started at start.
func (m *Metrics) ObserveUpstream(upstream string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(upstream, outcome).Inc()
	m.upstreamDuration.WithLabelValues(upstream).Observe(time.Since(start).Seconds())
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// SubscriberAdded increments the subscriber gauge.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.eventSubscribers.Inc()
}

// SubscriberRemoved decrements the subscriber gauge.
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.eventSubscribers.Dec()
}

// EventDelivered counts an event written to one subscriber.
func (m *Metrics) EventDelivered(eventType string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(eventType).Inc()
}
