package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roaia"

// Metrics holds the application collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pushDeliveries   *prometheus.CounterVec
	prunedEndpoints  prometheus.Counter
	sessionEvents    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
	workerEvents     *prometheus.CounterVec
	gpsPositions     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Per-endpoint push delivery results.",
		}, []string{"result"}),
		prunedEndpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "pruned_endpoints_total",
			Help:      "Device tokens removed after the provider rejected them.",
		}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_tokens_total",
			Help:      "Refresh token lifecycle events.",
		}, []string{"event"}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		workerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Background stream events handled, by type and status.",
		}, []string{"type", "status"}),
		gpsPositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gps",
			Name:      "positions_total",
			Help:      "GPS positions received from glasses, by source and status.",
		}, []string{"source", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pushDeliveries,
		m.prunedEndpoints,
		m.sessionEvents,
		m.requestDurations,
		m.workerEvents,
		m.gpsPositions,
	)
	return m
}

// Session event labels.
const (
	SessionIssued   = "issued"
	SessionReused   = "reused"
	SessionRotated  = "rotated"
	SessionRejected = "rejected"
	SessionRevoked  = "revoked"
)

func (m *Metrics) PushResult(success, failure int) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues("success").Add(float64(success))
	m.pushDeliveries.WithLabelValues("failure").Add(float64(failure))
}

func (m *Metrics) EndpointsPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedEndpoints.Add(float64(n))
}

func (m *Metrics) Session(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDurations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.workerEvents.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) GPSPosition(source, status string) {
	if m == nil {
		return
	}
	m.gpsPositions.WithLabelValues(source, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
