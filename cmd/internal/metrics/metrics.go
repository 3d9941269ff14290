// Package metrics collects and exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records service metrics. A nil *Collector is a no-op.
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	identity      *prometheus.CounterVec
	notify        *prometheus.CounterVec
	telemetry     *prometheus.CounterVec
	liveClients   prometheus.Gauge
	liveDelivered *prometheus.CounterVec
}

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqi_http_requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		identity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqi_identity_events_total",
			Help: "Identity operations by outcome.",
		}, []string{"op", "result"}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqi_notify_total",
			Help: "Verification notices by outcome (enqueued, dropped, sent, failed).",
		}, []string{"result"}),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqi_telemetry_writes_total",
			Help: "Telemetry point writes by outcome.",
		}, []string{"result"}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqi_live_clients",
			Help: "Connected live-feed WebSocket clients.",
		}),
		liveDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqi_live_messages_total",
			Help: "Live-feed messages by outcome (sent, dropped).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.identity,
		c.notify,
		c.telemetry,
		c.liveClients,
		c.liveDelivered,
	)

	return c
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(method, class string, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, class).Inc()
	c.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IdentityEvent records a register/login/verify outcome.
func (c *Collector) IdentityEvent(op, result string) {
	if c == nil {
		return
	}
	c.identity.WithLabelValues(op, result).Inc()
}

// NotifyResult records a notifier outcome.
func (c *Collector) NotifyResult(result string) {
	if c == nil {
		return
	}
	c.notify.WithLabelValues(result).Inc()
}

// TelemetryWrite records a time-series write outcome.
func (c *Collector) TelemetryWrite(result string) {
	if c == nil {
		return
	}
	c.telemetry.WithLabelValues(result).Inc()
}

// LiveClientConnected increments the live client gauge.
func (c *Collector) LiveClientConnected() {
	if c == nil {
		return
	}
	c.liveClients.Inc()
}

// LiveClientDisconnected decrements the live client gauge.
func (c *Collector) LiveClientDisconnected() {
	if c == nil {
		return
	}
	c.liveClients.Dec()
}

// LiveMessage records a live-feed delivery outcome.
func (c *Collector) LiveMessage(result string) {
	if c == nil {
		return
	}
	c.liveDelivered.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
