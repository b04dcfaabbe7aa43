// Package metrics exposes Prometheus collectors for the messaging gate,
// the subscriber router, and connection sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgate"

// Frame outcomes recorded by the gate.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultPassed   = "passed"
)

// Delivery outcomes recorded by the router.
const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

// Collector groups the service collectors. A nil *Collector is valid and
// records nothing, so components never need to check for it.
type Collector struct {
	registry   *prometheus.Registry
	frames     *prometheus.CounterVec
	sessions   prometheus.Gauge
	deliveries *prometheus.CounterVec
	published  prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames handled by the gate, by kind and result.",
		}, []string{"kind", "result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-subscriber deliveries attempted by the router, by result.",
		}, []string{"result"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Messages published to the router.",
		}),
	}
	c.registry.MustRegister(
		c.frames,
		c.sessions,
		c.deliveries,
		c.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Frame records one gate decision.
func (c *Collector) Frame(kind, result string) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(kind, result).Inc()
}

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}

// Published records one router publish.
func (c *Collector) Published() {
	if c == nil {
		return
	}
	c.published.Inc()
}

// Delivery records one per-subscriber delivery attempt.
func (c *Collector) Delivery(result string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
