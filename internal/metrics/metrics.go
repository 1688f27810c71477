// Package metrics exposes Prometheus collectors for the audit service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles all service metrics behind a private registry.
type Collector struct {
	LedgerAppends   *prometheus.CounterVec
	VerifyRuns      *prometheus.CounterVec
	EventsIngested  *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSClients       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Collector with the standard Go and process collectors
// registered alongside the service metrics.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		LedgerAppends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "appends_total",
				Help:      "Audit ledger appends by outcome",
			},
			[]string{"status"},
		),
		VerifyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "verify_runs_total",
				Help:      "Full-chain verification runs by result",
			},
			[]string{"result"},
		),
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "ingested_total",
				Help:      "Security events accepted by severity and action",
			},
			[]string{"severity", "action"},
		),
		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "rejected_total",
				Help:      "Security events rejected by reason",
			},
			[]string{"reason"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route", "status"},
		),
		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected WebSocket clients",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		c.LedgerAppends,
		c.VerifyRuns,
		c.EventsIngested,
		c.EventsRejected,
		c.RequestDuration,
		c.WSClients,
	)
	return c
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
