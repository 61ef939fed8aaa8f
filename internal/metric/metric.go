// Package metric holds the Prometheus collectors shared by the store
// middleware and the HTTP server.
package metric

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every bugline collector.
type Metrics struct {
	// Store metrics
	ActionsDispatched *prometheus.CounterVec
	APICallDuration   *prometheus.HistogramVec
	APICallsInFlight  prometheus.Gauge

	// Server metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		ActionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bugline",
				Subsystem: "store",
				Name:      "actions_total",
				Help:      "Total number of actions seen by the dispatch pipeline",
			},
			[]string{"type"},
		),

		APICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bugline",
				Subsystem: "api",
				Name:      "call_duration_seconds",
				Help:      "Duration of network calls issued by the api middleware",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),

		APICallsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bugline",
				Subsystem: "api",
				Name:      "calls_in_flight",
				Help:      "Network calls started but not yet finished",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bugline",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Register adds every collector to reg. Registering the same Metrics twice
// is a no-op; a different Metrics with the same names is an error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := m.RegisterStore(reg); err != nil {
		return err
	}
	return m.RegisterHTTP(reg)
}

// RegisterStore adds the dispatch pipeline and api call collectors.
func (m *Metrics) RegisterStore(reg prometheus.Registerer) error {
	return register(reg, m.ActionsDispatched, m.APICallDuration, m.APICallsInFlight)
}

// RegisterHTTP adds the server request collectors.
func (m *Metrics) RegisterHTTP(reg prometheus.Registerer) error {
	return register(reg, m.HTTPRequests)
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) && already.ExistingCollector == c {
				continue
			}
			return err
		}
	}
	return nil
}
