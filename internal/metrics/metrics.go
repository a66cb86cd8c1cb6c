// Package metrics exposes Prometheus instrumentation for the marketplace.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nftbay/marketplace/internal/domain/market"
)

// Metrics holds the marketplace collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	opErrors      *prometheus.CounterVec
	staleListings prometheus.Gauge
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_events_total",
			Help: "Marketplace notifications emitted, by type.",
		}, []string{"type"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_operation_errors_total",
			Help: "Failed marketplace operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
		staleListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_stale_listings",
			Help: "Listings whose asset is no longer owned by the listed seller.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request processing duration.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
	}

	m.registry.MustRegister(m.eventsTotal, m.opErrors, m.staleListings, m.httpDuration, m.httpInFlight)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements marketplace.Emitter by counting events per type.
func (m *Metrics) Emit(_ context.Context, event market.Event) {
	m.eventsTotal.WithLabelValues(event.Type).Inc()
}

// RecordOperationError counts a failed operation under its error kind.
func (m *Metrics) RecordOperationError(operation, kind string) {
	m.opErrors.WithLabelValues(operation, kind).Inc()
}

// SetStaleListings publishes the auditor's latest drift count.
func (m *Metrics) SetStaleListings(n int) {
	m.staleListings.Set(float64(n))
}

// RecordHTTPRequest observes one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }
