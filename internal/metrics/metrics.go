// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fldgate"

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PriceFetches      *prometheus.CounterVec
	PriceFallbacks    prometheus.Counter
	PriceCacheHits    prometheus.Counter
	PriceFetchLatency prometheus.Histogram

	BalanceReadErrors *prometheus.CounterVec

	TrackerOutcomes *prometheus.CounterVec
	TrackerActive   prometheus.Gauge

	Actions *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PriceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "fetches_total",
			Help:      "Upstream price fetches by result",
		}, []string{"result"}),
		PriceFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "fallbacks_total",
			Help:      "Price results served from the fallback table",
		}),
		PriceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "cache_hits_total",
			Help:      "Price requests answered from cache",
		}),
		PriceFetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream price fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),

		BalanceReadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "read_errors_total",
			Help:      "Token balance reads that failed and were omitted",
		}, []string{"symbol"}),

		TrackerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "outcomes_total",
			Help:      "Terminal confirmation tracker states",
		}, []string{"status"}),
		TrackerActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "active",
			Help:      "Transactions currently being tracked",
		}),

		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "Purchase and claim actions by result",
		}, []string{"action", "result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The helpers below are nil-safe so components can run without metrics.

// ObservePriceFetch records one upstream fetch.
func (m *Metrics) ObservePriceFetch(result string, seconds float64) {
	if m == nil {
		return
	}
	m.PriceFetches.WithLabelValues(result).Inc()
	m.PriceFetchLatency.Observe(seconds)
}

// IncPriceFallback counts a fallback result.
func (m *Metrics) IncPriceFallback() {
	if m == nil {
		return
	}
	m.PriceFallbacks.Inc()
}

// IncPriceCacheHit counts a cache hit.
func (m *Metrics) IncPriceCacheHit() {
	if m == nil {
		return
	}
	m.PriceCacheHits.Inc()
}

// IncBalanceError counts an omitted token balance.
func (m *Metrics) IncBalanceError(symbol string) {
	if m == nil {
		return
	}
	m.BalanceReadErrors.WithLabelValues(symbol).Inc()
}

// TrackStarted adjusts the active tracker gauge.
func (m *Metrics) TrackStarted() {
	if m == nil {
		return
	}
	m.TrackerActive.Inc()
}

// TrackFinished records a terminal tracker status.
func (m *Metrics) TrackFinished(status string) {
	if m == nil {
		return
	}
	m.TrackerActive.Dec()
	m.TrackerOutcomes.WithLabelValues(status).Inc()
}

// IncAction counts a purchase or claim outcome.
func (m *Metrics) IncAction(action, result string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, result).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
