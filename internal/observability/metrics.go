package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for clausewise.
// Each collector owns a private registry so tests can create as many as they need.
type Collector struct {
	registry *prometheus.Registry

	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// Pipeline metrics
	DocumentsAnalyzed *prometheus.CounterVec
	ClausesSegmented  prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with all metrics registered under namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of capability provider calls",
			},
			[]string{"provider", "capability", "status"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Capability provider call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "capability"},
		),
		DocumentsAnalyzed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_analyzed_total",
				Help:      "Total number of analysis runs by outcome",
			},
			[]string{"status"},
		),
		ClausesSegmented: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clauses_segmented_total",
				Help:      "Total number of clauses produced by the segmenter",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_cache_hits_total",
				Help:      "Total number of provider cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_cache_misses_total",
				Help:      "Total number of provider cache misses",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.ProviderCalls,
		c.ProviderDuration,
		c.DocumentsAnalyzed,
		c.ClausesSegmented,
		c.CacheHits,
		c.CacheMisses,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordProviderCall records one capability call. status is "ok" or an error kind.
func (c *Collector) RecordProviderCall(provider, capability, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.ProviderCalls.WithLabelValues(provider, capability, status).Inc()
	c.ProviderDuration.WithLabelValues(provider, capability).Observe(d.Seconds())
}

// RecordDocument records the outcome of one analysis run: complete, partial, or failed
func (c *Collector) RecordDocument(status string, clauses int) {
	if c == nil {
		return
	}
	c.DocumentsAnalyzed.WithLabelValues(status).Inc()
	c.ClausesSegmented.Add(float64(clauses))
}

// RecordCache records a provider cache lookup
func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}

// RecordHTTP records one served HTTP request
func (c *Collector) RecordHTTP(method, route, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
