package akapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the call pipeline.
// It is safe for concurrent use; a nil collector records nothing.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	coalescedTotal *prometheus.CounterVec

	writesDenied *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_requests_total",
				Help: "Total number of API calls sent to the network",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "akapi_request_duration_seconds",
				Help:    "Duration of API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "akapi_requests_in_flight",
				Help: "Number of API calls currently waiting on the network",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_cache_hits_total",
				Help: "Total number of calls answered from the result cache",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_cache_misses_total",
				Help: "Total number of cacheable calls not found in the result cache",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "akapi_cache_size",
				Help: "Current number of entries in the result cache",
			},
		),
		coalescedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_coalesced_total",
				Help: "Total number of calls that shared another call's in-flight request",
			},
			[]string{"method", "endpoint"},
		),
		writesDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_writes_denied_total",
				Help: "Total number of mutating calls rejected by the write guard",
			},
			[]string{"method"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akapi_errors_total",
				Help: "Total number of failed calls by error kind",
			},
			[]string{"kind", "method"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method Method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(string(method), statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(string(method), statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method Method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(string(method), endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method Method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(string(method), endpoint).Dec()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method Method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(string(method), endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method Method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(string(method), endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordCoalesced increments the shared in-flight counter.
func (mc *MetricsCollector) RecordCoalesced(method Method, endpoint string) {
	if mc == nil {
		return
	}

	mc.coalescedTotal.WithLabelValues(string(method), endpoint).Inc()
}

// RecordWriteDenied increments the write guard rejection counter.
func (mc *MetricsCollector) RecordWriteDenied(method Method) {
	if mc == nil {
		return
	}

	mc.writesDenied.WithLabelValues(string(method)).Inc()
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method Method) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(string(kind), string(method)).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on another Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
