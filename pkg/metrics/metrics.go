package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics prometheus collectors for the service
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpReqSize   *prometheus.SummaryVec
	httpRespSize  *prometheus.SummaryVec
	callbacks     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// NewMetrics returns the process-wide collectors, registering them once
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(prometheus.NewRegistry())
	})
	return globalMetrics
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status", "handler"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpReqSize: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "http_request_size_bytes",
			Help: "HTTP request body size.",
		}, []string{"method", "route"}),
		httpRespSize: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "http_response_size_bytes",
			Help: "HTTP response body size.",
		}, []string{"method", "route"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calltrack_provider_callbacks_total",
			Help: "Provider callbacks by kind and result.",
		}, []string{"kind", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calltrack_call_transitions_total",
			Help: "Call lifecycle transitions committed.",
		}, []string{"event"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calltrack_cache_requests_total",
			Help: "Metrics cache lookups.",
		}, []string{"cache", "result"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.httpReqSize, m.httpRespSize,
		m.callbacks, m.transitions, m.cacheRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordHTTPRequest(method, route, status, handler string, d time.Duration, reqSize, respSize int64) {
	m.httpRequests.WithLabelValues(method, route, status, handler).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	if reqSize >= 0 {
		m.httpReqSize.WithLabelValues(method, route).Observe(float64(reqSize))
	}
	if respSize >= 0 {
		m.httpRespSize.WithLabelValues(method, route).Observe(float64(respSize))
	}
}

// RecordCallback kind: inbound, status, recording, voicemail. result: ok, dropped, error, unauthorized
func (m *Metrics) RecordCallback(kind, result string) {
	m.callbacks.WithLabelValues(kind, result).Inc()
}

// RecordTransition counts a committed lifecycle event such as call.connected
func (m *Metrics) RecordTransition(event string) {
	m.transitions.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	m.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	m.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

// Handler prometheus exposition for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MonitorMiddleware records request metrics by matched route
func MonitorMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			c.HandlerName(),
			time.Since(start),
			c.Request.ContentLength,
			int64(c.Writer.Size()),
		)
	}
}
