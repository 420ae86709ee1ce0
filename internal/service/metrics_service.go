package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

const metricsNamespace = "mashov_bridge"

// MetricsService owns the Prometheus registry. Every method is safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	refreshDuration  *prometheus.HistogramVec
	refreshTotal     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	loginAttempts    *prometheus.CounterVec
	reauthTotal      prometheus.Counter
	breakerState     *prometheus.GaugeVec
	publishedItems   *prometheus.GaugeVec
	instanceUp       *prometheus.GaugeVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	dbQueryDuration  *prometheus.HistogramVec

	refreshCount         uint64
	refreshFailureCount  uint64
	upstreamCount        uint64
	reauthCount          uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of full refresh cycles",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"instance", "trigger"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"instance", "trigger", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of upstream data requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream data requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		reauthTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reauthentications_total",
			Help:      "Re-authentications triggered by expired sessions",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		publishedItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "published_items",
			Help:      "Items in the bounded published view",
		}, []string{"instance", "sensor"}),
		instanceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "instance_available",
			Help:      "1 when the instance last refreshed successfully",
		}, []string{"instance"}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_query_duration_seconds",
			Help:      "Duration of database queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
	}

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "state_read_seconds",
		Help:      "Latency of published state reads",
		Buckets:   prometheus.DefBuckets,
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "state_write_seconds",
		Help:      "Latency of published state writes",
		Buckets:   prometheus.DefBuckets,
	})
	m.cacheLatency, m.cacheWrite = cacheLatency, cacheWrite

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.refreshDuration, m.refreshTotal,
		m.upstreamDuration, m.upstreamTotal,
		m.loginAttempts, m.reauthTotal, m.breakerState,
		m.publishedItems, m.instanceUp,
		cacheLatency, cacheWrite, m.dbQueryDuration, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records one served API request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, label).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, label).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveRefresh records a finished refresh cycle.
func (m *MetricsService) ObserveRefresh(instance string, trigger models.RefreshTrigger, status models.RefreshStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.WithLabelValues(instance, string(trigger)).Observe(duration.Seconds())
	m.refreshTotal.WithLabelValues(instance, string(trigger), string(status)).Inc()
	atomic.AddUint64(&m.refreshCount, 1)
	if status == models.RefreshFailed {
		atomic.AddUint64(&m.refreshFailureCount, 1)
	}
}

// SetInstanceAvailable flips the availability gauge of an instance.
func (m *MetricsService) SetInstanceAvailable(instance string, available bool) {
	if m == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	m.instanceUp.WithLabelValues(instance).Set(v)
}

// SetPublishedItems records the bounded item count published by one sensor.
func (m *MetricsService) SetPublishedItems(instance, sensor string, n int) {
	if m == nil {
		return
	}
	m.publishedItems.WithLabelValues(instance, sensor).Set(float64(n))
}

// ForgetInstance drops every per-instance series.
func (m *MetricsService) ForgetInstance(instance string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"instance": instance}
	m.publishedItems.DeletePartialMatch(labels)
	m.instanceUp.DeletePartialMatch(labels)
}

// ObserveUpstreamRequest records one upstream data request.
func (m *MetricsService) ObserveUpstreamRequest(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.upstreamTotal.WithLabelValues(kind, outcome).Inc()
	atomic.AddUint64(&m.upstreamCount, 1)
}

// IncLoginAttempt counts one login attempt.
func (m *MetricsService) IncLoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// IncReauthentication counts one 401-triggered re-login.
func (m *MetricsService) IncReauthentication() {
	if m == nil {
		return
	}
	m.reauthTotal.Inc()
	atomic.AddUint64(&m.reauthCount, 1)
}

// SetBreakerState records the state of a named circuit breaker.
func (m *MetricsService) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

// RecordCacheOperation records a published state read.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// ObserveCacheWrite records a published state write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RefreshesTotal:           atomic.LoadUint64(&m.refreshCount),
		RefreshFailures:          atomic.LoadUint64(&m.refreshFailureCount),
		UpstreamRequests:         atomic.LoadUint64(&m.upstreamCount),
		Reauthentications:        atomic.LoadUint64(&m.reauthCount),
		CacheHitRatio:            ratio,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
