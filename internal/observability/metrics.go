package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases on /forecast misses.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Upstream weather API calls per endpoint (current, daily, hourly). Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency per endpoint. Watch for: p95 > 2s; sync latency is the max of the three.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts per endpoint. Watch for: high retries = unstable upstream.
	WeatherAPIRetriesTotal *prometheus.CounterVec

	// Upstream failures by category (timeout, rate_limited, upstream_5xx, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Snapshot cache hits by layer (hot, durable).
	CacheHitsTotal *prometheus.CounterVec

	// Snapshot cache misses (neither layer had the location).
	CacheMissesTotal prometheus.Counter

	// Cache/store errors by layer and operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache/store operation latency.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Forecast read-path outcomes (hit, fetched, unavailable, not_found).
	ForecastReadsTotal *prometheus.CounterVec

	// Concurrent read-path misses per location when more than one is in progress.
	ReadPathConcurrentMisses prometheus.Histogram

	// Read-path misses that joined an in-flight fetch instead of calling upstream.
	RequestCoalescingHitsTotal prometheus.Counter

	// Per-location sync outcomes (success, partial, error).
	SyncLocationsTotal *prometheus.CounterVec

	// Per-location sync latency (three upstream calls + normalization).
	SyncDurationSeconds prometheus.Histogram

	// Forecast audit appends that failed and were dropped.
	AuditAppendFailuresTotal prometheus.Counter

	// Scheduler job runs by job name and result (success, error, panic).
	SchedulerJobRunsTotal *prometheus.CounterVec

	// Scheduler job duration. Watch for: sync runs approaching the 15m interval.
	SchedulerJobDurationSeconds *prometheus.HistogramVec

	// Payloads produced by kind (alert, digest, report, manual).
	AlertsGeneratedTotal *prometheus.CounterVec

	// Notification deliveries by channel and result (sent, skipped, error).
	NotificationsTotal *prometheus.CounterVec

	// Currently connected push listeners.
	PushListeners prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of upstream weather API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Upstream weather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
		[]string{"endpoint"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Upstream weather API failures by category",
		},
		[]string{"category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Snapshot cache hits by layer",
		},
		[]string{"layer"},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Snapshot cache misses (no layer had the location)",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Snapshot cache and store errors by layer and operation",
		},
		[]string{"layer", "operation"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Snapshot cache and store operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"layer", "operation", "result"},
	)
	ForecastReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastReadsTotal",
			Help: "Forecast read-path outcomes",
		},
		[]string{"result"},
	)
	ReadPathConcurrentMisses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readPathConcurrentMisses",
			Help:    "Concurrent read-path misses for the same location, observed when greater than one",
			Buckets: []float64{2, 3, 5, 10, 20},
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Read-path misses that waited on an in-flight fetch",
		},
	)
	SyncLocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncLocationsTotal",
			Help: "Per-location sync outcomes",
		},
		[]string{"result"},
	)
	SyncDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncDurationSeconds",
			Help:    "Per-location sync latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	AuditAppendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auditAppendFailuresTotal",
			Help: "Forecast audit appends that failed and were dropped",
		},
	)
	SchedulerJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerJobRunsTotal",
			Help: "Scheduler job runs by job and result",
		},
		[]string{"job", "result"},
	)
	SchedulerJobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedulerJobDurationSeconds",
			Help:    "Scheduler job duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)
	AlertsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsGeneratedTotal",
			Help: "Notification payloads produced by kind",
		},
		[]string{"kind"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationsTotal",
			Help: "Notification deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)
	PushListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushListeners",
			Help: "Currently connected push listeners",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		ForecastReadsTotal, ReadPathConcurrentMisses, RequestCoalescingHitsTotal,
		SyncLocationsTotal, SyncDurationSeconds, AuditAppendFailuresTotal,
		SchedulerJobRunsTotal, SchedulerJobDurationSeconds,
		AlertsGeneratedTotal, NotificationsTotal, PushListeners,
	)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
// state is the numeric value of the new state.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
