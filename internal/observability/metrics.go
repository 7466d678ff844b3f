package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: p95/p99 increases on /predict (chart rendering).
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Assessments by risk level. Watch for: distribution shifts after scorer changes.
	PredictionsTotal *prometheus.CounterVec

	// Per-city assessments (allow-list; others go to "other").
	PredictionsByCityTotal *prometheus.CounterVec

	// Assessments persisted for logged-in users.
	PredictionsSavedTotal prometheus.Counter

	// Contact form outcomes (accepted, invalid, error).
	ContactSubmissionsTotal *prometheus.CounterVec

	// Login outcomes (success, invalid_credentials, invalid_form, error). Watch for: credential stuffing.
	LoginAttemptsTotal *prometheus.CounterVec

	// Chart render latency per chart kind. Cached renders are not observed.
	ChartRenderDuration *prometheus.HistogramVec

	// Cache hits and misses per cache type (chart, climate_data).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache warming runs, failed runs and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Store latency and failures per operation. Watch for: errors > 0 (dashboard falls back to sample data).
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Event publishing outcomes per event type.
	EventsPublishedTotal *prometheus.CounterVec
	EventsFailedTotal    *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Reports archived to object storage (success, error).
	ReportsArchivedTotal *prometheus.CounterVec

	// City report downloads by source (saved, sample).
	ReportsDownloadedTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}

	trafficGaugesOnce sync.Once
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
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsTotal",
			Help: "Total number of risk assessments by risk level",
		},
		[]string{"riskLevel"},
	)
	PredictionsByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsByCityTotal",
			Help: "Risk assessments by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	PredictionsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictionsSavedTotal",
			Help: "Total number of assessments saved for logged-in users",
		},
	)
	ContactSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactSubmissionsTotal",
			Help: "Contact form submissions by outcome",
		},
		[]string{"outcome"},
	)
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginAttemptsTotal",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)
	ChartRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartRenderDurationSeconds",
			Help:    "Chart PNG render latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"chart"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed job",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10},
		},
	)
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeOperationDurationSeconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Database operation failures",
		},
		[]string{"operation"},
	)
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsPublishedTotal",
			Help: "Domain events delivered to the broker",
		},
		[]string{"eventType"},
	)
	EventsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsFailedTotal",
			Help: "Domain events that could not be delivered",
		},
		[]string{"eventType"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	ReportsArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsArchivedTotal",
			Help: "Reports copied to object storage by outcome",
		},
		[]string{"outcome"},
	)
	ReportsDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsDownloadedTotal",
			Help: "City report downloads by data source",
		},
		[]string{"source"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PredictionsTotal, PredictionsByCityTotal, PredictionsSavedTotal,
		ContactSubmissionsTotal, LoginAttemptsTotal,
		ChartRenderDuration,
		CacheHitsTotal, CacheMissesTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		StoreOperationDuration, StoreErrorsTotal,
		EventsPublishedTotal, EventsFailedTotal, CircuitBreakerState,
		ReportsArchivedTotal, ReportsDownloadedTotal,
		RateLimitDeniedTotal,
	)
}

// TrafficCounter is implemented by traffic.Tracker.
type TrafficCounter interface {
	RequestCount(window time.Duration) int
	DenialCount(window time.Duration) int
}

// RegisterTrafficGauges registers request and reject gauges over the
// overload window. Only the first call registers.
func RegisterTrafficGauges(tc TrafficCounter, window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests on rate-limited paths in the sliding window; load/capacity planning",
				},
				func() float64 { return float64(tc.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(tc.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedCities sets the allow-list for per-city metrics.
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordPrediction records an assessment for city at level.
func RecordPrediction(city, level string) {
	PredictionsTotal.WithLabelValues(level).Inc()
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		PredictionsByCityTotal.WithLabelValues(c).Inc()
	} else {
		PredictionsByCityTotal.WithLabelValues("other").Inc()
	}
}

// ObserveStore records the latency and outcome of a store operation.
func ObserveStore(operation string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
