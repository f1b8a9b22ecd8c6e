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

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Forecast upstream call rate. Watch for: error vs success ratio.
	ForecastFetchTotal *prometheus.CounterVec

	// Forecast upstream latency. Watch for: p95 > 2s (upstream degradation).
	ForecastFetchDuration *prometheus.HistogramVec

	// Advisory upstream call rate. Advisories are never cached, so this tracks request volume closely.
	AdvisoryFetchTotal *prometheus.CounterVec

	// Geolocation upstream call rate. Errors here mean callers silently got the default location.
	GeoIPCallsTotal *prometheus.CounterVec

	// Forecast cache hits/misses per cache type. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Refreshes that piggybacked on an in-flight upstream call instead of issuing their own.
	RefreshCoalescedTotal prometheus.Counter

	// Cache warming runs and their duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Weather bundles assembled and how long assembly took (both legs joined).
	WeatherBundlesTotal   prometheus.Counter
	WeatherBundleDuration prometheus.Histogram

	// Prompt context renders.
	PromptContextsTotal prometheus.Counter

	// Calendar storage outcomes. Read errors degrade silently, so this counter is the only trace.
	CalendarReadErrorsTotal prometheus.Counter
	CalendarWritesTotal     prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
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
	ForecastFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastFetchTotal",
			Help: "Total number of upstream forecast fetches",
		},
		[]string{"status"},
	)
	ForecastFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastFetchDurationSeconds",
			Help:    "Upstream forecast latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	AdvisoryFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisoryFetchTotal",
			Help: "Total number of upstream advisory fetches (uncached)",
		},
		[]string{"status"},
	)
	GeoIPCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoipCallsTotal",
			Help: "Total number of IP geolocation lookups",
		},
		[]string{"status"},
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
			Help: "Total number of cache misses (stale, empty, or absent entries)",
		},
		[]string{"cacheType"},
	)
	RefreshCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshCoalescedTotal",
			Help: "Refreshes served by waiting on an in-flight upstream call",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WeatherBundlesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherBundlesTotal",
			Help: "Total number of weather bundles assembled",
		},
	)
	WeatherBundleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weatherBundleDurationSeconds",
			Help:    "Weather bundle assembly latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	PromptContextsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptContextsTotal",
			Help: "Total number of prompt context blocks rendered",
		},
	)
	CalendarReadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calendarReadErrorsTotal",
			Help: "Calendar reads that degraded to an empty event map",
		},
	)
	CalendarWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calendarWritesTotal",
			Help: "Successful calendar overwrites",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the rate limiter",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		ForecastFetchTotal,
		ForecastFetchDuration,
		AdvisoryFetchTotal,
		GeoIPCallsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		RefreshCoalescedTotal,
		CacheWarmingTotal,
		CacheWarmingDurationSeconds,
		WeatherBundlesTotal,
		WeatherBundleDuration,
		PromptContextsTotal,
		CalendarReadErrorsTotal,
		CalendarWritesTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
