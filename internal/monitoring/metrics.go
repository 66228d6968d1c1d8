package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Review workflow metrics
	ReviewDecisions *prometheus.CounterVec
	PublishDuration prometheus.Histogram

	// Geocoder metrics
	GeocodeRequests *prometheus.CounterVec
	GeocodeRetries  prometheus.Counter
	GeocodeLatency  prometheus.Histogram

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Storage metrics
	ImageRelocations *prometheus.CounterVec
	PresignedURLs    prometheus.Counter

	// Store metrics
	DynamoRequestDuration *prometheus.HistogramVec
	DBQueryDuration       *prometheus.HistogramVec
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Review workflow metrics
		ReviewDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_decisions_total",
				Help: "Total number of review decisions",
			},
			[]string{"outcome"},
		),
		PublishDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "publish_duration_seconds",
				Help:    "Duration of the publish workflow in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		// Geocoder metrics
		GeocodeRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocode_requests_total",
				Help: "Total number of geocode lookups",
			},
			[]string{"status"},
		),
		GeocodeRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "geocode_retries_total",
				Help: "Total number of geocode retry attempts",
			},
		),
		GeocodeLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geocode_latency_seconds",
				Help:    "Geocoder response latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Storage metrics
		ImageRelocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_relocations_total",
				Help: "Total number of private-to-public image copies",
			},
			[]string{"result"},
		),
		PresignedURLs: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "presigned_urls_total",
				Help: "Total number of presigned URLs generated",
			},
		),

		// Store metrics
		DynamoRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dynamo_request_duration_seconds",
				Help:    "DynamoDB request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_type"},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		// Track in-flight requests
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// Process request
		c.Next()

		// Record metrics
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordReviewDecision records an accept/reject/publish outcome
func RecordReviewDecision(outcome string) {
	Get().ReviewDecisions.WithLabelValues(outcome).Inc()
}

// RecordPublishDuration records how long a publish run took
func RecordPublishDuration(duration time.Duration) {
	Get().PublishDuration.Observe(duration.Seconds())
}

// RecordGeocodeRequest records a geocode lookup result
func RecordGeocodeRequest(status string) {
	Get().GeocodeRequests.WithLabelValues(status).Inc()
}

// RecordGeocodeRetry records a geocode retry attempt
func RecordGeocodeRetry() {
	Get().GeocodeRetries.Inc()
}

// RecordGeocodeLatency records geocoder response latency
func RecordGeocodeLatency(duration time.Duration) {
	Get().GeocodeLatency.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Get().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Get().CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordImageRelocation records a private-to-public copy result
func RecordImageRelocation(result string) {
	Get().ImageRelocations.WithLabelValues(result).Inc()
}

// RecordPresignedURL records a presigned URL generation
func RecordPresignedURL() {
	Get().PresignedURLs.Inc()
}

// RecordDynamoRequest records a DynamoDB request duration
func RecordDynamoRequest(operation, table string, duration time.Duration) {
	Get().DynamoRequestDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration
func RecordDBQuery(queryType string, duration time.Duration) {
	Get().DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}
