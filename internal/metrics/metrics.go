package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattracker_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattracker_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattracker_propagation_duration_seconds",
			Help:    "Duration of one full constellation sampling run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	propagationSatellitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattracker_propagation_satellites_total",
			Help: "Satellites propagated, by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattracker_analysis_duration_seconds",
			Help:    "Duration of one coverage analysis run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	analysisPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattracker_analysis_passes_total",
			Help: "Total passes found across all coverage analyses.",
		},
	)

	tleDatasetSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattracker_tle_dataset_satellites",
			Help: "Number of satellites in the current TLE dataset.",
		},
	)

	tleDatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattracker_tle_dataset_age_seconds",
			Help: "Age of the current TLE dataset in seconds.",
		},
	)

	reportCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattracker_report_cache_hits_total",
			Help: "Report cache hits.",
		},
	)

	reportCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattracker_report_cache_misses_total",
			Help: "Report cache misses.",
		},
	)

	reportRefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattracker_report_refresh_duration_seconds",
			Help:    "Duration of background report refreshes.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	reportRefreshErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattracker_report_refresh_errors_total",
			Help: "Background report refreshes that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDurationSeconds,
		propagationSatellitesTotal,
		analysisDurationSeconds,
		analysisPassesTotal,
		tleDatasetSatellites,
		tleDatasetAgeSeconds,
		reportCacheHitsTotal,
		reportCacheMissesTotal,
		reportRefreshDurationSeconds,
		reportRefreshErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one constellation sampling run.
func RecordPropagation(duration time.Duration, success, failed int) {
	propagationDurationSeconds.Observe(duration.Seconds())
	propagationSatellitesTotal.WithLabelValues("success").Add(float64(success))
	propagationSatellitesTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordAnalysis records one coverage analysis run.
func RecordAnalysis(duration time.Duration, passes int) {
	analysisDurationSeconds.Observe(duration.Seconds())
	analysisPassesTotal.Add(float64(passes))
}

// SetTLEDatasetCount publishes the satellite count of the current dataset.
func SetTLEDatasetCount(n int) {
	tleDatasetSatellites.Set(float64(n))
}

// SetTLEDatasetAge publishes the age of the current dataset.
func SetTLEDatasetAge(seconds float64) {
	tleDatasetAgeSeconds.Set(seconds)
}

// IncReportCacheHits counts a report cache hit.
func IncReportCacheHits() {
	reportCacheHitsTotal.Inc()
}

// IncReportCacheMisses counts a report cache miss.
func IncReportCacheMisses() {
	reportCacheMissesTotal.Inc()
}

// ObserveReportRefresh records the duration of a background report refresh.
func ObserveReportRefresh(duration time.Duration) {
	reportRefreshDurationSeconds.Observe(duration.Seconds())
}

// IncReportRefreshErrors counts a failed background report refresh.
func IncReportRefreshErrors() {
	reportRefreshErrorsTotal.Inc()
}

// knownRoutes are the paths exposed by the API server. Anything else (bots,
// scanners, typos) collapses to "other" so the path label cardinality stays
// bounded.
var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/coverage":     true,
	"/api/v1/reports":      true,
	"/api/v1/heatmap":      true,
	"/api/v1/tle/metadata": true,
	"/api/v1/tle/refresh":  true,
}

// normalizeRoute maps a request path to a bounded metric label.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
