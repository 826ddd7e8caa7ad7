package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "passd"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_fetch_failures_total",
		Help:      "Catalog fetches that failed.",
	})

	catalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refreshes_total",
			Help:      "Catalog refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	catalogParseSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_parse_skipped_total",
		Help:      "Malformed TLE groups skipped while parsing.",
	})

	catalogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_records",
		Help:      "Number of element records in the published catalog.",
	})

	propagationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_errors_total",
			Help:      "Propagation failures by stage.",
		},
		[]string{"stage"},
	)

	modelBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "propagation_models_built_total",
		Help:      "Orbit models initialized from element records.",
	})

	passScanSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_scan_duration_seconds",
		Help:      "Duration of pass searches.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	passesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "passes_found_total",
		Help:      "Passes returned by pass searches.",
	})

	groundtrackPoints = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "groundtrack_points",
		Help:      "Points produced per groundtrack request.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_clients",
		Help:      "Connected groundtrack stream clients.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogFetchFailures,
		catalogRefreshes,
		catalogParseSkipped,
		catalogSize,
		propagationErrors,
		modelBuilds,
		passScanSeconds,
		passesFound,
		groundtrackPoints,
		streamClients,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncFetchFailures counts one failed catalog fetch.
func IncFetchFailures() { catalogFetchFailures.Inc() }

// IncCatalogRefresh counts a refresh with the given outcome
// (published, unchanged, empty, error).
func IncCatalogRefresh(outcome string) { catalogRefreshes.WithLabelValues(outcome).Inc() }

// AddParseSkipped adds n skipped TLE groups.
func AddParseSkipped(n int) {
	if n > 0 {
		catalogParseSkipped.Add(float64(n))
	}
}

// SetCatalogSize records the size of the published catalog.
func SetCatalogSize(n int) { catalogSize.Set(float64(n)) }

// RegisterCatalogAge exposes the age of the published catalog, computed on
// scrape. It may only be called once per process.
func RegisterCatalogAge(age func() time.Duration) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_age_seconds",
			Help:      "Seconds since the published catalog was fetched, -1 if none.",
		},
		func() float64 {
			d := age()
			if d < 0 {
				return -1
			}
			return d.Seconds()
		},
	))
}

// IncPropagationErrors counts a failure at stage ("init" or "propagate").
func IncPropagationErrors(stage string) { propagationErrors.WithLabelValues(stage).Inc() }

// IncModelBuilds counts one orbit model initialization.
func IncModelBuilds() { modelBuilds.Inc() }

// ObservePassScan records one pass search and the passes it found.
func ObservePassScan(d time.Duration, found int) {
	passScanSeconds.Observe(d.Seconds())
	passesFound.Add(float64(found))
}

// ObserveGroundtrack records the size of one groundtrack.
func ObserveGroundtrack(points int) { groundtrackPoints.Observe(float64(points)) }

// StreamClientConnected and StreamClientDisconnected track live stream clients.
func StreamClientConnected()    { streamClients.Inc() }
func StreamClientDisconnected() { streamClients.Dec() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var exactRoutes = map[string]bool{
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/satellites":      true,
	"/api/v1/passes":          true,
	"/api/v1/catalog":         true,
	"/api/v1/catalog/refresh": true,
}

var satelliteSubroutes = map[string]bool{
	"state":       true,
	"summary":     true,
	"groundtrack": true,
}

// normalizeRoute maps a request path to a bounded set of labels so that
// catalog ids and bot probes cannot blow up series cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/satellites/"); ok {
		id, sub, found := strings.Cut(rest, "/")
		if found && isDigits(id) && satelliteSubroutes[sub] {
			return "/api/v1/satellites/{id}/" + sub
		}
		return "other"
	}

	if id, ok := strings.CutPrefix(path, "/api/v1/stream/groundtrack/"); ok && isDigits(id) {
		return "/api/v1/stream/groundtrack/{id}"
	}

	return "other"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
