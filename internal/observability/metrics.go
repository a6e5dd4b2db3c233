package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the BFF. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Remote API metrics
	APIRequestsTotal       *prometheus.CounterVec
	APIRequestDuration     *prometheus.HistogramVec
	APICircuitBreakerState prometheus.Gauge
	APIRetriesTotal        prometheus.Counter
	TokenRefreshTotal      *prometheus.CounterVec

	// Table fetch metrics
	FetchRequestsTotal     *prometheus.CounterVec
	FetchCacheHitsTotal    *prometheus.CounterVec
	FetchCacheMissesTotal  *prometheus.CounterVec
	StaleResponsesTotal    *prometheus.CounterVec
	BackgroundRefreshTotal *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// Session metrics
	ActiveWorkspaces prometheus.Gauge

	// System metrics
	DefinitionReloadTotal    *prometheus.CounterVec
	DefinitionsLoaded        prometheus.Gauge
	OpenAPIOperationsIndexed prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formdesk_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Remote API
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_api_requests_total",
			Help: "Total number of requests sent to the remote forms API.",
		}, []string{"method", "resource", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formdesk_api_request_duration_seconds",
			Help:    "Remote API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"method"}),
		APICircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formdesk_api_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		APIRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_api_retries_total",
			Help: "Total number of remote API request retries.",
		}),
		TokenRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_token_refresh_total",
			Help: "Total number of access token refresh exchanges.",
		}, []string{"outcome"}),

		// Fetch
		FetchRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_fetch_requests_total",
			Help: "Total number of table page loads.",
		}, []string{"resource", "outcome"}),
		FetchCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_fetch_cache_hits_total",
			Help: "Total page loads served from the freshness cache.",
		}, []string{"resource"}),
		FetchCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_fetch_cache_misses_total",
			Help: "Total page loads that went to the remote API.",
		}, []string{"resource"}),
		StaleResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_stale_responses_total",
			Help: "Total responses discarded because a newer load superseded them.",
		}, []string{"resource"}),
		BackgroundRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_background_refresh_total",
			Help: "Total background refreshes of mounted tables.",
		}, []string{"resource"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// Sessions
		ActiveWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formdesk_active_workspaces",
			Help: "Number of session workspaces held in memory.",
		}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formdesk_definitions_loaded",
			Help: "Number of loaded resource definitions.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "formdesk_openapi_operations_indexed",
			Help: "Number of indexed remote API operations.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Remote API
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.APICircuitBreakerState,
		m.APIRetriesTotal,
		m.TokenRefreshTotal,
		// Fetch
		m.FetchRequestsTotal,
		m.FetchCacheHitsTotal,
		m.FetchCacheMissesTotal,
		m.StaleResponsesTotal,
		m.BackgroundRefreshTotal,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		// Sessions
		m.ActiveWorkspaces,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordAPIRequest records one remote API request. Status 0 means the
// request never got a response.
func (m *Metrics) RecordAPIRequest(method, resource string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetAPICircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetAPICircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.APICircuitBreakerState.Set(state)
}

// RecordAPIRetry records a remote API retry.
func (m *Metrics) RecordAPIRetry() {
	if m == nil {
		return
	}
	m.APIRetriesTotal.Inc()
}

// RecordTokenRefresh records a refresh exchange outcome ("success" or "failure").
func (m *Metrics) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordFetch records a table page load outcome ("success" or "failure").
func (m *Metrics) RecordFetch(resource, outcome string) {
	if m == nil {
		return
	}
	m.FetchRequestsTotal.WithLabelValues(resource, outcome).Inc()
}

// RecordFetchCacheHit records a page served from the freshness cache.
func (m *Metrics) RecordFetchCacheHit(resource string) {
	if m == nil {
		return
	}
	m.FetchCacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordFetchCacheMiss records a page that required a remote call.
func (m *Metrics) RecordFetchCacheMiss(resource string) {
	if m == nil {
		return
	}
	m.FetchCacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordStaleResponse records a discarded out-of-order response.
func (m *Metrics) RecordStaleResponse(resource string) {
	if m == nil {
		return
	}
	m.StaleResponsesTotal.WithLabelValues(resource).Inc()
}

// RecordBackgroundRefresh records a timer-driven refresh.
func (m *Metrics) RecordBackgroundRefresh(resource string) {
	if m == nil {
		return
	}
	m.BackgroundRefreshTotal.WithLabelValues(resource).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// SetActiveWorkspaces sets the number of live session workspaces.
func (m *Metrics) SetActiveWorkspaces(n int) {
	if m == nil {
		return
	}
	m.ActiveWorkspaces.Set(float64(n))
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// SetOpenAPIOperationsIndexed sets the number of indexed OpenAPI operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count float64) {
	if m == nil {
		return
	}
	m.OpenAPIOperationsIndexed.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern joins chi's matched route patterns, dropping the "/*" that
// mounted subrouters leave behind, e.g. "/ui/tables/{resource}/state". It
// falls back to the raw path outside chi.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	for strings.Contains(pattern, "/*/") {
		pattern = strings.ReplaceAll(pattern, "/*/", "/")
	}
	pattern = strings.TrimSuffix(pattern, "/*")
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// statusRecorder captures the status and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
