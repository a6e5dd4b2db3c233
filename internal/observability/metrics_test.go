package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"formdesk_http_requests_total",
		"formdesk_http_request_duration_seconds",
		"formdesk_http_request_size_bytes",
		"formdesk_http_response_size_bytes",
		"formdesk_api_requests_total",
		"formdesk_api_request_duration_seconds",
		"formdesk_api_circuit_breaker_state",
		"formdesk_api_retries_total",
		"formdesk_token_refresh_total",
		"formdesk_fetch_requests_total",
		"formdesk_fetch_cache_hits_total",
		"formdesk_fetch_cache_misses_total",
		"formdesk_stale_responses_total",
		"formdesk_background_refresh_total",
		"formdesk_capability_cache_hits_total",
		"formdesk_capability_cache_misses_total",
		"formdesk_active_workspaces",
		"formdesk_definition_reload_total",
		"formdesk_definitions_loaded",
		"formdesk_openapi_operations_indexed",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordAPIRequest("GET", "forms", 200, time.Millisecond)
	m.SetAPICircuitBreakerState(0)
	m.RecordAPIRetry()
	m.RecordTokenRefresh("success")
	m.RecordFetch("forms", "success")
	m.RecordFetchCacheHit("forms")
	m.RecordFetchCacheMiss("forms")
	m.RecordStaleResponse("forms")
	m.RecordBackgroundRefresh("forms")
	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheMiss()
	m.SetActiveWorkspaces(3)
	m.RecordDefinitionReload("success")
	m.SetDefinitionsLoaded(4)
	m.SetOpenAPIOperationsIndexed(12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestMetrics_nilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0, 0)
	m.RecordFetch("forms", "success")
	m.RecordTokenRefresh("failure")
	m.SetActiveWorkspaces(1)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/ui/tables/{resource}", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/ui/tables/{resource}", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("PATCH", "/ui/tables/{resource}/state", 500, 200*time.Millisecond, 512, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{resource}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("PATCH", "/ui/tables/{resource}/state", "500"))
	if val != 1 {
		t.Errorf("PATCH requests = %v, want 1", val)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordAPIRequest("GET", "forms", 200, 100*time.Millisecond)
	m.RecordAPIRequest("GET", "forms", 0, time.Second)

	if val := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "forms", "200")); val != 1 {
		t.Errorf("api 200 requests = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "forms", "0")); val != 1 {
		t.Errorf("api unanswered requests = %v, want 1", val)
	}
}

func TestSetAPICircuitBreakerState(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetAPICircuitBreakerState(2)
	if val := testutil.ToFloat64(m.APICircuitBreakerState); val != 2 {
		t.Errorf("circuit breaker state = %v, want 2 (open)", val)
	}
}

func TestRecordTokenRefresh(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTokenRefresh("success")
	m.RecordTokenRefresh("success")
	m.RecordTokenRefresh("failure")

	if val := testutil.ToFloat64(m.TokenRefreshTotal.WithLabelValues("success")); val != 2 {
		t.Errorf("refresh success = %v, want 2", val)
	}
	if val := testutil.ToFloat64(m.TokenRefreshTotal.WithLabelValues("failure")); val != 1 {
		t.Errorf("refresh failure = %v, want 1", val)
	}
}

func TestRecordFetchCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordFetch("users", "failure")
	m.RecordFetchCacheHit("users")
	m.RecordFetchCacheHit("users")
	m.RecordFetchCacheMiss("users")
	m.RecordStaleResponse("users")
	m.RecordBackgroundRefresh("users")

	if val := testutil.ToFloat64(m.FetchRequestsTotal.WithLabelValues("users", "failure")); val != 1 {
		t.Errorf("fetch failures = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.FetchCacheHitsTotal.WithLabelValues("users")); val != 2 {
		t.Errorf("cache hits = %v, want 2", val)
	}
	if val := testutil.ToFloat64(m.FetchCacheMissesTotal.WithLabelValues("users")); val != 1 {
		t.Errorf("cache misses = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.StaleResponsesTotal.WithLabelValues("users")); val != 1 {
		t.Errorf("stale responses = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.BackgroundRefreshTotal.WithLabelValues("users")); val != 1 {
		t.Errorf("background refreshes = %v, want 1", val)
	}
}

func TestRecordCapabilityCache(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheMiss()

	hits := testutil.ToFloat64(m.CapabilityCacheHitsTotal)
	if hits != 2 {
		t.Errorf("cache hits = %v, want 2", hits)
	}
	misses := testutil.ToFloat64(m.CapabilityCacheMissesTotal)
	if misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}
}

func TestRecordDefinitionReload(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDefinitionReload("success")
	m.RecordDefinitionReload("failure")

	success := testutil.ToFloat64(m.DefinitionReloadTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("reload success = %v, want 1", success)
	}
	failure := testutil.ToFloat64(m.DefinitionReloadTotal.WithLabelValues("failure"))
	if failure != 1 {
		t.Errorf("reload failure = %v, want 1", failure)
	}
}

func TestSetGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetDefinitionsLoaded(5)
	m.SetOpenAPIOperationsIndexed(25)
	m.SetActiveWorkspaces(7)

	if val := testutil.ToFloat64(m.DefinitionsLoaded); val != 5 {
		t.Errorf("definitions loaded = %v, want 5", val)
	}
	if val := testutil.ToFloat64(m.OpenAPIOperationsIndexed); val != 25 {
		t.Errorf("operations indexed = %v, want 25", val)
	}
	if val := testutil.ToFloat64(m.ActiveWorkspaces); val != 7 {
		t.Errorf("active workspaces = %v, want 7", val)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/ui/tables/{resource}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ui/tables/forms", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{resource}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Response size should have been recorded.
	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/ui/tables/{resource}/refetch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/ui/tables/forms/refetch", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/tables/{resource}/refetch", "400"))
	if val != 1 {
		t.Errorf("400 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	// Verify bucket configurations are correct.
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(backendDurationBuckets) != 9 {
		t.Errorf("backendDurationBuckets length = %d, want 9", len(backendDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}

	// Verify buckets are sorted ascending.
	for i := 1; i < len(httpDurationBuckets); i++ {
		if httpDurationBuckets[i] <= httpDurationBuckets[i-1] {
			t.Errorf("httpDurationBuckets not sorted at index %d", i)
		}
	}
}
