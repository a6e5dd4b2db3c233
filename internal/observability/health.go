package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks holds the dependency checkers for the readiness endpoint.
// DefinitionsLoaded is always reported; each entry in Dependencies (session
// store, fetch cache, forms API) is reported under its key.
type ReadinessChecks struct {
	DefinitionsLoaded func() bool
	Dependencies      map[string]HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. The
// dependency checks run concurrently, each bounded by checkTimeout, and any
// failing check makes the BFF not ready.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(checks.Dependencies))
		for name, checker := range checks.Dependencies {
			if checker != nil {
				names = append(names, name)
			}
		}
		found := make([]CheckResult, len(names))
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				found[i] = runCheck(r.Context(), checks.Dependencies[name])
				return nil
			})
		}
		_ = g.Wait()

		results := make(map[string]CheckResult, len(names)+1)
		for i, name := range names {
			results[name] = found[i]
		}
		results["definitions"] = CheckResult{Status: "ok"}
		if checks.DefinitionsLoaded == nil || !checks.DefinitionsLoaded() {
			results["definitions"] = CheckResult{Status: "error", Error: "no definitions loaded"}
		}

		resp := ReadinessResponse{Status: "ready", Checks: results}
		code := http.StatusOK
		for _, result := range results {
			if result.Status != "ok" {
				resp.Status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
		writeHealthJSON(w, code, resp)
	}
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	result := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
	}
	return result
}

func writeHealthJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
