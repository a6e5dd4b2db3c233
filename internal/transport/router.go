package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config     *config.Config
	Sessions   session.Store
	Auth       Authenticator
	Menu       *metadata.MenuProvider
	Workspaces Workspaces
	Metrics    *observability.Metrics
	Readiness  observability.ReadinessChecks
	Logger     *zap.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and login bypass the
// session middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	r.Use(deps.Metrics.MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "route not found")
	})

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if cfg.Observability.Metrics.Enabled {
		r.Handle(cfg.Observability.Metrics.Path, observability.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Post("/ui/session", handleLogin(deps.Auth, deps.Sessions, cfg.Session.CookieName, cfg.Session.TTL, logger))

		r.Group(func(r chi.Router) {
			r.Use(SessionAuthenticator(deps.Sessions, cfg.Session.CookieName))

			r.Get("/ui/session", handleMe())
			r.Delete("/ui/session", handleLogout(deps.Sessions, deps.Workspaces, cfg.Session.CookieName, logger))
			r.Get("/ui/navigation", handleNavigation(deps.Menu))

			r.Route("/ui/tables/{resource}", func(r chi.Router) {
				r.Get("/", handleGetTable(deps.Workspaces))
				r.Get("/render", handleRenderTable(deps.Workspaces))
				r.Patch("/state", handlePatchTableState(deps.Workspaces))
				r.Post("/refetch", handleRefetchTable(deps.Workspaces))
				r.Post("/selection", handleSelection(deps.Workspaces))
				r.Get("/export", handleExport(deps.Workspaces))
			})

			r.Route("/ui/resources/{resource}", func(r chi.Router) {
				r.Post("/", handleCreate(deps.Workspaces))
				r.Get("/form", handleGetForm(deps.Workspaces))
				r.Post("/bulk-delete", handleBulkDelete(deps.Workspaces))
				r.Patch("/{id}", handleUpdate(deps.Workspaces))
				r.Get("/{id}/form", handleGetForm(deps.Workspaces))
				r.Delete("/{id}", handleRowMutation(deps.Workspaces.Delete))
				r.Post("/{id}/restore", handleRowMutation(deps.Workspaces.Restore))
			})
		})
	})

	return r
}
