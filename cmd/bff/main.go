// Package main is the entry point for the formdesk BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
	"github.com/xaviermatuz/formdesk/internal/capability"
	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/internal/definition"
	"github.com/xaviermatuz/formdesk/internal/fetch"
	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/openapi"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/internal/transport"
	"github.com/xaviermatuz/formdesk/internal/workspace"
	"github.com/xaviermatuz/formdesk/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

// sessionPurgeInterval is how often expired SQLite sessions are removed.
const sessionPurgeInterval = 10 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "formdesk-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Open the session store and the shared redis client.
	var rdb *redis.Client
	if cfg.Session.Driver == config.DriverRedis || cfg.Table.Cache.Driver == config.DriverRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), DB: cfg.Session.DB})
		defer func() { _ = rdb.Close() }()
	}

	sessions, err := buildSessionStore(cfg.Session, rdb)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	defer func() { _ = sessions.Close() }()
	logger.Info("session store ready", zap.String("driver", cfg.Session.Driver))

	// Step 5: Build the fetch cache.
	var cache fetch.Cache = fetch.NewMemoryCache()
	if cfg.Table.Cache.Driver == config.DriverRedis {
		cache = fetch.NewRedisCache(rdb)
	}

	// Step 6: Build the forms API client.
	api, err := apiclient.New(cfg.API,
		apiclient.WithLogger(logger.Named("apiclient")),
		apiclient.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error("api client initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Load the forms API's OpenAPI document (optional).
	var index *openapi.Index
	if cfg.Specs.File != "" {
		index = openapi.NewIndex()
		if err := index.Load(cfg.Specs.File); err != nil {
			logger.Error("OpenAPI index load failed", zap.Error(err))
			return 1
		}
		metrics.SetOpenAPIOperationsIndexed(float64(index.Count()))
	}

	// Step 8: Load definitions, validate, build registry.
	files, err := loadDefinitions(cfg.Definitions, index, logger)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(files)
	metrics.SetDefinitionsLoaded(float64(registry.Count()))

	// Step 9: Initialize capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy initialization failed", zap.Error(err))
		return 1
	}
	resolver := capability.NewResolver(evaluator, cfg.Capability.CacheTTL, metrics)

	// Step 10: Build providers and the workspace manager.
	manager := workspace.NewManager(workspace.Dependencies{
		API:      api,
		Sessions: sessions,
		Tables:   metadata.NewTableProvider(registry, resolver),
		Actions:  metadata.NewActionProvider(resolver),
		Forms:    metadata.NewFormProvider(resolver),
		Index:    index,
		Cache:    cache,
		Config:   cfg.Table,
		Logger:   logger.Named("workspace"),
		Metrics:  metrics,
	})
	defer manager.Close()

	menu := metadata.NewMenuProvider(registry, resolver, manager, logger.Named("metadata"))

	// Step 11: Build HTTP router.
	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		Dependencies: map[string]observability.HealthChecker{
			"session_store": sessions,
			"forms_api":     api,
		},
	}
	if hc, ok := cache.(observability.HealthChecker); ok {
		readiness.Dependencies["fetch_cache"] = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:     cfg,
		Sessions:   sessions,
		Auth:       api,
		Menu:       menu,
		Workspaces: manager,
		Metrics:    metrics,
		Readiness:  readiness,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 12: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go manager.Run(bgCtx)
	go reloadOnHangup(bgCtx, reloader{
		cfg:       cfg.Definitions,
		index:     index,
		registry:  registry,
		evaluator: evaluator,
		resolver:  resolver,
		metrics:   metrics,
		logger:    logger,
	})
	if purger, ok := sessions.(*session.SQLiteStore); ok {
		go purgeSessions(bgCtx, purger, logger)
	}

	// Step 13: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("resources", registry.Count()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks and stop every table's refresh loop.
	bgCancel()
	manager.Close()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore opens the session store named by cfg.Driver.
func buildSessionStore(cfg config.SessionConfig, rdb *redis.Client) (session.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return session.NewMemoryStore(cfg.TTL), nil
	case config.DriverRedis:
		return session.NewRedisStore(rdb, cfg.TTL), nil
	case config.DriverSQLite:
		return session.OpenSQLite(cfg.Path, cfg.TTL)
	default:
		return nil, fmt.Errorf("unsupported session driver: %q", cfg.Driver)
	}
}

// loadDefinitions reads and validates every definition file.
func loadDefinitions(cfg config.DefinitionsConfig, index *openapi.Index, logger *zap.Logger) ([]model.DefinitionFile, error) {
	files, err := definition.NewLoader().LoadAll(cfg.Directories)
	if err != nil {
		return nil, err
	}
	if verrs := definition.NewValidator().Validate(files, index); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		return nil, fmt.Errorf("definition validation failed with %d errors", len(verrs))
	}
	return files, nil
}

// reloader swaps in fresh definitions and policy on SIGHUP.
type reloader struct {
	cfg       config.DefinitionsConfig
	index     *openapi.Index
	registry  *definition.Registry
	evaluator *capability.StaticPolicyEvaluator
	resolver  *capability.Resolver
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func (r reloader) reload() {
	files, err := loadDefinitions(r.cfg, r.index, r.logger)
	if err != nil {
		r.metrics.RecordDefinitionReload("failure")
		r.logger.Error("definition reload failed, keeping current definitions", zap.Error(err))
		return
	}
	if err := r.evaluator.Sync(); err != nil {
		r.metrics.RecordDefinitionReload("failure")
		r.logger.Error("policy reload failed, keeping current policy", zap.Error(err))
		return
	}
	r.registry.Replace(files)
	r.resolver.Invalidate()
	r.metrics.RecordDefinitionReload("success")
	r.metrics.SetDefinitionsLoaded(float64(r.registry.Count()))
	r.logger.Info("definitions reloaded",
		zap.Int("resources", r.registry.Count()),
		zap.String("checksum", r.registry.Checksum()),
	)
}

func reloadOnHangup(ctx context.Context, r reloader) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			r.reload()
		}
	}
}

// purgeSessions periodically removes expired SQLite sessions.
func purgeSessions(ctx context.Context, store *session.SQLiteStore, logger *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				logger.Error("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
