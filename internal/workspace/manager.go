// Package workspace composes, per browser or terminal session, the query
// controller, fetch adapter and selection of every resource table the
// session opens, and carries out the row mutations (create, edit, delete,
// restore, bulk delete) against the forms API.
package workspace

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/internal/fetch"
	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/openapi"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

// API is the part of the forms API client the workspace uses.
type API interface {
	GetJSON(ctx context.Context, store apiclient.CredentialStore, path string, query url.Values, out any) error
	Patch(ctx context.Context, store apiclient.CredentialStore, path string, body, out any) error
	Post(ctx context.Context, store apiclient.CredentialStore, path string, body, out any) error
	Delete(ctx context.Context, store apiclient.CredentialStore, path string) error
}

// Dependencies holds everything a Manager needs.
type Dependencies struct {
	API      API
	Sessions session.Store
	Tables   *metadata.TableProvider
	Actions  *metadata.ActionProvider
	Forms    *metadata.FormProvider
	// Index, when set, checks request bodies against the API document before
	// they are sent.
	Index   *openapi.Index
	Cache   fetch.Cache
	Config  config.TableConfig
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// workspace holds the open tables of one session.
type workspace struct {
	mu       sync.Mutex
	tables   map[string]Table // name|scope → table
	lastUsed time.Time
}

// Manager owns every session's workspace. It is safe for concurrent use.
type Manager struct {
	api      API
	sessions session.Store
	tables   *metadata.TableProvider
	actions  *metadata.ActionProvider
	forms    *metadata.FormProvider
	index    *openapi.Index
	cache    fetch.Cache
	cfg      config.TableConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewManager creates a Manager. Without a cache it uses a MemoryCache.
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := deps.Cache
	if cache == nil {
		cache = fetch.NewMemoryCache()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:        deps.API,
		sessions:   deps.Sessions,
		tables:     deps.Tables,
		actions:    deps.Actions,
		forms:      deps.Forms,
		index:      deps.Index,
		cache:      cache,
		cfg:        deps.Config,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        time.Now,
		base:       base,
		cancel:     cancel,
		workspaces: make(map[string]*workspace),
	}
}

func tableKey(resource, scope string) string {
	return resource + "|" + scope
}

func (m *Manager) workspace(sessionID string) *workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[sessionID]
	if !ok {
		ws = &workspace{tables: make(map[string]Table)}
		m.workspaces[sessionID] = ws
		m.metrics.SetActiveWorkspaces(len(m.workspaces))
	}
	ws.lastUsed = m.now()
	return ws
}

// Table returns the session's table for resource, opening it on first use.
// scope selects the scoped endpoint (e.g. one form's submissions).
func (m *Manager) Table(ctx context.Context, rctx *model.RequestContext, resource, scope string) (Table, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return nil, err
	}
	if scope != "" && def.ScopedEndpoint == "" {
		return nil, model.NewBadRequestError("resource " + resource + " cannot be scoped")
	}
	newTable, ok := tableFactories[def.Kind]
	if !ok {
		return nil, model.NewNotFoundError("no table for kind " + def.Kind)
	}

	ws := m.workspace(rctx.SessionID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	key := tableKey(resource, scope)
	if t, ok := ws.tables[key]; ok {
		return t, nil
	}

	t := newTable(m, rctx.SessionID, def, scope, m.initialFilters(ctx, rctx, def))
	ws.tables[key] = t
	observability.RequestLogger(ctx, m.logger).Debug("workspace: table opened",
		zap.String("resource", resource), zap.String("scope", scope))
	return t, nil
}

// initialFilters starts from the defaults and applies the session's
// persisted values.
func (m *Manager) initialFilters(ctx context.Context, rctx *model.RequestContext, def model.ResourceDefinition) map[string]string {
	saved, err := session.LoadFilters(ctx, m.sessions, rctx.SessionID)
	if err != nil {
		m.logger.Warn("workspace: loading saved filters", zap.Error(err))
	}

	filters := make(map[string]string)
	for _, f := range m.tables.Filters(rctx, def) {
		filters[f.Name] = f.Default
		if !f.Persist {
			continue
		}
		if v, ok := saved[def.Name][f.Name]; ok {
			if _, known := f.Option(v); known {
				filters[f.Name] = v
			}
		}
	}
	return filters
}

// openTables returns the session's open tables of resource.
func (m *Manager) openTables(sessionID, resource string) []Table {
	m.mu.Lock()
	ws, ok := m.workspaces[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out []Table
	for _, t := range ws.tables {
		if t.Definition().Name == resource {
			out = append(out, t)
		}
	}
	return out
}

// BadgeCount reports the number of rows of resource under its default
// filters.
func (m *Manager) BadgeCount(ctx context.Context, rctx *model.RequestContext, resource string) (int, error) {
	t, err := m.Table(ctx, rctx, resource, "")
	if err != nil {
		return 0, err
	}
	return t.Count(ctx)
}

// Drop closes and forgets the session's workspace.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	ws, ok := m.workspaces[sessionID]
	delete(m.workspaces, sessionID)
	m.metrics.SetActiveWorkspaces(len(m.workspaces))
	m.mu.Unlock()
	if ok {
		ws.close()
	}
}

// Len returns the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// EvictIdle closes workspaces unused for longer than the idle timeout and
// returns how many were closed.
func (m *Manager) EvictIdle() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	var idle []*workspace
	m.mu.Lock()
	for id, ws := range m.workspaces {
		if ws.lastUsed.Before(cutoff) {
			idle = append(idle, ws)
			delete(m.workspaces, id)
		}
	}
	m.metrics.SetActiveWorkspaces(len(m.workspaces))
	m.mu.Unlock()

	for _, ws := range idle {
		ws.close()
	}
	if len(idle) > 0 {
		m.logger.Info("workspace: evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle workspaces until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.base.Done():
			return
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// Close closes every workspace and stops background refreshes.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]*workspace)
	m.metrics.SetActiveWorkspaces(0)
	m.mu.Unlock()
	for _, ws := range all {
		ws.close()
	}
}

func (ws *workspace) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for key, t := range ws.tables {
		t.Close()
		delete(ws.tables, key)
	}
}
