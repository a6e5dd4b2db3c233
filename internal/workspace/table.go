package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/fetch"
	"github.com/xaviermatuz/formdesk/internal/query"
	"github.com/xaviermatuz/formdesk/internal/selection"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/internal/table"
	"github.com/xaviermatuz/formdesk/model"
)

// Selection operations.
const (
	SelectToggle = "toggle"
	SelectAll    = "all"
	SelectClear  = "clear"
)

// NoRowsSelected is reported by export and bulk delete on an empty
// selection.
const NoRowsSelected = "No rows selected!"

// ExportFilename is the download name of exported selections.
const ExportFilename = "selected-rows.json"

// StateChange is one client interaction with a table. Zero fields are left
// alone. Filters, search and page size return to page 1; Page and PageDelta
// are applied last.
type StateChange struct {
	Page        *int
	PageDelta   int
	PageSize    *int
	Search      *string
	FlushSearch bool
	SortKey     string
	Filters     map[string]string
}

// Table is one resource table of a session: the query state, the fetch
// adapter and the selection, behind a resource-independent interface.
type Table interface {
	Definition() model.ResourceDefinition
	Scope() string
	View(ctx context.Context, rctx *model.RequestContext, layout model.Layout) model.TableView
	Apply(ctx context.Context, rctx *model.RequestContext, change StateChange) error
	Refetch(ctx context.Context) error
	Select(ctx context.Context, op, id string) error
	Selected(ctx context.Context) []map[string]any
	Export(ctx context.Context) ([]byte, error)
	Row(id string) (map[string]any, bool)
	Count(ctx context.Context) (int, error)
	Snapshot() query.State
	Close()
}

// newTableFunc builds the table for one resource kind.
type newTableFunc func(m *Manager, sessionID string, def model.ResourceDefinition, scope string, filters map[string]string) Table

var tableFactories = map[string]newTableFunc{
	model.KindForms:       newResourceTable[model.Forms],
	model.KindSubmissions: newResourceTable[model.Submissions],
	model.KindUsers:       newResourceTable[model.Users],
	model.KindAuditLogs:   newResourceTable[model.AuditLogs],
}

type resourceTable[R model.Resource] struct {
	m         *Manager
	sessionID string
	def       model.ResourceDefinition
	scope     string
	endpoint  string

	ctrl    *query.Controller
	adapter *fetch.Adapter[R]
	sel     *selection.Tracker[R]

	mu      sync.Mutex
	visible map[string]bool // filters the current user may set
}

func newResourceTable[R model.Resource](m *Manager, sessionID string, def model.ResourceDefinition, scope string, filters map[string]string) Table {
	t := &resourceTable[R]{
		m:         m,
		sessionID: sessionID,
		def:       def,
		scope:     scope,
		endpoint:  endpointFor(def, scope),
		sel:       selection.New[R](),
	}

	pageSize := def.PageSize
	if pageSize == 0 {
		pageSize = m.cfg.PageSize
	}
	debounce := def.Debounce
	if debounce == 0 {
		debounce = m.cfg.Debounce
	}
	t.ctrl = query.NewController(
		query.WithPageSize(pageSize),
		query.WithDebounce(debounce),
		query.WithSort(def.DefaultSort),
		query.WithFilters(filters),
	)

	staleTime := def.StaleTime
	if staleTime == 0 {
		staleTime = m.cfg.StaleTime
	}
	t.adapter = fetch.New[R](def.Name, t.load,
		fetch.WithCache(m.cache, staleTime),
		fetch.WithScope(cacheScope(def.Name, sessionID, scope)),
		fetch.WithLogger(m.logger),
		fetch.WithMetrics(m.metrics),
	)
	t.adapter.Bind(t.ctrl)

	refresh := def.RefreshInterval
	if refresh == 0 {
		refresh = m.cfg.RefreshInterval
	}
	t.adapter.Start(m.base, refresh)
	return t
}

// endpointFor returns the list path, substituting the scope into the scoped
// endpoint when one is given.
func endpointFor(def model.ResourceDefinition, scope string) string {
	if scope == "" || def.ScopedEndpoint == "" {
		return def.Endpoint
	}
	return strings.ReplaceAll(def.ScopedEndpoint, "{"+def.ScopeParam+"}", url.PathEscape(scope))
}

// cacheScope keeps cached pages private to a session. The resource name
// leads so a mutation can drop every session's pages of that resource.
func cacheScope(resource, sessionID, scope string) string {
	s := resource + "/" + sessionID
	if scope != "" {
		s += "/" + scope
	}
	return s
}

func (t *resourceTable[R]) Definition() model.ResourceDefinition { return t.def }

func (t *resourceTable[R]) Scope() string { return t.scope }

func (t *resourceTable[R]) Snapshot() query.State { return t.ctrl.Snapshot() }

// load is the fetch loader: filter values are translated into the query
// parameters of the chosen options before the request is built.
func (t *resourceTable[R]) load(ctx context.Context, p query.Params) (model.Page[R], error) {
	api := p
	api.Filters = t.apiFilters(p.Filters)

	var page model.Page[R]
	creds := session.CredentialsFor(t.m.sessions, t.sessionID)
	if err := t.m.api.GetJSON(ctx, creds, t.endpoint, fetch.Values(api), &page); err != nil {
		return model.Page[R]{}, err
	}
	return page, nil
}

func (t *resourceTable[R]) apiFilters(values map[string]string) map[string]string {
	t.mu.Lock()
	visible := t.visible
	t.mu.Unlock()

	out := make(map[string]string)
	for _, f := range t.def.Filters {
		value := f.Default
		if v, ok := values[f.Name]; ok && (visible == nil || visible[f.Name]) {
			value = v
		}
		opt, ok := f.Option(value)
		if !ok {
			opt, _ = f.Option(f.Default)
		}
		for k, v := range opt.Params {
			out[k] = v
		}
	}
	return out
}

// remember records which filters rctx may set.
func (t *resourceTable[R]) remember(rctx *model.RequestContext) []model.FilterDefinition {
	filters := t.m.tables.Filters(rctx, t.def)
	visible := make(map[string]bool, len(filters))
	for _, f := range filters {
		visible[f.Name] = true
	}
	t.mu.Lock()
	t.visible = visible
	t.mu.Unlock()
	return filters
}

func (t *resourceTable[R]) View(ctx context.Context, rctx *model.RequestContext, layout model.Layout) model.TableView {
	t.remember(rctx)
	st := t.adapter.Sync(ctx)
	items := st.Items()
	t.sel.Retain(items)

	qs := t.ctrl.Snapshot()
	return table.Build(table.Input[R]{
		Resource:     t.def.Name,
		Title:        t.def.Title,
		Layout:       layout,
		Columns:      t.m.tables.Columns(rctx, t.def),
		Items:        items,
		State:        qs,
		Loading:      st.Loading,
		Err:          st.Error,
		Selection:    t.sel,
		EmptyMessage: t.def.EmptyMessage,
		Filters:      t.m.tables.FilterDescriptors(rctx, t.def, qs.Filters),
		BulkActions:  t.m.actions.BulkActions(rctx, t.def),
		RowActions: func(row model.Row[R]) []model.ActionDescriptor {
			return t.m.actions.RowActions(rctx, t.def, row.Map())
		},
	})
}

func (t *resourceTable[R]) Apply(ctx context.Context, rctx *model.RequestContext, change StateChange) error {
	filters := t.remember(rctx)

	for name, value := range change.Filters {
		f, ok := findFilter(filters, name)
		if !ok {
			return model.NewBadRequestError(fmt.Sprintf("unknown filter %q", name))
		}
		if _, ok := f.Option(value); !ok {
			return model.NewBadRequestError(fmt.Sprintf("invalid value %q for filter %q", value, name))
		}
	}
	for name, value := range change.Filters {
		t.ctrl.SetFilter(name, value)
		f, _ := findFilter(filters, name)
		if f.Persist {
			if err := session.SaveFilter(ctx, t.m.sessions, t.sessionID, t.def.Name, name, value); err != nil {
				return fmt.Errorf("workspace: saving filter: %w", err)
			}
		}
	}

	if change.Search != nil {
		t.ctrl.SetSearch(*change.Search)
	}
	if change.FlushSearch {
		t.ctrl.FlushSearch()
	}
	if change.PageSize != nil {
		if err := t.ctrl.SetPageSize(*change.PageSize); err != nil {
			return model.NewBadRequestError(err.Error())
		}
	}
	if change.SortKey != "" {
		col, ok := table.FindColumn(t.m.tables.Columns(rctx, t.def), change.SortKey)
		if !ok {
			return model.NewBadRequestError(fmt.Sprintf("unknown column %q", change.SortKey))
		}
		t.ctrl.SetSort(table.ToggleSort(t.ctrl.Snapshot().Sort, col))
	}
	if change.Page != nil || change.PageDelta != 0 {
		t.syncCount(ctx)
	}
	if change.Page != nil {
		t.ctrl.SetPage(query.To(*change.Page))
	}
	if change.PageDelta != 0 {
		delta := change.PageDelta
		t.ctrl.SetPage(query.By(func(p int) int { return p + delta }))
	}
	return nil
}

// syncCount loads the current query when its total is not known yet, so a
// page jump on a fresh or re-filtered table is not clamped to page 1.
func (t *resourceTable[R]) syncCount(ctx context.Context) {
	st := t.adapter.State()
	if st.Data != nil && st.Params.Key() == t.ctrl.Params().Key() {
		return
	}
	if st = t.adapter.Sync(ctx); st.Error != nil {
		t.m.logger.Debug("workspace: loading total before page change failed",
			zap.String("resource", t.def.Name), zap.Error(st.Error))
	}
}

func findFilter(filters []model.FilterDefinition, name string) (model.FilterDefinition, bool) {
	for _, f := range filters {
		if f.Name == name {
			return f, true
		}
	}
	return model.FilterDefinition{}, false
}

func (t *resourceTable[R]) Refetch(ctx context.Context) error {
	_, err := t.adapter.Refetch(ctx)
	if err != nil && !errors.Is(err, fetch.ErrStale) {
		return err
	}
	return nil
}

func (t *resourceTable[R]) items(ctx context.Context) []model.Row[R] {
	if items := t.adapter.State().Items(); items != nil {
		return items
	}
	return t.adapter.Sync(ctx).Items()
}

func (t *resourceTable[R]) Select(ctx context.Context, op, id string) error {
	items := t.items(ctx)
	switch op {
	case SelectToggle:
		for _, row := range items {
			if key, err := t.sel.Key(row); err == nil && key == id {
				t.sel.ToggleKey(key)
				return nil
			}
		}
		return model.NewNotFoundError(fmt.Sprintf("row %q is not on the current page", id))
	case SelectAll:
		return t.sel.SelectAll(items)
	case SelectClear:
		t.sel.ClearAll()
		return nil
	default:
		return model.NewBadRequestError(fmt.Sprintf("unknown selection operation %q", op))
	}
}

func (t *resourceTable[R]) Selected(ctx context.Context) []map[string]any {
	picked := t.sel.Pick(t.items(ctx))
	out := make([]map[string]any, 0, len(picked))
	for _, row := range picked {
		out = append(out, row.Map())
	}
	return out
}

// Export returns the selected rows as indented JSON.
func (t *resourceTable[R]) Export(ctx context.Context) ([]byte, error) {
	rows := t.Selected(ctx)
	if len(rows) == 0 {
		return nil, model.NewBadRequestError(NoRowsSelected)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("workspace: encoding export: %w", err)
	}
	return data, nil
}

func (t *resourceTable[R]) Row(id string) (map[string]any, bool) {
	for _, row := range t.adapter.State().Items() {
		if model.FormatValue(row["id"]) == id {
			return row.Map(), true
		}
	}
	return nil, false
}

func (t *resourceTable[R]) Count(ctx context.Context) (int, error) {
	st := t.adapter.Sync(ctx)
	if st.Data == nil {
		if st.Error != nil {
			return 0, st.Error
		}
		return 0, nil
	}
	return st.Data.Count, nil
}

func (t *resourceTable[R]) Close() {
	t.adapter.Close()
	t.ctrl.Close()
}
