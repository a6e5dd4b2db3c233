package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

// bulkConcurrency bounds the concurrent remote calls of a bulk delete.
const bulkConcurrency = 4

// stateFilter is the filter a restore switches back to active.
const stateFilter = "state"

// rowPath is the forms API path of one row: the list endpoint plus the id.
func rowPath(def model.ResourceDefinition, id string) string {
	return strings.TrimRight(def.Endpoint, "/") + "/" + url.PathEscape(id) + "/"
}

// lookupRow finds id among the session's loaded rows of resource. Rows that
// are not loaded are represented by their id alone.
func (m *Manager) lookupRow(sessionID, resource, id string) map[string]any {
	if row, ok := m.loadedRow(sessionID, resource, id); ok {
		return row
	}
	return map[string]any{"id": id}
}

func (m *Manager) loadedRow(sessionID, resource, id string) (map[string]any, bool) {
	for _, t := range m.openTables(sessionID, resource) {
		if row, ok := t.Row(id); ok {
			return row, true
		}
	}
	return nil, false
}

// Delete removes one row: purged when the user may purge it, flagged with
// is_deleted otherwise.
func (m *Manager) Delete(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return model.MutationResponse{}, err
	}
	row := m.lookupRow(rctx.SessionID, resource, id)
	if _, ok := m.actions.Find(rctx, def, model.ActionDelete, row); !ok {
		return model.MutationResponse{}, model.NewForbiddenError("You are not allowed to delete this item.")
	}

	strategy := m.actions.DeleteStrategy(rctx, def, row)
	if err := m.deleteRow(ctx, rctx, def, id, strategy); err != nil {
		return model.MutationResponse{}, withPrefix(err, metadata.DeleteFailedPrefix)
	}

	observability.RequestLogger(ctx, m.logger).Info("workspace: row deleted",
		zap.String("resource", resource),
		zap.String("id", id),
		zap.Bool("purge", strategy.Purge),
	)
	m.afterMutation(ctx, rctx.SessionID, resource)
	return model.MutationResponse{Success: true, Message: strategy.SuccessMessage}, nil
}

func (m *Manager) deleteRow(ctx context.Context, rctx *model.RequestContext, def model.ResourceDefinition, id string, s metadata.DeleteStrategy) error {
	creds := session.CredentialsFor(m.sessions, rctx.SessionID)
	path := rowPath(def, id)
	if s.Method == http.MethodDelete {
		return m.api.Delete(ctx, creds, path)
	}
	if err := m.checkBody(http.MethodPatch, path, s.Body); err != nil {
		return err
	}
	return m.api.Patch(ctx, creds, path, s.Body, nil)
}

// Restore clears the is_deleted flag of one row and switches the session's
// tables of that resource back to active rows.
func (m *Manager) Restore(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return model.MutationResponse{}, err
	}
	row := m.lookupRow(rctx.SessionID, resource, id)
	if _, loaded := row["is_deleted"]; !loaded {
		row["is_deleted"] = true
	}
	if _, ok := m.actions.Find(rctx, def, model.ActionRestore, row); !ok {
		return model.MutationResponse{}, model.NewForbiddenError("You are not allowed to restore this item.")
	}

	path := rowPath(def, id)
	body := metadata.RestoreBody()
	if err := m.checkBody(http.MethodPatch, path, body); err != nil {
		return model.MutationResponse{}, err
	}
	if err := m.api.Patch(ctx, session.CredentialsFor(m.sessions, rctx.SessionID), path, body, nil); err != nil {
		observability.RequestLogger(ctx, m.logger).Warn("workspace: restore failed",
			zap.String("resource", resource), zap.String("id", id), zap.Error(err))
		return model.MutationResponse{}, replaceMessage(err, metadata.RestoreFailed)
	}

	for _, t := range m.openTables(rctx.SessionID, resource) {
		if _, ok := findFilter(m.tables.Filters(rctx, def), stateFilter); !ok {
			continue
		}
		if err := t.Apply(ctx, rctx, StateChange{Filters: map[string]string{stateFilter: "active"}}); err != nil {
			m.logger.Warn("workspace: resetting state filter", zap.Error(err))
		}
	}

	observability.RequestLogger(ctx, m.logger).Info("workspace: row restored",
		zap.String("resource", resource), zap.String("id", id))
	m.afterMutation(ctx, rctx.SessionID, resource)
	return model.MutationResponse{Success: true, Message: metadata.RestoreSuccess}, nil
}

// BulkDelete deletes every selected row of the table, each with its own
// strategy, and clears the selection.
func (m *Manager) BulkDelete(ctx context.Context, rctx *model.RequestContext, resource, scope string) (model.MutationResponse, error) {
	t, err := m.Table(ctx, rctx, resource, scope)
	if err != nil {
		return model.MutationResponse{}, err
	}
	def := t.Definition()
	if _, ok := m.actions.Find(rctx, def, model.ActionBulkDelete, nil); !ok {
		return model.MutationResponse{}, model.NewForbiddenError("You are not allowed to delete these items.")
	}

	rows := t.Selected(ctx)
	if len(rows) == 0 {
		return model.MutationResponse{}, model.NewBadRequestError(NoRowsSelected)
	}

	// Rows are independent: one failure must not cancel the others.
	var (
		deleted atomic.Int64
		mu      sync.Mutex
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(bulkConcurrency)
	for _, row := range rows {
		id := model.FormatValue(row["id"])
		if id == "" {
			continue
		}
		g.Go(func() error {
			err := m.deleteSelected(ctx, rctx, def, id, row)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	werr := errors.Join(errs...)

	_ = t.Select(ctx, SelectClear, "")
	m.afterMutation(ctx, rctx.SessionID, resource)

	n := int(deleted.Load())
	observability.RequestLogger(ctx, m.logger).Info("workspace: bulk delete",
		zap.String("resource", resource), zap.Int("selected", len(rows)), zap.Int("deleted", n))
	if werr != nil {
		if n == 0 {
			return model.MutationResponse{}, withPrefix(werr, metadata.DeleteFailedPrefix)
		}
		return model.MutationResponse{
			Success: false,
			Message: fmt.Sprintf("Deleted %d of %d items. %s%s", n, len(rows), metadata.DeleteFailedPrefix, model.MessageOf(werr)),
		}, nil
	}
	return model.MutationResponse{Success: true, Message: fmt.Sprintf("Deleted %d items.", n)}, nil
}

func (m *Manager) deleteSelected(ctx context.Context, rctx *model.RequestContext, def model.ResourceDefinition, id string, row map[string]any) error {
	if _, ok := m.actions.Find(rctx, def, model.ActionDelete, row); !ok {
		return model.NewForbiddenError(fmt.Sprintf("You are not allowed to delete item %s.", id))
	}
	return m.deleteRow(ctx, rctx, def, id, m.actions.DeleteStrategy(rctx, def, row))
}

// Export returns the selected rows of the table as JSON.
func (m *Manager) Export(ctx context.Context, rctx *model.RequestContext, resource, scope string) ([]byte, error) {
	t, err := m.Table(ctx, rctx, resource, scope)
	if err != nil {
		return nil, err
	}
	if _, ok := m.actions.Find(rctx, t.Definition(), model.ActionExport, nil); !ok {
		return nil, model.NewForbiddenError("You are not allowed to export these items.")
	}
	return t.Export(ctx)
}

// afterMutation drops every session's cached pages of resource and reloads
// the tables this session has open.
func (m *Manager) afterMutation(ctx context.Context, sessionID, resource string) {
	if err := m.cache.DeletePrefix(ctx, resource+"/"); err != nil {
		m.logger.Warn("workspace: invalidating cache", zap.String("resource", resource), zap.Error(err))
	}
	for _, t := range m.openTables(sessionID, resource) {
		if err := t.Refetch(ctx); err != nil {
			m.logger.Warn("workspace: refetch after mutation", zap.String("resource", resource), zap.Error(err))
		}
	}
}

// checkBody validates a request body against the API document when one is
// loaded.
func (m *Manager) checkBody(method, path string, body map[string]any) error {
	if m.index == nil {
		return nil
	}
	verrs := m.index.ValidateRequest(method, path, body)
	if len(verrs) == 0 {
		return nil
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, v := range verrs {
		details = append(details, model.FieldError{Field: v.Field, Code: "REQUIRED", Message: v.Message})
	}
	return model.NewValidationError(verrs[0].Error(), details)
}

// withPrefix keeps the error's code and prefixes its message.
func withPrefix(err error, prefix string) error {
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) {
		return err
	}
	out := *env
	out.Message = prefix + env.Message
	return &out
}

// replaceMessage keeps the error's code and replaces its message.
func replaceMessage(err error, msg string) error {
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) {
		return err
	}
	out := *env
	out.Message = msg
	return &out
}
