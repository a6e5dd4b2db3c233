package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

// idempotencyTTL is how long a create result answers replays of its key.
const idempotencyTTL = 24 * time.Hour

// Form resolves the create form of resource when id is empty, otherwise the
// edit or view form of the row.
func (m *Manager) Form(ctx context.Context, rctx *model.RequestContext, resource, id, mode string) (model.FormDescriptor, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	if m.forms == nil {
		return model.FormDescriptor{}, model.NewNotFoundError(fmt.Sprintf("%s has no form", def.Title))
	}

	if id == "" {
		if _, ok := m.actions.Find(rctx, def, model.ActionCreate, nil); !ok {
			return model.FormDescriptor{}, model.NewForbiddenError("You are not allowed to create items here.")
		}
		return m.forms.Form(rctx, def, model.FormCreate, nil)
	}

	if mode == "" {
		mode = model.FormEdit
	}
	kind := model.ActionEdit
	switch mode {
	case model.FormEdit:
	case model.FormView:
		kind = model.ActionView
	default:
		return model.FormDescriptor{}, model.NewBadRequestError(fmt.Sprintf("unknown form mode %q", mode))
	}

	row, err := m.fetchRow(ctx, rctx, def, id)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	if _, ok := m.actions.Find(rctx, def, kind, row); !ok {
		return model.FormDescriptor{}, model.NewForbiddenError("You are not allowed to " + kind + " this item.")
	}
	return m.forms.Form(rctx, def, mode, row)
}

// fetchRow returns the loaded row, or reads it from the API.
func (m *Manager) fetchRow(ctx context.Context, rctx *model.RequestContext, def model.ResourceDefinition, id string) (map[string]any, error) {
	if row, ok := m.loadedRow(rctx.SessionID, def.Name, id); ok {
		return row, nil
	}
	var row map[string]any
	if err := m.api.GetJSON(ctx, session.CredentialsFor(m.sessions, rctx.SessionID), rowPath(def, id), nil, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, model.NewNotFoundError("item " + id + " not found")
	}
	return row, nil
}

// Update submits the edit form of one row and sends its follow-up calls.
func (m *Manager) Update(ctx context.Context, rctx *model.RequestContext, resource, id string, input map[string]any) (model.MutationResponse, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return model.MutationResponse{}, err
	}
	if m.forms == nil || def.Form == nil {
		return model.MutationResponse{}, model.NewNotFoundError(fmt.Sprintf("%s has no form", def.Title))
	}
	row, err := m.fetchRow(ctx, rctx, def, id)
	if err != nil {
		return model.MutationResponse{}, withPrefix(err, orDefault(def.Form.UpdateFailed, metadata.UpdateFailed))
	}
	if _, ok := m.actions.Find(rctx, def, model.ActionEdit, row); !ok {
		return model.MutationResponse{}, model.NewForbiddenError("You are not allowed to edit this item.")
	}

	sub, err := m.forms.Map(rctx, def, model.FormEdit, row, input)
	if err != nil {
		return model.MutationResponse{}, err
	}
	if len(sub.Body) == 0 && len(sub.Followups) == 0 {
		return model.MutationResponse{}, model.NewBadRequestError(metadata.NothingChanged)
	}

	failed := orDefault(def.Form.UpdateFailed, metadata.UpdateFailed)
	creds := session.CredentialsFor(m.sessions, rctx.SessionID)
	path := rowPath(def, id)
	if len(sub.Body) > 0 {
		if err := m.checkBody(http.MethodPatch, path, sub.Body); err != nil {
			return model.MutationResponse{}, err
		}
		if err := m.api.Patch(ctx, creds, path, sub.Body, nil); err != nil {
			observability.RequestLogger(ctx, m.logger).Warn("workspace: update failed",
				zap.String("resource", resource), zap.String("id", id), zap.Error(err))
			return model.MutationResponse{}, withPrefix(err, failed)
		}
	}
	for _, fu := range sub.Followups {
		fpath := path + fu.Path
		if err := m.checkBody(http.MethodPost, fpath, fu.Body); err != nil {
			m.afterMutation(ctx, rctx.SessionID, resource)
			return model.MutationResponse{}, err
		}
		if err := m.api.Post(ctx, creds, fpath, fu.Body, nil); err != nil {
			observability.RequestLogger(ctx, m.logger).Warn("workspace: follow-up failed",
				zap.String("resource", resource), zap.String("path", fpath), zap.Error(err))
			// The main update may already have landed.
			m.afterMutation(ctx, rctx.SessionID, resource)
			return model.MutationResponse{}, withPrefix(err, failed)
		}
	}

	observability.RequestLogger(ctx, m.logger).Info("workspace: row updated",
		zap.String("resource", resource), zap.String("id", id), zap.Int("followups", len(sub.Followups)))
	m.afterMutation(ctx, rctx.SessionID, resource)
	return model.MutationResponse{Success: true, Message: orDefault(def.Form.UpdatedMessage, metadata.UpdatedMessage)}, nil
}

// idempotencyEntry is what a create stores under its idempotency key.
type idempotencyEntry struct {
	InputHash string                 `json:"input_hash"`
	Result    model.MutationResponse `json:"result"`
}

// Create submits the create form of resource. A non-empty idemKey makes
// replays with the same input return the first result; the same key with a
// different input is a conflict.
func (m *Manager) Create(ctx context.Context, rctx *model.RequestContext, resource string, input map[string]any, idemKey string) (model.MutationResponse, error) {
	def, err := m.tables.Resource(rctx, resource)
	if err != nil {
		return model.MutationResponse{}, err
	}
	if m.forms == nil || def.Form == nil {
		return model.MutationResponse{}, model.NewNotFoundError(fmt.Sprintf("%s has no form", def.Title))
	}
	if _, ok := m.actions.Find(rctx, def, model.ActionCreate, nil); !ok {
		return model.MutationResponse{}, model.NewForbiddenError("You are not allowed to create items here.")
	}

	var key, hash string
	if idemKey != "" {
		key = "idem|" + rctx.SessionID + "|" + resource + "|" + idemKey
		hash = inputHash(input)
		if prev, found, err := m.replay(ctx, key, hash); err != nil || found {
			return prev, err
		}
	}

	sub, err := m.forms.Map(rctx, def, model.FormCreate, nil, input)
	if err != nil {
		return model.MutationResponse{}, err
	}
	if err := m.checkBody(http.MethodPost, def.Endpoint, sub.Body); err != nil {
		return model.MutationResponse{}, err
	}
	if err := m.api.Post(ctx, session.CredentialsFor(m.sessions, rctx.SessionID), def.Endpoint, sub.Body, nil); err != nil {
		observability.RequestLogger(ctx, m.logger).Warn("workspace: create failed",
			zap.String("resource", resource), zap.Error(err))
		return model.MutationResponse{}, withPrefix(err, orDefault(def.Form.CreateFailed, metadata.CreateFailed))
	}

	resp := model.MutationResponse{Success: true, Message: orDefault(def.Form.CreatedMessage, metadata.CreatedMessage)}
	if key != "" {
		data, _ := json.Marshal(idempotencyEntry{InputHash: hash, Result: resp})
		if err := m.cache.Set(ctx, key, data, idempotencyTTL); err != nil {
			m.logger.Warn("workspace: storing idempotency key", zap.Error(err))
		}
	}

	observability.RequestLogger(ctx, m.logger).Info("workspace: row created", zap.String("resource", resource))
	m.afterMutation(ctx, rctx.SessionID, resource)
	return resp, nil
}

// replay returns the stored result of key when its input hash matches.
func (m *Manager) replay(ctx context.Context, key, hash string) (model.MutationResponse, bool, error) {
	data, found, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn("workspace: reading idempotency key", zap.Error(err))
		return model.MutationResponse{}, false, nil
	}
	if !found {
		return model.MutationResponse{}, false, nil
	}
	var entry idempotencyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.MutationResponse{}, false, nil
	}
	if entry.InputHash != hash {
		return model.MutationResponse{}, true, model.NewConflictError("idempotency key already used with different input")
	}
	return entry.Result, true, nil
}

// inputHash is the SHA-256 of the input's JSON encoding. Map keys are
// encoded in sorted order, so equal inputs hash equally.
func inputHash(input map[string]any) string {
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
