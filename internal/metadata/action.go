// Package metadata resolves definitions into the descriptors sent to
// clients: the navigation tree, visible columns and filters, the row and
// bulk actions a user may trigger, and the resource forms. Every decision
// goes through the capability policy.
package metadata

import (
	"net/http"
	"net/url"

	"github.com/xaviermatuz/formdesk/model"
)

// Policy answers capability questions for one request identity. The row is
// consulted for ownership grants and may be nil.
type Policy interface {
	Evaluate(rctx *model.RequestContext, capability model.Capability, row map[string]any) bool
}

// Mutation messages shown after delete and restore.
const (
	PurgeConfirmMessage = "This will permanently delete the item."
	PurgeSuccessMessage = "The item has been permanently deleted."
	SoftConfirmMessage  = "This will mark the item as deleted."
	SoftSuccessMessage  = "The item has been marked as deleted."
	RestoreSuccess      = "The item has been restored."
	RestoreFailed       = "Failed to restore item."
	DeleteFailedPrefix  = "Failed to delete item: "
)

// DeleteStrategy describes how a delete reaches the forms API: purging
// removes the record, otherwise it is flagged with is_deleted.
type DeleteStrategy struct {
	Purge          bool
	Method         string
	Body           map[string]any
	ConfirmMessage string
	SuccessMessage string
}

// RestoreBody is the PATCH body that brings a soft-deleted row back.
func RestoreBody() map[string]any {
	return map[string]any{"is_deleted": false}
}

// ActionProvider resolves ActionDefinitions into ActionDescriptors.
type ActionProvider struct {
	policy Policy
}

// NewActionProvider creates an ActionProvider.
func NewActionProvider(policy Policy) *ActionProvider {
	return &ActionProvider{policy: policy}
}

// DeleteStrategy picks purge when the user may purge the row, soft delete
// otherwise.
func (p *ActionProvider) DeleteStrategy(rctx *model.RequestContext, def model.ResourceDefinition, row map[string]any) DeleteStrategy {
	if p.policy.Evaluate(rctx, model.Cap(def.Kind, model.VerbPurge), row) {
		return DeleteStrategy{
			Purge:          true,
			Method:         http.MethodDelete,
			ConfirmMessage: PurgeConfirmMessage,
			SuccessMessage: PurgeSuccessMessage,
		}
	}
	return DeleteStrategy{
		Method:         http.MethodPatch,
		Body:           map[string]any{"is_deleted": true},
		ConfirmMessage: SoftConfirmMessage,
		SuccessMessage: SoftSuccessMessage,
	}
}

// Allowed reports whether every capability is granted for row.
func (p *ActionProvider) Allowed(rctx *model.RequestContext, caps []model.Capability, row map[string]any) bool {
	return allowed(p.policy, rctx, caps, row)
}

// Find returns the first action of the given kind the user may run on row.
func (p *ActionProvider) Find(rctx *model.RequestContext, def model.ResourceDefinition, kind string, row map[string]any) (model.ActionDefinition, bool) {
	for _, a := range def.Actions {
		if a.Kind != kind || !a.When.Matches(row) {
			continue
		}
		if p.Allowed(rctx, a.Capabilities, row) {
			return a, true
		}
	}
	return model.ActionDefinition{}, false
}

// RowActions resolves the per-row actions for row. Rows without an id get
// none since they cannot be addressed.
func (p *ActionProvider) RowActions(rctx *model.RequestContext, def model.ResourceDefinition, row map[string]any) []model.ActionDescriptor {
	id := model.FormatValue(row["id"])
	if id == "" {
		return nil
	}
	path := "/ui/resources/" + def.Name + "/" + url.PathEscape(id)

	var result []model.ActionDescriptor
	for _, a := range def.Actions {
		if a.Bulk() || !a.When.Matches(row) || !p.Allowed(rctx, a.Capabilities, row) {
			continue
		}

		desc := model.ActionDescriptor{ID: a.ID, Label: a.Label, Style: a.Style}
		switch a.Kind {
		case model.ActionDelete:
			s := p.DeleteStrategy(rctx, def, row)
			desc.Method = http.MethodDelete
			desc.Path = path
			desc.Confirmation = confirmation(a, s.ConfirmMessage)
		case model.ActionRestore:
			desc.Method = http.MethodPost
			desc.Path = path + "/restore"
			if a.Confirmation != nil {
				desc.Confirmation = confirmation(a, "")
			}
		case model.ActionEdit:
			desc.Method = http.MethodPatch
			desc.Path = path
			desc.Form = path + "/form?mode=" + model.FormEdit
		case model.ActionView:
			desc.Method = http.MethodGet
			desc.Path = path + "/form?mode=" + model.FormView
			desc.Form = desc.Path
		}
		result = append(result, desc)
	}
	return result
}

// BulkActions resolves the actions that apply to the selection.
func (p *ActionProvider) BulkActions(rctx *model.RequestContext, def model.ResourceDefinition) []model.ActionDescriptor {
	var result []model.ActionDescriptor
	for _, a := range def.Actions {
		if !a.Bulk() || !p.Allowed(rctx, a.Capabilities, nil) {
			continue
		}

		desc := model.ActionDescriptor{ID: a.ID, Label: a.Label, Style: a.Style}
		switch a.Kind {
		case model.ActionExport:
			desc.Method = http.MethodGet
			desc.Path = "/ui/tables/" + def.Name + "/export"
		case model.ActionBulkDelete:
			desc.Method = http.MethodPost
			desc.Path = "/ui/resources/" + def.Name + "/bulk-delete"
			desc.Confirmation = confirmation(a, p.DeleteStrategy(rctx, def, nil).ConfirmMessage)
		case model.ActionCreate:
			desc.Method = http.MethodPost
			desc.Path = "/ui/resources/" + def.Name
			desc.Form = desc.Path + "/form"
		}
		result = append(result, desc)
	}
	return result
}

// confirmation prefers the definition's wording and falls back to the
// strategy message and the action label.
func confirmation(a model.ActionDefinition, fallback string) *model.ConfirmationDescriptor {
	c := &model.ConfirmationDescriptor{Title: a.Label, Message: fallback}
	if a.Confirmation != nil {
		if a.Confirmation.Title != "" {
			c.Title = a.Confirmation.Title
		}
		if a.Confirmation.Message != "" {
			c.Message = a.Confirmation.Message
		}
	}
	return c
}
