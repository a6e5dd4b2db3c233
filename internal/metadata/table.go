package metadata

import (
	"fmt"

	"github.com/xaviermatuz/formdesk/internal/definition"
	"github.com/xaviermatuz/formdesk/model"
)

// TableProvider resolves the parts of a resource definition that depend on
// the user: the resource itself, its visible columns, and its filters.
type TableProvider struct {
	registry *definition.Registry
	policy   Policy
}

// NewTableProvider creates a TableProvider.
func NewTableProvider(registry *definition.Registry, policy Policy) *TableProvider {
	return &TableProvider{registry: registry, policy: policy}
}

// Resource returns the definition named name. Returns an error with code
// NOT_FOUND or FORBIDDEN.
func (p *TableProvider) Resource(rctx *model.RequestContext, name string) (model.ResourceDefinition, error) {
	def, ok := p.registry.Resource(name)
	if !ok {
		return model.ResourceDefinition{}, model.NewNotFoundError(fmt.Sprintf("resource %q not found", name))
	}
	if !p.policy.Evaluate(rctx, def.Capability, nil) {
		return model.ResourceDefinition{}, model.NewForbiddenError(fmt.Sprintf("insufficient capabilities for %q", name))
	}
	return def, nil
}

// Columns returns the columns visible to the user, in definition order.
func (p *TableProvider) Columns(rctx *model.RequestContext, def model.ResourceDefinition) []model.Column {
	cols := make([]model.Column, 0, len(def.Columns))
	for _, c := range def.Columns {
		if !p.allowed(rctx, c.Capabilities) {
			continue
		}
		cols = append(cols, model.Column{Key: c.Key, Label: c.Label, IsAction: c.Action})
	}
	return cols
}

// Filters returns the filter definitions available to the user.
func (p *TableProvider) Filters(rctx *model.RequestContext, def model.ResourceDefinition) []model.FilterDefinition {
	var out []model.FilterDefinition
	for _, f := range def.Filters {
		if p.allowed(rctx, f.Capabilities) {
			out = append(out, f)
		}
	}
	return out
}

// FilterDescriptors resolves the available filters with their current
// values. Unknown or missing values fall back to the filter default.
func (p *TableProvider) FilterDescriptors(rctx *model.RequestContext, def model.ResourceDefinition, values map[string]string) []model.FilterDescriptor {
	var out []model.FilterDescriptor
	for _, f := range p.Filters(rctx, def) {
		d := model.FilterDescriptor{Name: f.Name, Label: f.Label, Value: f.Default}
		if v, ok := values[f.Name]; ok {
			if _, known := f.Option(v); known {
				d.Value = v
			}
		}
		for _, o := range f.Options {
			d.Options = append(d.Options, model.OptionDescriptor{Value: o.Value, Label: o.Label})
		}
		out = append(out, d)
	}
	return out
}

func (p *TableProvider) allowed(rctx *model.RequestContext, caps []model.Capability) bool {
	for _, c := range caps {
		if !p.policy.Evaluate(rctx, c, nil) {
			return false
		}
	}
	return true
}
