package definition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xaviermatuz/formdesk/internal/config"
	"github.com/xaviermatuz/formdesk/internal/openapi"
	"github.com/xaviermatuz/formdesk/internal/query"
	"github.com/xaviermatuz/formdesk/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally, referentially, and against
// the forms API document.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definition files together. The index may be nil to
// skip OpenAPI checks.
func (v *Validator) Validate(files []model.DefinitionFile, index *openapi.Index) []VError {
	var errs []VError

	resources := make(map[string]string) // name → first path
	for i, f := range files {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if f.SourceFile != "" {
			prefix = f.SourceFile
		}
		for j, res := range f.Resources {
			rp := fmt.Sprintf("%s.resources[%d]", prefix, j)
			if res.Name != "" {
				if first, dup := resources[res.Name]; dup {
					errs = append(errs, VError{Path: rp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("resource %q already declared at %s", res.Name, first)})
				} else {
					resources[res.Name] = rp
				}
			}
			errs = append(errs, v.validateResource(rp, res, index)...)
		}
	}

	navIDs := make(map[string]bool)
	for i, f := range files {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if f.SourceFile != "" {
			prefix = f.SourceFile
		}
		for j, nav := range f.Navigation {
			np := fmt.Sprintf("%s.navigation[%d]", prefix, j)
			errs = append(errs, v.validateNavigation(np, nav, navIDs, resources)...)
		}
	}

	return errs
}

func (v *Validator) validateNavigation(prefix string, n model.NavigationDefinition, seen map[string]bool, resources map[string]string) []VError {
	var errs []VError

	if n.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	} else if seen[n.ID] {
		errs = append(errs, VError{Path: prefix + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("navigation %q declared twice", n.ID)})
	}
	seen[n.ID] = true

	if n.Label == "" {
		errs = append(errs, VError{Path: prefix + ".label", Code: "REQUIRED", Message: "label is required"})
	}
	if n.Route == "" {
		errs = append(errs, VError{Path: prefix + ".route", Code: "REQUIRED", Message: "route is required"})
	}
	if n.BadgeResource != "" {
		if _, ok := resources[n.BadgeResource]; !ok {
			errs = append(errs, VError{Path: prefix + ".badge_resource", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("resource %q not found", n.BadgeResource)})
		}
	}

	return errs
}

func (v *Validator) validateResource(prefix string, r model.ResourceDefinition, index *openapi.Index) []VError {
	var errs []VError

	if r.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if r.Kind == "" {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"})
	} else if !slices.Contains(model.KnownKinds(), r.Kind) {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid kind %q", r.Kind)})
	}
	if !strings.HasPrefix(r.Endpoint, "/") {
		errs = append(errs, VError{Path: prefix + ".endpoint", Code: "REQUIRED", Message: "endpoint must start with /"})
	}
	if r.Capability == "" {
		errs = append(errs, VError{Path: prefix + ".capability", Code: "REQUIRED", Message: "capability is required"})
	} else if r.Kind != "" && r.Capability.Resource() != r.Kind {
		errs = append(errs, VError{
			Path:    prefix + ".capability",
			Code:    "NAMESPACE_MISMATCH",
			Message: fmt.Sprintf("capability %q does not match kind %q", r.Capability, r.Kind),
		})
	}

	if r.ScopedEndpoint != "" {
		if r.ScopeParam == "" {
			errs = append(errs, VError{Path: prefix + ".scope_param", Code: "REQUIRED", Message: "scope_param is required with scoped_endpoint"})
		} else if !strings.Contains(r.ScopedEndpoint, "{"+r.ScopeParam+"}") {
			errs = append(errs, VError{Path: prefix + ".scoped_endpoint", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("scoped_endpoint has no {%s} segment", r.ScopeParam)})
		}
	}

	errs = append(errs, v.validateTiming(prefix, r)...)
	errs = append(errs, v.validateColumns(prefix, r)...)
	errs = append(errs, v.validateFilters(prefix, r.Filters)...)
	errs = append(errs, v.validateActions(prefix, r.Actions)...)
	errs = append(errs, v.validateForm(prefix, r)...)

	if index != nil {
		errs = append(errs, v.validateAgainstAPI(prefix, r, index)...)
	}

	return errs
}

func (v *Validator) validateTiming(prefix string, r model.ResourceDefinition) []VError {
	var errs []VError

	if r.PageSize != 0 && !query.ValidPageSize(r.PageSize) {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "INVALID_ENUM", Message: fmt.Sprintf("page_size must be one of %v", query.PageSizes)})
	}
	if r.Debounce != 0 && (r.Debounce < config.MinDebounce || r.Debounce > config.MaxDebounce) {
		errs = append(errs, VError{Path: prefix + ".debounce", Code: "RANGE", Message: fmt.Sprintf("debounce must be between %s and %s", config.MinDebounce, config.MaxDebounce)})
	}
	if r.RefreshInterval != 0 && (r.RefreshInterval < config.MinRefreshInterval || r.RefreshInterval > config.MaxRefreshInterval) {
		errs = append(errs, VError{Path: prefix + ".refresh_interval", Code: "RANGE", Message: fmt.Sprintf("refresh_interval must be between %s and %s", config.MinRefreshInterval, config.MaxRefreshInterval)})
	}
	if r.StaleTime < 0 {
		errs = append(errs, VError{Path: prefix + ".stale_time", Code: "RANGE", Message: "stale_time must not be negative"})
	}

	return errs
}

func (v *Validator) validateColumns(prefix string, r model.ResourceDefinition) []VError {
	var errs []VError

	if len(r.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}

	keys := make(map[string]model.ColumnDefinition)
	for i, c := range r.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if c.Key == "" {
			errs = append(errs, VError{Path: cp + ".key", Code: "REQUIRED", Message: "key is required"})
			continue
		}
		if _, dup := keys[c.Key]; dup {
			errs = append(errs, VError{Path: cp + ".key", Code: "DUPLICATE", Message: fmt.Sprintf("column %q declared twice", c.Key)})
		}
		keys[c.Key] = c
		if c.Label == "" {
			errs = append(errs, VError{Path: cp + ".label", Code: "REQUIRED", Message: "label is required"})
		}
	}

	if s := r.DefaultSort; s != nil {
		col, ok := keys[s.Key]
		switch {
		case !ok:
			errs = append(errs, VError{Path: prefix + ".default_sort.key", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("column %q not found", s.Key)})
		case col.Action:
			errs = append(errs, VError{Path: prefix + ".default_sort.key", Code: "INVALID_REF", Message: "action columns cannot be sorted"})
		}
		if s.Direction != model.SortAsc && s.Direction != model.SortDesc {
			errs = append(errs, VError{Path: prefix + ".default_sort.direction", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid direction %q", s.Direction)})
		}
	}

	return errs
}

func (v *Validator) validateFilters(prefix string, filters []model.FilterDefinition) []VError {
	var errs []VError

	names := make(map[string]bool)
	for i, f := range filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, VError{Path: fp + ".name", Code: "REQUIRED", Message: "name is required"})
		} else if names[f.Name] {
			errs = append(errs, VError{Path: fp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("filter %q declared twice", f.Name)})
		}
		names[f.Name] = true

		if len(f.Options) == 0 {
			errs = append(errs, VError{Path: fp + ".options", Code: "REQUIRED", Message: "at least one option is required"})
			continue
		}
		if f.Default == "" {
			errs = append(errs, VError{Path: fp + ".default", Code: "REQUIRED", Message: "default is required"})
		} else if _, ok := f.Option(f.Default); !ok {
			errs = append(errs, VError{Path: fp + ".default", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("default %q is not an option", f.Default)})
		}
	}

	return errs
}

var validActionKinds = map[string]bool{
	model.ActionDelete:     true,
	model.ActionRestore:    true,
	model.ActionExport:     true,
	model.ActionBulkDelete: true,
	model.ActionView:       true,
	model.ActionEdit:       true,
	model.ActionCreate:     true,
}

func (v *Validator) validateActions(prefix string, actions []model.ActionDefinition) []VError {
	var errs []VError

	ids := make(map[string]bool)
	for i, a := range actions {
		ap := fmt.Sprintf("%s.actions[%d]", prefix, i)
		if a.ID == "" {
			errs = append(errs, VError{Path: ap + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if ids[a.ID] {
			errs = append(errs, VError{Path: ap + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("action %q declared twice", a.ID)})
		}
		ids[a.ID] = true

		if a.Label == "" {
			errs = append(errs, VError{Path: ap + ".label", Code: "REQUIRED", Message: "label is required"})
		}
		if !validActionKinds[a.Kind] {
			errs = append(errs, VError{Path: ap + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid action kind %q", a.Kind)})
		}
		if a.When != nil && a.When.Field == "" {
			errs = append(errs, VError{Path: ap + ".when.field", Code: "REQUIRED", Message: "when.field is required"})
		}
	}

	return errs
}

func (v *Validator) validateForm(prefix string, r model.ResourceDefinition) []VError {
	var errs []VError
	for i, a := range r.Actions {
		if a.NeedsForm() && r.Form == nil {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.actions[%d].kind", prefix, i), Code: "REF_NOT_FOUND", Message: fmt.Sprintf("%s action needs a form", a.Kind)})
		}
	}
	if r.Form == nil {
		return errs
	}

	fp := prefix + ".form"
	if len(r.Form.Fields) == 0 {
		errs = append(errs, VError{Path: fp + ".fields", Code: "REQUIRED", Message: "a form needs at least one field"})
	}
	seen := make(map[string]bool)
	for i, f := range r.Form.Fields {
		ffp := fmt.Sprintf("%s.fields[%d]", fp, i)
		if f.Field == "" {
			errs = append(errs, VError{Path: ffp + ".field", Code: "REQUIRED", Message: "field is required"})
		} else if seen[f.Field] {
			errs = append(errs, VError{Path: ffp + ".field", Code: "DUPLICATE", Message: fmt.Sprintf("field %q declared twice", f.Field)})
		}
		seen[f.Field] = true

		if !slices.Contains(model.KnownFieldTypes(), f.Type) {
			errs = append(errs, VError{Path: ffp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", f.Type)})
		}
		if f.Type == model.FieldSelect && len(f.Options) == 0 {
			errs = append(errs, VError{Path: ffp + ".options", Code: "REQUIRED", Message: "select fields need options"})
		}
		if f.Confirms != "" {
			if _, ok := r.Form.FormField(f.Confirms); !ok || f.Confirms == f.Field {
				errs = append(errs, VError{Path: ffp + ".confirms", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("confirmed field %q not found", f.Confirms)})
			}
		}
	}
	for i, fu := range r.Form.Followups {
		up := fmt.Sprintf("%s.followups[%d]", fp, i)
		if fu.Path == "" || strings.HasPrefix(fu.Path, "/") {
			errs = append(errs, VError{Path: up + ".path", Code: "INVALID", Message: "path must be relative to the row"})
		}
		for _, name := range append([]string{fu.When}, fu.Fields...) {
			if !seen[name] {
				errs = append(errs, VError{Path: up, Code: "REF_NOT_FOUND", Message: fmt.Sprintf("field %q not found", name)})
			}
		}
	}
	return errs
}

func (v *Validator) validateAgainstAPI(prefix string, r model.ResourceDefinition, index *openapi.Index) []VError {
	var errs []VError

	var ops []openapi.Operation
	if r.Endpoint != "" {
		op, ok := index.FindOperation("GET", r.Endpoint)
		if !ok {
			errs = append(errs, VError{Path: prefix + ".endpoint", Code: "OPERATION_NOT_FOUND", Message: fmt.Sprintf("no GET operation serves %s", r.Endpoint)})
		} else {
			ops = append(ops, op)
		}
	}
	if r.ScopedEndpoint != "" {
		op, ok := index.FindOperation("GET", r.ScopedEndpoint)
		if !ok {
			errs = append(errs, VError{Path: prefix + ".scoped_endpoint", Code: "OPERATION_NOT_FOUND", Message: fmt.Sprintf("no GET operation serves %s", r.ScopedEndpoint)})
		} else {
			ops = append(ops, op)
		}
	}
	if r.OperationID != "" {
		if _, ok := index.GetOperation(r.OperationID); !ok {
			errs = append(errs, VError{Path: prefix + ".operation_id", Code: "OPERATION_NOT_FOUND", Message: fmt.Sprintf("operation %q not found", r.OperationID)})
		}
	}

	if r.Endpoint != "" {
		rowPath := strings.TrimRight(r.Endpoint, "/") + "/{id}/"
		for i, a := range r.Actions {
			method, path := "", ""
			switch a.Kind {
			case model.ActionEdit:
				method, path = "PATCH", rowPath
			case model.ActionCreate:
				method, path = "POST", r.Endpoint
			default:
				continue
			}
			if _, ok := index.FindOperation(method, path); !ok {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.actions[%d].kind", prefix, i),
					Code:    "OPERATION_NOT_FOUND",
					Message: fmt.Sprintf("no %s operation serves %s", method, path),
				})
			}
		}
		if r.Form != nil {
			for i, fu := range r.Form.Followups {
				if _, ok := index.FindOperation("POST", rowPath+fu.Path); !ok {
					errs = append(errs, VError{
						Path:    fmt.Sprintf("%s.form.followups[%d].path", prefix, i),
						Code:    "OPERATION_NOT_FOUND",
						Message: fmt.Sprintf("no POST operation serves %s", rowPath+fu.Path),
					})
				}
			}
		}
	}

	for i, f := range r.Filters {
		for j, o := range f.Options {
			for param := range o.Params {
				for _, op := range ops {
					if !op.AcceptsQuery(param) {
						errs = append(errs, VError{
							Path:    fmt.Sprintf("%s.filters[%d].options[%d].params", prefix, i, j),
							Code:    "PARAM_NOT_FOUND",
							Message: fmt.Sprintf("operation %q does not accept query parameter %q", op.OperationID, param),
						})
					}
				}
			}
		}
	}

	return errs
}
