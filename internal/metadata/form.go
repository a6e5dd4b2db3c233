package metadata

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xaviermatuz/formdesk/model"
)

// Form mutation messages used when the definition sets none.
const (
	UpdatedMessage = "The item has been updated."
	CreatedMessage = "The item has been created."
	UpdateFailed   = "Failed to update item: "
	CreateFailed   = "Failed to create item: "
	NothingChanged = "Nothing to update."
)

// Submission is the mapped result of a submitted form: the body of the
// main request and the follow-up calls to send after it.
type Submission struct {
	Body      map[string]any
	Followups []Followup
}

// Followup is one POST sent after a successful edit.
type Followup struct {
	Path string // relative to the row path
	Body map[string]any
}

// FormProvider resolves form definitions into FormDescriptors and maps
// submitted values onto forms API request bodies.
type FormProvider struct {
	policy   Policy
	validate *validator.Validate
}

// NewFormProvider creates a FormProvider.
func NewFormProvider(policy Policy) *FormProvider {
	return &FormProvider{policy: policy, validate: validator.New()}
}

// Form resolves the form of def in mode. Edit and view forms are prefilled
// from row; create forms carry the field defaults.
func (p *FormProvider) Form(rctx *model.RequestContext, def model.ResourceDefinition, mode string, row map[string]any) (model.FormDescriptor, error) {
	if def.Form == nil {
		return model.FormDescriptor{}, model.NewNotFoundError(fmt.Sprintf("%s has no form", def.Title))
	}

	desc := model.FormDescriptor{
		Resource: def.Name,
		Mode:     mode,
		Title:    def.Form.Title,
		Values:   map[string]any{},
	}
	base := "/ui/resources/" + def.Name
	switch mode {
	case model.FormCreate:
		desc.Method = http.MethodPost
		desc.Path = base
		if def.Form.CreateTitle != "" {
			desc.Title = def.Form.CreateTitle
		}
	case model.FormEdit:
		desc.Method = http.MethodPatch
		desc.Path = base + "/" + url.PathEscape(model.FormatValue(row["id"]))
	case model.FormView:
	default:
		return model.FormDescriptor{}, model.NewBadRequestError(fmt.Sprintf("unknown form mode %q", mode))
	}

	for _, f := range p.fields(rctx, def, row) {
		if mode == model.FormView && (f.WriteOnly || f.Confirms != "") {
			continue
		}
		fd := model.FieldDescriptor{
			Field:       f.Field,
			Label:       f.Label,
			Type:        f.Type,
			Required:    f.Required && (mode == model.FormCreate || !f.WriteOnly),
			ReadOnly:    f.ReadOnly || mode == model.FormView,
			Placeholder: f.Placeholder,
		}
		for _, o := range f.Options {
			fd.Options = append(fd.Options, model.OptionDescriptor{Value: o.Value, Label: o.Label})
		}
		desc.Fields = append(desc.Fields, fd)

		switch {
		case f.WriteOnly || f.Confirms != "":
			desc.Values[f.Field] = ""
		case mode == model.FormCreate:
			if f.Default != nil {
				desc.Values[f.Field] = f.Default
			}
		default:
			if v, ok := prefill(row, f); ok {
				desc.Values[f.Field] = v
			}
		}
	}
	return desc, nil
}

// fields returns the form fields the user may see on row.
func (p *FormProvider) fields(rctx *model.RequestContext, def model.ResourceDefinition, row map[string]any) []model.FieldDefinition {
	var out []model.FieldDefinition
	for _, f := range def.Form.Fields {
		if allowed(p.policy, rctx, f.Capabilities, row) {
			out = append(out, f)
		}
	}
	return out
}

func allowed(policy Policy, rctx *model.RequestContext, caps []model.Capability, row map[string]any) bool {
	for _, c := range caps {
		if !policy.Evaluate(rctx, c, row) {
			return false
		}
	}
	return true
}

// prefill reads the field's value from row, trying the fallback path when
// the field is missing or blank.
func prefill(row map[string]any, f model.FieldDefinition) (any, bool) {
	if v, ok := row[f.Field]; ok && !blank(v) {
		return v, true
	}
	if f.Fallback != "" {
		if v, ok := lookupPath(row, f.Fallback); ok && !blank(v) {
			return v, true
		}
	}
	if f.Default != nil {
		return f.Default, true
	}
	return nil, false
}

// lookupPath follows a dotted path such as "groups.0.name" through maps
// and slices.
func lookupPath(v any, path string) (any, bool) {
	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Map validates input against the form of def and builds the request
// bodies. Only declared, writable fields are projected; other keys are
// dropped. On edit, absent fields are left unchanged.
func (p *FormProvider) Map(rctx *model.RequestContext, def model.ResourceDefinition, mode string, row, input map[string]any) (Submission, error) {
	if def.Form == nil {
		return Submission{}, model.NewNotFoundError(fmt.Sprintf("%s has no form", def.Title))
	}
	creating := mode == model.FormCreate

	var (
		sub     = Submission{Body: map[string]any{}}
		details []model.FieldError
		values  = map[string]any{}
	)
	fail := func(field, code, msg string) {
		details = append(details, model.FieldError{Field: field, Code: code, Message: msg})
	}

	for _, f := range p.fields(rctx, def, row) {
		if f.ReadOnly {
			continue
		}
		v, present := input[f.Field]
		if creating && !present && f.Default != nil {
			v, present = f.Default, true
		}
		if f.WriteOnly && !creating && blank(v) {
			continue
		}
		if !present && !creating {
			continue
		}
		if blank(v) {
			if f.Required && (creating || !f.WriteOnly) {
				fail(f.Field, "REQUIRED", requiredMessage(f))
			}
			if present && !f.Required && (creating || f.Confirms == "") {
				sub.Body[f.Field] = v
			}
			continue
		}

		norm, errs := p.check(f, v)
		if len(errs) > 0 {
			details = append(details, errs...)
			continue
		}
		values[f.Field] = norm
		if creating || f.Confirms == "" {
			sub.Body[f.Field] = norm
		}
	}

	for _, f := range p.fields(rctx, def, row) {
		if f.Confirms == "" {
			continue
		}
		if slices.ContainsFunc(details, func(d model.FieldError) bool { return d.Field == f.Field }) {
			continue
		}
		if !blank(values[f.Confirms]) && fmt.Sprint(values[f.Field]) != fmt.Sprint(values[f.Confirms]) {
			msg := f.Message
			if msg == "" {
				msg = "Must match " + strings.ToLower(confirmedLabel(def.Form, f.Confirms)) + "."
			}
			fail(f.Field, "MISMATCH", msg)
		}
	}

	if len(details) > 0 {
		return Submission{}, model.NewValidationError(details[0].Field+": "+details[0].Message, details)
	}

	if !creating {
		for _, fu := range def.Form.Followups {
			if blank(values[fu.When]) {
				continue
			}
			body := make(map[string]any, len(fu.Fields))
			for _, name := range fu.Fields {
				body[name] = values[name]
			}
			sub.Followups = append(sub.Followups, Followup{Path: fu.Path, Body: body})
		}
	}
	return sub, nil
}

func confirmedLabel(form *model.FormDefinition, name string) string {
	if f, ok := form.FormField(name); ok {
		return f.Label
	}
	return name
}

func requiredMessage(f model.FieldDefinition) string {
	if f.Type == model.FieldSchema {
		return "At least one field is required."
	}
	return f.Label + " is required."
}

// check type-checks one non-blank value and applies the field rules. It
// returns the value to send.
func (p *FormProvider) check(f model.FieldDefinition, v any) (any, []model.FieldError) {
	invalid := func(msg string) []model.FieldError {
		if f.Message != "" && f.Confirms == "" {
			msg = f.Message
		}
		return []model.FieldError{{Field: f.Field, Code: "INVALID", Message: msg}}
	}

	switch f.Type {
	case model.FieldCheckbox:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid("Must be true or false.")
		}
		return b, nil
	case model.FieldSchema:
		return checkSchema(f, v)
	}

	s, ok := v.(string)
	if !ok {
		return nil, invalid("Must be text.")
	}
	if f.Type == model.FieldSelect {
		values := make([]string, 0, len(f.Options))
		for _, o := range f.Options {
			values = append(values, o.Value)
		}
		if !slices.Contains(values, s) {
			return nil, invalid("Must be one of: " + strings.Join(values, " ") + ".")
		}
	}
	rules := f.Rules
	if f.Type == model.FieldEmail {
		rules = joinRules("email", rules)
	}
	if rules != "" {
		if err := p.validate.Var(s, rules); err != nil {
			return nil, invalid(ruleMessage(err))
		}
	}
	return s, nil
}

func joinRules(a, b string) string {
	if b == "" {
		return a
	}
	return a + "," + b
}

// ruleMessage renders the first failed validator rule.
func ruleMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "Is invalid."
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", fe.Param())
	case "alphanum":
		return "Use letters and digits only."
	default:
		return "Is invalid."
	}
}

// checkSchema validates the field list of a form schema. Field names are
// derived from labels the way the schema editor does.
func checkSchema(f model.FieldDefinition, v any) (any, []model.FieldError) {
	items, ok := v.([]any)
	if !ok {
		return nil, []model.FieldError{{Field: f.Field, Code: "INVALID", Message: "Must be a list of fields."}}
	}
	if len(items) == 0 && f.Required {
		return nil, []model.FieldError{{Field: f.Field, Code: "REQUIRED", Message: requiredMessage(f)}}
	}

	var errs []model.FieldError
	out := make([]any, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", f.Field, i)
		field, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, model.FieldError{Field: path, Code: "INVALID", Message: "Must be a field object."})
			continue
		}
		norm := make(map[string]any, len(field)+2)
		for k, val := range field {
			norm[k] = val
		}

		label, _ := field["label"].(string)
		if strings.TrimSpace(label) == "" {
			errs = append(errs, model.FieldError{Field: path + ".label", Code: "REQUIRED", Message: "Field label is required."})
		} else {
			norm["name"] = strings.Join(strings.Fields(strings.ToLower(label)), "_")
		}
		if _, ok := field["field_type"]; !ok {
			norm["field_type"] = model.FieldText
		}
		if _, ok := field["order"]; !ok {
			norm["order"] = i + 1
		}
		if norm["field_type"] == model.FieldSelect && !hasOption(field["options"]) {
			errs = append(errs, model.FieldError{Field: path + ".options", Code: "REQUIRED", Message: "Options required for select fields."})
		}
		out = append(out, norm)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func hasOption(v any) bool {
	opts, ok := v.([]any)
	if !ok {
		return false
	}
	for _, o := range opts {
		if s, ok := o.(string); ok && strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
