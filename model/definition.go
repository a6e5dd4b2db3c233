package model

import (
	"fmt"
	"time"
)

// DefinitionFile is the root structure of a definition YAML file. One file may
// declare navigation entries, resources, or both.
type DefinitionFile struct {
	Navigation []NavigationDefinition `yaml:"navigation" json:"navigation,omitempty"`
	Resources  []ResourceDefinition   `yaml:"resources"  json:"resources,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// NavigationDefinition describes a top-level menu entry.
type NavigationDefinition struct {
	ID            string       `yaml:"id"             json:"id"`
	Label         string       `yaml:"label"          json:"label"`
	Icon          string       `yaml:"icon"           json:"icon"`
	Route         string       `yaml:"route"          json:"route"`
	Order         int          `yaml:"order"          json:"order"`
	Capabilities  []Capability `yaml:"capabilities"   json:"capabilities,omitempty"`
	BadgeResource string       `yaml:"badge_resource" json:"badge_resource,omitempty"`
}

// ResourceDefinition declares how one remote collection is presented as a
// table: where it is fetched from, which columns and filters it has, and
// which actions apply to its rows.
type ResourceDefinition struct {
	Name            string             `yaml:"name"             json:"name"`
	Kind            string             `yaml:"kind"             json:"kind"`
	Title           string             `yaml:"title"            json:"title"`
	Endpoint        string             `yaml:"endpoint"         json:"endpoint"`
	ScopedEndpoint  string             `yaml:"scoped_endpoint"  json:"scoped_endpoint,omitempty"`
	ScopeParam      string             `yaml:"scope_param"      json:"scope_param,omitempty"`
	OperationID     string             `yaml:"operation_id"     json:"operation_id,omitempty"`
	Capability      Capability         `yaml:"capability"       json:"capability"`
	Columns         []ColumnDefinition `yaml:"columns"          json:"columns"`
	Filters         []FilterDefinition `yaml:"filters"          json:"filters,omitempty"`
	Actions         []ActionDefinition `yaml:"actions"          json:"actions,omitempty"`
	DefaultSort     *SortConfig        `yaml:"default_sort"     json:"default_sort,omitempty"`
	PageSize        int                `yaml:"page_size"        json:"page_size"`
	Debounce        time.Duration      `yaml:"debounce"         json:"debounce"`
	RefreshInterval time.Duration      `yaml:"refresh_interval" json:"refresh_interval"`
	StaleTime       time.Duration      `yaml:"stale_time"       json:"stale_time"`
	EmptyMessage    string             `yaml:"empty_message"    json:"empty_message,omitempty"`
	Form            *FormDefinition    `yaml:"form"             json:"form,omitempty"`
}

// ColumnDefinition describes one table column. Columns carrying
// capabilities are only shown to users holding all of them.
type ColumnDefinition struct {
	Key          string       `yaml:"key"          json:"key"`
	Label        string       `yaml:"label"        json:"label"`
	Action       bool         `yaml:"action"       json:"action,omitempty"`
	Capabilities []Capability `yaml:"capabilities" json:"capabilities,omitempty"`
}

// FilterDefinition describes a select-style filter. Each option maps to the
// query parameters sent to the remote API.
type FilterDefinition struct {
	Name         string                   `yaml:"name"         json:"name"`
	Label        string                   `yaml:"label"        json:"label"`
	Default      string                   `yaml:"default"      json:"default"`
	Persist      bool                     `yaml:"persist"      json:"persist,omitempty"`
	Capabilities []Capability             `yaml:"capabilities" json:"capabilities,omitempty"`
	Options      []FilterOptionDefinition `yaml:"options"      json:"options"`
}

// FilterOptionDefinition is one choice of a filter.
type FilterOptionDefinition struct {
	Value  string            `yaml:"value"  json:"value"`
	Label  string            `yaml:"label"  json:"label"`
	Params map[string]string `yaml:"params" json:"params,omitempty"`
}

// Option returns the option with the given value.
func (f FilterDefinition) Option(value string) (FilterOptionDefinition, bool) {
	for _, o := range f.Options {
		if o.Value == value {
			return o, true
		}
	}
	return FilterOptionDefinition{}, false
}

// Action kinds.
const (
	ActionDelete     = "delete"
	ActionRestore    = "restore"
	ActionExport     = "export"
	ActionBulkDelete = "bulk_delete"
	ActionView       = "view"
	ActionEdit       = "edit"
	ActionCreate     = "create"
)

// ActionDefinition describes a row or bulk action.
type ActionDefinition struct {
	ID           string                  `yaml:"id"           json:"id"`
	Label        string                  `yaml:"label"        json:"label"`
	Kind         string                  `yaml:"kind"         json:"kind"`
	Style        string                  `yaml:"style"        json:"style,omitempty"`
	Capabilities []Capability            `yaml:"capabilities" json:"capabilities,omitempty"`
	Confirmation *ConfirmationDefinition `yaml:"confirmation" json:"confirmation,omitempty"`
	When         *ConditionDefinition    `yaml:"when"         json:"when,omitempty"`
}

// Bulk reports whether the action applies to the table or its selection
// rather than a row.
func (a ActionDefinition) Bulk() bool {
	return a.Kind == ActionExport || a.Kind == ActionBulkDelete || a.Kind == ActionCreate
}

// NeedsForm reports whether the action opens the resource's form.
func (a ActionDefinition) NeedsForm() bool {
	return a.Kind == ActionView || a.Kind == ActionEdit || a.Kind == ActionCreate
}

// ConfirmationDefinition describes a confirmation dialog.
type ConfirmationDefinition struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
}

// ConditionDefinition restricts a row action to rows whose field equals the
// given value. A missing field compares as false.
type ConditionDefinition struct {
	Field  string `yaml:"field"  json:"field"`
	Equals any    `yaml:"equals" json:"equals"`
}

// Matches evaluates the condition against a row.
func (c *ConditionDefinition) Matches(row map[string]any) bool {
	if c == nil {
		return true
	}
	got, ok := row[c.Field]
	if !ok || got == nil {
		got = false
	}
	return fmt.Sprint(got) == fmt.Sprint(c.Equals)
}

// Field types.
const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
	// FieldSchema holds the field list of a form schema.
	FieldSchema = "schema"
)

// KnownFieldTypes returns every field type a form may declare.
func KnownFieldTypes() []string {
	return []string{FieldText, FieldEmail, FieldPassword, FieldTextarea, FieldSelect, FieldCheckbox, FieldSchema}
}

// FormDefinition describes the form used to view, edit and create the rows
// of a resource.
type FormDefinition struct {
	Title          string               `yaml:"title"           json:"title"`
	CreateTitle    string               `yaml:"create_title"    json:"create_title,omitempty"`
	UpdatedMessage string               `yaml:"updated_message" json:"updated_message,omitempty"`
	CreatedMessage string               `yaml:"created_message" json:"created_message,omitempty"`
	UpdateFailed   string               `yaml:"update_failed"   json:"update_failed,omitempty"`
	CreateFailed   string               `yaml:"create_failed"   json:"create_failed,omitempty"`
	Fields         []FieldDefinition    `yaml:"fields"          json:"fields"`
	Followups      []FollowupDefinition `yaml:"followups"       json:"followups,omitempty"`
}

// FieldDefinition describes one form field.
//
// Write-only fields are never prefilled and a blank value leaves them
// unchanged on edit; when required, they are only required on create. A
// field that Confirms another must carry the same value; it is sent with
// creates and follow-ups but not with the edit PATCH.
type FieldDefinition struct {
	Field        string                  `yaml:"field"        json:"field"`
	Label        string                  `yaml:"label"        json:"label"`
	Type         string                  `yaml:"type"         json:"type"`
	Required     bool                    `yaml:"required"     json:"required,omitempty"`
	ReadOnly     bool                    `yaml:"read_only"    json:"read_only,omitempty"`
	WriteOnly    bool                    `yaml:"write_only"   json:"write_only,omitempty"`
	Confirms     string                  `yaml:"confirms"     json:"confirms,omitempty"`
	Rules        string                  `yaml:"rules"        json:"rules,omitempty"`
	Message      string                  `yaml:"message"      json:"message,omitempty"`
	Default      any                     `yaml:"default"      json:"default,omitempty"`
	Fallback     string                  `yaml:"fallback"     json:"fallback,omitempty"`
	Placeholder  string                  `yaml:"placeholder"  json:"placeholder,omitempty"`
	Capabilities []Capability            `yaml:"capabilities" json:"capabilities,omitempty"`
	Options      []FieldOptionDefinition `yaml:"options"      json:"options,omitempty"`
}

// FieldOptionDefinition is one choice of a select field.
type FieldOptionDefinition struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// FollowupDefinition is a POST sent to a sub-path of the row after a
// successful edit, when the When field was filled in.
type FollowupDefinition struct {
	Path   string   `yaml:"path"   json:"path"`
	When   string   `yaml:"when"   json:"when"`
	Fields []string `yaml:"fields" json:"fields"`
}

// FormField returns the form field with the given name.
func (f *FormDefinition) FormField(name string) (FieldDefinition, bool) {
	if f == nil {
		return FieldDefinition{}, false
	}
	for _, fd := range f.Fields {
		if fd.Field == name {
			return fd, true
		}
	}
	return FieldDefinition{}, false
}
