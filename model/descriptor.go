package model

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is a single node in the navigation tree.
type NavigationNode struct {
	ID    string           `json:"id"`
	Label string           `json:"label"`
	Icon  string           `json:"icon"`
	Route string           `json:"route,omitempty"`
	Badge *BadgeDescriptor `json:"badge,omitempty"`
}

// BadgeDescriptor describes a count badge on a navigation item.
type BadgeDescriptor struct {
	Count int    `json:"count"`
	Style string `json:"style"`
}

// Column describes one table column. Keys are unique per table. Action
// columns hold per-row controls and are neither sortable nor searchable.
type Column struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	IsAction bool   `json:"is_action,omitempty"`
}

// SortDirection is the direction of the active sort.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortConfig is the active sort. A nil *SortConfig means unsorted.
type SortConfig struct {
	Key       string        `json:"key"`
	Direction SortDirection `json:"direction"`
}

// Ordering returns the remote API ordering parameter ("key" or "-key").
func (s *SortConfig) Ordering() string {
	if s == nil || s.Key == "" {
		return ""
	}
	if s.Direction == SortDesc {
		return "-" + s.Key
	}
	return s.Key
}

// Layout selects how rows are presented.
type Layout string

// Layouts.
const (
	LayoutTable Layout = "table"
	LayoutCards Layout = "cards"
)

// TableView is the fully resolved presentation of one table, ready to be
// rendered either as a wide table or as stacked cards.
type TableView struct {
	Resource        string             `json:"resource"`
	Title           string             `json:"title"`
	Layout          Layout             `json:"layout"`
	Headers         []HeaderCell       `json:"headers"`
	Rows            []RowView          `json:"rows"`
	Empty           *EmptyState        `json:"empty,omitempty"`
	Loading         bool               `json:"loading"`
	Error           string             `json:"error,omitempty"`
	Pagination      *PaginationView    `json:"pagination,omitempty"`
	Summary         string             `json:"summary"`
	PageSize        int                `json:"page_size"`
	PageSizeOptions []int              `json:"page_size_options"`
	Search          string             `json:"search"`
	Filters         []FilterDescriptor `json:"filters,omitempty"`
	Selection       SelectionSummary   `json:"selection"`
	BulkActions     []ActionDescriptor `json:"bulk_actions,omitempty"`
}

// HeaderCell is one rendered column header.
type HeaderCell struct {
	Key       string        `json:"key"`
	Label     string        `json:"label"`
	Sortable  bool          `json:"sortable"`
	Sort      SortDirection `json:"sort,omitempty"`
	Indicator string        `json:"indicator,omitempty"`
}

// RowView is one rendered row (or card).
type RowView struct {
	ID       string             `json:"id"`
	Selected bool               `json:"selected"`
	Cells    []CellView         `json:"cells"`
	Actions  []ActionDescriptor `json:"actions,omitempty"`
}

// CellView is one rendered cell. Label repeats the column label so the card
// layout can print "Label: Value" pairs.
type CellView struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	IsAction bool   `json:"is_action,omitempty"`
}

// EmptyState is the single placeholder row shown when there are no items.
type EmptyState struct {
	Message string `json:"message"`
	ColSpan int    `json:"colspan"`
}

// PaginationView describes the pagination control. It is omitted when there
// is only one page.
type PaginationView struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	HasPrev    bool       `json:"has_prev"`
	HasNext    bool       `json:"has_next"`
	Items      []PageItem `json:"items"`
}

// PageItem is a numbered page button or an ellipsis marker.
type PageItem struct {
	Number   int    `json:"number,omitempty"`
	Label    string `json:"label"`
	Ellipsis bool   `json:"ellipsis,omitempty"`
	Current  bool   `json:"current,omitempty"`
}

// FilterDescriptor describes a resolved filter control.
type FilterDescriptor struct {
	Name    string             `json:"name"`
	Label   string             `json:"label"`
	Value   string             `json:"value"`
	Options []OptionDescriptor `json:"options"`
}

// OptionDescriptor is a resolved option for dropdowns and filters.
type OptionDescriptor struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SelectionSummary reports the selection state of the rendered page.
type SelectionSummary struct {
	Count       int  `json:"count"`
	AllSelected bool `json:"all_selected"`
}

// ActionDescriptor is a resolved action sent to the frontend.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Method       string                  `json:"method"`
	Path         string                  `json:"path"`
	Style        string                  `json:"style,omitempty"`
	Form         string                  `json:"form,omitempty"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Form modes.
const (
	FormView   = "view"
	FormEdit   = "edit"
	FormCreate = "create"
)

// FormDescriptor is a resolved form. Method and Path are empty for view
// forms, which cannot be submitted.
type FormDescriptor struct {
	Resource string            `json:"resource"`
	Mode     string            `json:"mode"`
	Title    string            `json:"title"`
	Method   string            `json:"method,omitempty"`
	Path     string            `json:"path,omitempty"`
	Fields   []FieldDescriptor `json:"fields"`
	Values   map[string]any    `json:"values"`
}

// FieldDescriptor is one resolved form field.
type FieldDescriptor struct {
	Field       string             `json:"field"`
	Label       string             `json:"label"`
	Type        string             `json:"type"`
	Required    bool               `json:"required,omitempty"`
	ReadOnly    bool               `json:"read_only,omitempty"`
	Placeholder string             `json:"placeholder,omitempty"`
	Options     []OptionDescriptor `json:"options,omitempty"`
}

// MutationResponse is returned after a create, update, delete or restore.
type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
