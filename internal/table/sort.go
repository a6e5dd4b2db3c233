package table

import "github.com/xaviermatuz/formdesk/model"

// ToggleSort returns the sort that results from activating col's header.
// Unsorted or another column starts at ascending; the active column flips
// between ascending and descending. Action columns leave the sort as is.
func ToggleSort(current *model.SortConfig, col model.Column) *model.SortConfig {
	if col.IsAction {
		return current
	}
	if current == nil || current.Key != col.Key {
		return &model.SortConfig{Key: col.Key, Direction: model.SortAsc}
	}
	next := model.SortAsc
	if current.Direction == model.SortAsc {
		next = model.SortDesc
	}
	return &model.SortConfig{Key: col.Key, Direction: next}
}

// Indicator returns the header marker for a direction.
func Indicator(dir model.SortDirection) string {
	switch dir {
	case model.SortAsc:
		return "▲"
	case model.SortDesc:
		return "▼"
	default:
		return ""
	}
}

// FindColumn looks up a column by key.
func FindColumn(cols []model.Column, key string) (model.Column, bool) {
	for _, c := range cols {
		if c.Key == key {
			return c, true
		}
	}
	return model.Column{}, false
}
