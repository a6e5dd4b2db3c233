package table

import (
	"sort"
	"strings"

	"github.com/xaviermatuz/formdesk/model"
)

// Filter keeps the rows of the loaded page whose non-action columns contain
// search, case-insensitively. An empty search returns rows unchanged.
func Filter[R model.Resource](rows []model.Row[R], search string, cols []model.Column) []model.Row[R] {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return rows
	}
	var out []model.Row[R]
	for _, row := range rows {
		for _, c := range cols {
			if c.IsAction {
				continue
			}
			if strings.Contains(strings.ToLower(row.Text(c.Key)), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// SortItems returns a sorted copy of rows. Numbers compare numerically,
// everything else by case-insensitive text. A nil sort keeps the order.
func SortItems[R model.Resource](rows []model.Row[R], s *model.SortConfig) []model.Row[R] {
	out := make([]model.Row[R], len(rows))
	copy(out, rows)
	if s == nil || s.Key == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i].Value(s.Key), out[j].Value(s.Key))
		if s.Direction == model.SortDesc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b any) int {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(
		strings.ToLower(model.FormatValue(a)),
		strings.ToLower(model.FormatValue(b)),
	)
}
