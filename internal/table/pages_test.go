package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPageNumbers(t *testing.T) {
	tests := []struct {
		name           string
		current, total int
		want           []string
	}{
		{"single page", 1, 1, []string{"1"}},
		{"seven pages listed in full", 4, 7, []string{"1", "2", "3", "4", "5", "6", "7"}},
		{"middle of ten", 5, 10, []string{"1", "...", "4", "5", "6", "...", "10"}},
		{"first of ten", 1, 10, []string{"1", "2", "...", "10"}},
		{"second of ten", 2, 10, []string{"1", "2", "3", "...", "10"}},
		{"third of ten", 3, 10, []string{"1", "2", "3", "4", "...", "10"}},
		{"last of ten", 10, 10, []string{"1", "...", "9", "10"}},
		{"eighth of ten", 8, 10, []string{"1", "...", "7", "8", "9", "10"}},
		{"zero total treated as one", 1, 0, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Labels(PageNumbers(tt.current, tt.total))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PageNumbers(%d, %d) mismatch (-want +got):\n%s", tt.current, tt.total, diff)
			}
		})
	}
}

func TestPageNumbers_marksCurrent(t *testing.T) {
	items := PageNumbers(5, 10)
	var current []int
	for _, it := range items {
		if it.Current {
			current = append(current, it.Number)
		}
		if it.Ellipsis && it.Number != 0 {
			t.Errorf("ellipsis carries number %d", it.Number)
		}
	}
	if len(current) != 1 || current[0] != 5 {
		t.Errorf("current pages = %v, want [5]", current)
	}
}
