package table

import (
	"strconv"

	"github.com/xaviermatuz/formdesk/model"
)

// maxPlainPages is the largest page count rendered without ellipses.
const maxPlainPages = 7

// Ellipsis marks a gap in the page sequence.
const Ellipsis = "..."

// PageNumbers returns the page buttons for the given position. Up to seven
// pages are listed in full; beyond that the first and last pages and the
// neighbours of the current page are kept and gaps become ellipses.
func PageNumbers(current, total int) []model.PageItem {
	if total < 1 {
		total = 1
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	page := func(n int) model.PageItem {
		return model.PageItem{Number: n, Label: strconv.Itoa(n), Current: n == current}
	}
	gap := model.PageItem{Label: Ellipsis, Ellipsis: true}

	if total <= maxPlainPages {
		items := make([]model.PageItem, 0, total)
		for i := 1; i <= total; i++ {
			items = append(items, page(i))
		}
		return items
	}

	items := []model.PageItem{page(1)}
	left := max(current-1, 2)
	right := min(current+1, total-1)
	if left > 2 {
		items = append(items, gap)
	}
	for i := left; i <= right; i++ {
		items = append(items, page(i))
	}
	if right < total-1 {
		items = append(items, gap)
	}
	return append(items, page(total))
}

// Labels flattens page items into their labels.
func Labels(items []model.PageItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}
