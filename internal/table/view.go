// Package table turns a resource page, its query state and its selection into
// a renderable TableView, and renders that view as HTML or terminal output in
// either the wide table layout or the stacked card layout.
package table

import (
	"fmt"

	"github.com/xaviermatuz/formdesk/internal/query"
	"github.com/xaviermatuz/formdesk/internal/selection"
	"github.com/xaviermatuz/formdesk/model"
)

// DefaultEmptyMessage is shown in the placeholder row of an empty table.
const DefaultEmptyMessage = "No items found."

// NoResults is the summary of an empty result set.
const NoResults = "No results found"

// RowRenderer renders the cell of one column for one row. The same callback
// feeds both layouts.
type RowRenderer[R model.Resource] func(row model.Row[R], col model.Column) string

// TextCell renders the raw value of the column.
func TextCell[R model.Resource](row model.Row[R], col model.Column) string {
	return row.Text(col.Key)
}

// Selector is the view of a selection the builder needs.
type Selector[R model.Resource] interface {
	Key(row model.Row[R]) (string, error)
	IsSelectedKey(key string) bool
	Len() int
	AllSelected(rows []model.Row[R]) bool
}

// Input is everything needed to build a TableView.
type Input[R model.Resource] struct {
	Resource     string
	Title        string
	Layout       model.Layout
	Columns      []model.Column
	Items        []model.Row[R]
	State        query.State
	Loading      bool
	Err          error
	Selection    Selector[R]
	Render       RowRenderer[R]
	RowActions   func(row model.Row[R]) []model.ActionDescriptor
	EmptyMessage string
	Filters      []model.FilterDescriptor
	BulkActions  []model.ActionDescriptor
}

// Build resolves the view. Loading and error states are overlays: the rows
// passed in are always rendered, so the last good page stays visible.
func Build[R model.Resource](in Input[R]) model.TableView {
	render := in.Render
	if render == nil {
		render = TextCell[R]
	}
	layout := in.Layout
	if layout == "" {
		layout = model.LayoutTable
	}

	view := model.TableView{
		Resource:        in.Resource,
		Title:           in.Title,
		Layout:          layout,
		Headers:         headers(in.Columns, in.State.Sort),
		Rows:            make([]model.RowView, 0, len(in.Items)),
		Loading:         in.Loading,
		PageSize:        in.State.PageSize,
		PageSizeOptions: append([]int(nil), query.PageSizes...),
		Search:          in.State.Search,
		Filters:         in.Filters,
		BulkActions:     in.BulkActions,
		Summary:         Summary(in.State.Page, in.State.PageSize, in.State.TotalCount),
	}
	if in.Err != nil {
		view.Error = model.MessageOf(in.Err)
	}

	for _, item := range in.Items {
		rv := model.RowView{Cells: make([]model.CellView, 0, len(in.Columns))}
		if in.Selection != nil {
			if key, err := in.Selection.Key(item); err == nil {
				rv.ID = key
				rv.Selected = in.Selection.IsSelectedKey(key)
			}
		} else {
			rv.ID, _ = selection.IDKey(item)
		}
		for _, col := range in.Columns {
			cell := model.CellView{Key: col.Key, Label: col.Label, IsAction: col.IsAction}
			if !col.IsAction {
				cell.Value = render(item, col)
			}
			rv.Cells = append(rv.Cells, cell)
		}
		if in.RowActions != nil {
			rv.Actions = in.RowActions(item)
		}
		view.Rows = append(view.Rows, rv)
	}

	if len(in.Items) == 0 && !in.Loading {
		msg := in.EmptyMessage
		if msg == "" {
			msg = DefaultEmptyMessage
		}
		span := len(in.Columns)
		if in.Selection != nil {
			span++
		}
		view.Empty = &model.EmptyState{Message: msg, ColSpan: span}
	}

	if in.Selection != nil {
		view.Selection = model.SelectionSummary{
			Count:       in.Selection.Len(),
			AllSelected: in.Selection.AllSelected(in.Items),
		}
	}

	if total := in.State.TotalPages(); total > 1 {
		view.Pagination = &model.PaginationView{
			Page:       in.State.Page,
			TotalPages: total,
			HasPrev:    in.State.Page > 1,
			HasNext:    in.State.Page < total,
			Items:      PageNumbers(in.State.Page, total),
		}
	}
	return view
}

func headers(cols []model.Column, sort *model.SortConfig) []model.HeaderCell {
	out := make([]model.HeaderCell, len(cols))
	for i, c := range cols {
		h := model.HeaderCell{Key: c.Key, Label: c.Label, Sortable: !c.IsAction}
		if sort != nil && sort.Key == c.Key && !c.IsAction {
			h.Sort = sort.Direction
			h.Indicator = Indicator(sort.Direction)
		}
		out[i] = h
	}
	return out
}

// Summary renders "Showing a – b of n results", or NoResults for an empty
// set.
func Summary(page, size, total int) string {
	if total <= 0 || size <= 0 {
		return NoResults
	}
	from := (page-1)*size + 1
	to := min(page*size, total)
	if from > total {
		from = total
	}
	return fmt.Sprintf("Showing %d – %d of %d results", from, to, total)
}

