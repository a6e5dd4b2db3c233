package workspace

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

// --- Filters ---

func TestTable_translates_filter_values(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/forms/", form(1, "ana", false), form(2, "bob", true))
	ctx := context.Background()
	editor := user("s1", "editor")

	tbl := openTable(t, f.m, editor, "forms", "")
	view := tbl.View(ctx, editor, model.LayoutTable)
	assert.Equal(t, []string{"1"}, rowIDs(view))

	q := f.api.lastGet(t, "/forms/")
	assert.Equal(t, "active", q.Get("state"))
	assert.False(t, q.Has("latest_only"), "default versions option sends no parameter")
	assert.False(t, q.Has("versions"), "UI filter names never reach the API")
	assert.Equal(t, "-created_at", q.Get("ordering"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10", q.Get("page_size"))

	require.NoError(t, tbl.Apply(ctx, editor, StateChange{Filters: map[string]string{"versions": "all", "state": "all"}}))
	view = tbl.View(ctx, editor, model.LayoutTable)
	assert.Equal(t, []string{"1", "2"}, rowIDs(view))

	q = f.api.lastGet(t, "/forms/")
	assert.Equal(t, "false", q.Get("latest_only"))
	assert.Equal(t, "all", q.Get("state"))
}

func TestTable_hidden_filter_uses_default(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := user("s1", "viewer")

	tbl := openTable(t, f.m, viewer, "forms", "")
	err := tbl.Apply(ctx, viewer, StateChange{Filters: map[string]string{"versions": "all"}})
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))

	view := tbl.View(ctx, viewer, model.LayoutTable)
	assert.False(t, f.api.lastGet(t, "/forms/").Has("latest_only"))
	for _, fd := range view.Filters {
		assert.NotEqual(t, "versions", fd.Name)
	}
}

func TestTable_users_filter(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/users/",
		map[string]any{"id": 1, "username": "ana", "is_active": true},
		map[string]any{"id": 2, "username": "bob", "is_active": false},
	)
	ctx := context.Background()
	admin := user("s1", "admin")

	tbl := openTable(t, f.m, admin, "users", "")
	assert.Equal(t, []string{"1"}, rowIDs(tbl.View(ctx, admin, model.LayoutTable)))
	assert.Equal(t, "true", f.api.lastGet(t, "/users/").Get("is_active"))

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Filters: map[string]string{"state": "all"}}))
	assert.Equal(t, []string{"1", "2"}, rowIDs(tbl.View(ctx, admin, model.LayoutTable)))
	assert.False(t, f.api.lastGet(t, "/users/").Has("is_active"))
}

func TestTable_rejects_bad_filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")

	err := tbl.Apply(ctx, admin, StateChange{Filters: map[string]string{"colour": "red"}})
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))

	err = tbl.Apply(ctx, admin, StateChange{Filters: map[string]string{"state": "archived"}})
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))
	assert.Equal(t, "active", tbl.Snapshot().Filters["state"])
}

func TestTable_restores_persisted_filters(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/forms/", form(1, "ana", false), form(2, "bob", true))
	ctx := context.Background()
	editor := user("s1", "editor")

	tbl := openTable(t, f.m, editor, "forms", "")
	require.NoError(t, tbl.Apply(ctx, editor, StateChange{Filters: map[string]string{"state": "deleted", "versions": "all"}}))

	saved, err := session.LoadFilters(ctx, f.store, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"state": "deleted"}, saved["forms"], "only persisted filters are saved")

	other := f.manager(t)
	reopened := openTable(t, other, editor, "forms", "")
	assert.Equal(t, "deleted", reopened.Snapshot().Filters["state"])
	assert.Equal(t, "latest", reopened.Snapshot().Filters["versions"])
	assert.Equal(t, []string{"2"}, rowIDs(reopened.View(ctx, editor, model.LayoutTable)))

	fresh := openTable(t, other, user("s2", "editor"), "forms", "")
	assert.Equal(t, "active", fresh.Snapshot().Filters["state"])
}

// --- Query state ---

func TestTable_sort_page_search(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 25; i++ {
		f.api.seed("/forms/", form(i, "ana", false))
	}
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")

	view := tbl.View(ctx, admin, model.LayoutTable)
	require.NotNil(t, view.Pagination)
	assert.Equal(t, 3, view.Pagination.TotalPages)

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Page: intPtr(3)}))
	assert.Equal(t, 3, tbl.Snapshot().Page)

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{SortKey: "name"}))
	st := tbl.Snapshot()
	assert.Equal(t, &model.SortConfig{Key: "name", Direction: model.SortAsc}, st.Sort)
	assert.Equal(t, 3, st.Page, "sorting keeps the page")

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{SortKey: "name"}))
	assert.Equal(t, model.SortDesc, tbl.Snapshot().Sort.Direction)

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{PageDelta: -1}))
	assert.Equal(t, 2, tbl.Snapshot().Page)

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Page: intPtr(99)}))
	assert.Equal(t, 3, tbl.Snapshot().Page, "page is clamped to the last page")

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{PageSize: intPtr(20)}))
	assert.Equal(t, 1, tbl.Snapshot().Page)
	tbl.View(ctx, admin, model.LayoutTable)
	q := f.api.lastGet(t, "/forms/")
	assert.Equal(t, "20", q.Get("page_size"))
	assert.Equal(t, "-name", q.Get("ordering"))

	err := tbl.Apply(ctx, admin, StateChange{PageSize: intPtr(7)})
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Page: intPtr(2)}))
	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Search: strPtr("Form"), FlushSearch: true}))
	st = tbl.Snapshot()
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, "Form", st.DebouncedSearch)
	tbl.View(ctx, admin, model.LayoutTable)
	assert.Equal(t, "Form", f.api.lastGet(t, "/forms/").Get("search"))

	err = tbl.Apply(ctx, admin, StateChange{SortKey: "nope"})
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))
}

func TestTable_page_jump_before_first_load(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 25; i++ {
		f.api.seed("/forms/", form(i, "ana", i > 22))
	}
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Page: intPtr(2)}))
	assert.Equal(t, 2, tbl.Snapshot().Page)
	view := tbl.View(ctx, admin, model.LayoutTable)
	assert.Equal(t, "2", f.api.lastGet(t, "/forms/").Get("page"))
	assert.Equal(t, []string{"11", "12", "13", "14", "15", "16", "17", "18", "19", "20"}, rowIDs(view))

	// The total follows the new filter before the jump is clamped.
	require.NoError(t, tbl.Apply(ctx, admin, StateChange{
		Filters: map[string]string{"state": "deleted"},
		Page:    intPtr(3),
	}))
	assert.Equal(t, 1, tbl.Snapshot().Page)
}

func TestTable_search_waits_for_debounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")

	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Search: strPtr("abc")}))
	st := tbl.Snapshot()
	assert.Equal(t, "abc", st.Search)
	assert.Empty(t, st.DebouncedSearch)

	tbl.View(ctx, admin, model.LayoutTable)
	assert.False(t, f.api.lastGet(t, "/forms/").Has("search"))
}

// --- Selection ---

func TestTable_selection_and_export(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/forms/", form(1, "ana", false), form(2, "bob", false), form(3, "bob", false))
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")
	tbl.View(ctx, admin, model.LayoutTable)

	_, err := tbl.Export(ctx)
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))

	require.NoError(t, tbl.Select(ctx, SelectToggle, "1"))
	require.NoError(t, tbl.Select(ctx, SelectToggle, "3"))
	assert.Len(t, tbl.Selected(ctx), 2)

	data, err := tbl.Export(ctx)
	require.NoError(t, err)
	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)
	assert.Equal(t, "Form 1", exported[0]["name"])
	assert.Equal(t, "Form 3", exported[1]["name"])
	assert.Contains(t, string(data), "\n  {", "export is indented")

	err = tbl.Select(ctx, SelectToggle, "99")
	assert.Equal(t, model.ErrNotFound, errorCode(t, err))

	require.NoError(t, tbl.Select(ctx, SelectToggle, "1"))
	assert.Len(t, tbl.Selected(ctx), 1)

	require.NoError(t, tbl.Select(ctx, SelectAll, ""))
	view := tbl.View(ctx, admin, model.LayoutTable)
	assert.Equal(t, model.SelectionSummary{Count: 3, AllSelected: true}, view.Selection)

	require.NoError(t, tbl.Select(ctx, SelectClear, ""))
	assert.Empty(t, tbl.Selected(ctx))
	_, err = tbl.Export(ctx)
	require.Error(t, err)
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, NoRowsSelected, env.Message)

	err = tbl.Select(ctx, "invert", "")
	assert.Equal(t, model.ErrBadRequest, errorCode(t, err))
}

func TestTable_selection_follows_loaded_page(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 12; i++ {
		f.api.seed("/forms/", form(i, "ana", false))
	}
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")
	tbl.View(ctx, admin, model.LayoutTable)

	require.NoError(t, tbl.Select(ctx, SelectAll, ""))
	require.NoError(t, tbl.Apply(ctx, admin, StateChange{Page: intPtr(2)}))
	view := tbl.View(ctx, admin, model.LayoutTable)
	assert.Len(t, view.Rows, 2)
	assert.Equal(t, 0, view.Selection.Count)
}

func TestTable_row_and_count(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/forms/", form(1, "ana", false), form(2, "bob", false))
	ctx := context.Background()
	admin := user("s1", "admin")
	tbl := openTable(t, f.m, admin, "forms", "")

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	row, ok := tbl.Row("2")
	require.True(t, ok)
	assert.Equal(t, "bob", row["created_by"])
	_, ok = tbl.Row("5")
	assert.False(t, ok)
}

func TestTable_view_actions(t *testing.T) {
	f := newFixture(t)
	f.api.seed("/forms/", form(1, "ana", false))
	ctx := context.Background()

	viewer := user("s1", "viewer")
	view := openTable(t, f.m, viewer, "forms", "").View(ctx, viewer, model.LayoutCards)
	assert.Equal(t, model.LayoutCards, view.Layout)
	require.Len(t, view.Rows, 1)
	assert.Empty(t, view.Rows[0].Actions)
	require.Len(t, view.BulkActions, 1)
	assert.Equal(t, "/ui/tables/forms/export", view.BulkActions[0].Path)

	editor := user("s2", "editor")
	view = openTable(t, f.m, editor, "forms", "").View(ctx, editor, model.LayoutTable)
	require.Len(t, view.Rows[0].Actions, 2)
	assert.Equal(t, "/ui/resources/forms/1", view.Rows[0].Actions[0].Path)
	assert.Equal(t, "/ui/resources/forms/1/form?mode=edit", view.Rows[0].Actions[1].Form)
	require.Len(t, view.BulkActions, 3)
	assert.Equal(t, "create", view.BulkActions[2].ID)
}
