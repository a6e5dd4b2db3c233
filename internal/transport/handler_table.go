package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xaviermatuz/formdesk/internal/table"
	"github.com/xaviermatuz/formdesk/internal/workspace"
	"github.com/xaviermatuz/formdesk/model"
)

// Workspaces is the part of the workspace manager the handlers use.
type Workspaces interface {
	SessionDropper
	Table(ctx context.Context, rctx *model.RequestContext, resource, scope string) (workspace.Table, error)
	Delete(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error)
	Restore(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error)
	BulkDelete(ctx context.Context, rctx *model.RequestContext, resource, scope string) (model.MutationResponse, error)
	Export(ctx context.Context, rctx *model.RequestContext, resource, scope string) ([]byte, error)
	Form(ctx context.Context, rctx *model.RequestContext, resource, id, mode string) (model.FormDescriptor, error)
	Update(ctx context.Context, rctx *model.RequestContext, resource, id string, values map[string]any) (model.MutationResponse, error)
	Create(ctx context.Context, rctx *model.RequestContext, resource string, values map[string]any, idemKey string) (model.MutationResponse, error)
}

type stateRequest struct {
	Page      *int              `json:"page"       validate:"omitempty,min=1"`
	PageDelta int               `json:"page_delta" validate:"min=-1000,max=1000"`
	PageSize  *int              `json:"page_size"  validate:"omitempty,oneof=5 10 20 50 100"`
	Search    *string           `json:"search"     validate:"omitempty,max=200"`
	Flush     bool              `json:"flush"`
	Sort      string            `json:"sort"       validate:"max=64"`
	Filters   map[string]string `json:"filters"    validate:"max=16"`
}

func (s stateRequest) change() workspace.StateChange {
	return workspace.StateChange{
		Page:        s.Page,
		PageDelta:   s.PageDelta,
		PageSize:    s.PageSize,
		Search:      s.Search,
		FlushSearch: s.Flush,
		SortKey:     s.Sort,
		Filters:     s.Filters,
	}
}

type selectionRequest struct {
	Op string `json:"op" validate:"required,oneof=toggle all clear"`
	ID string `json:"id" validate:"required_if=Op toggle,max=4096"`
}

// openTable resolves the request's table: the resource path parameter and
// the optional ?scope= query parameter.
func openTable(ws Workspaces, r *http.Request) (workspace.Table, *model.RequestContext, error) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		return nil, nil, model.NewUnauthorizedError("missing request context")
	}
	t, err := ws.Table(r.Context(), rctx, chi.URLParam(r, "resource"), r.URL.Query().Get("scope"))
	if err != nil {
		return nil, nil, err
	}
	return t, rctx, nil
}

// layoutFrom reads ?layout=table|cards, or picks one from ?width=.
func layoutFrom(r *http.Request) (model.Layout, error) {
	q := r.URL.Query()
	switch l := model.Layout(q.Get("layout")); l {
	case model.LayoutTable, model.LayoutCards:
		return l, nil
	case "":
	default:
		return "", model.NewBadRequestError("layout must be table or cards")
	}
	if w := q.Get("width"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width < 0 {
			return "", model.NewBadRequestError("width must be a non-negative integer")
		}
		return table.ChooseLayout(width), nil
	}
	return model.LayoutTable, nil
}

// writeView responds with the table's current view.
func writeView(w http.ResponseWriter, r *http.Request, t workspace.Table, rctx *model.RequestContext) {
	layout, err := layoutFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t.View(r.Context(), rctx, layout))
}

func handleGetTable(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rctx, err := openTable(ws, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeView(w, r, t, rctx)
	}
}

func handleRenderTable(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rctx, err := openTable(ws, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		layout, err := layoutFrom(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		view := t.View(r.Context(), rctx, layout)
		WriteHTML(w, func(out io.Writer) error { return table.RenderHTML(out, view) })
	}
}

func handlePatchTableState(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rctx, err := openTable(ws, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		req, err := decodeJSON[stateRequest](r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := t.Apply(r.Context(), rctx, req.change()); err != nil {
			WriteError(w, err)
			return
		}
		writeView(w, r, t, rctx)
	}
}

func handleRefetchTable(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rctx, err := openTable(ws, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := t.Refetch(r.Context()); err != nil {
			WriteError(w, err)
			return
		}
		writeView(w, r, t, rctx)
	}
}

func handleSelection(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rctx, err := openTable(ws, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		req, err := decodeJSON[selectionRequest](r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := t.Select(r.Context(), req.Op, req.ID); err != nil {
			WriteError(w, err)
			return
		}
		writeView(w, r, t, rctx)
	}
}

func handleExport(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		data, err := ws.Export(r.Context(), rctx, chi.URLParam(r, "resource"), r.URL.Query().Get("scope"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteAttachment(w, workspace.ExportFilename, data)
	}
}
