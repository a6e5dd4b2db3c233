package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xaviermatuz/formdesk/model"
)

type rowMutation func(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error)

// handleRowMutation serves the delete and restore endpoints of one row.
func handleRowMutation(mutate rowMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		resp, err := mutate(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleBulkDelete(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		resp, err := ws.BulkDelete(r.Context(), rctx, chi.URLParam(r, "resource"), r.URL.Query().Get("scope"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
