package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xaviermatuz/formdesk/model"
)

// IdempotencyHeader carries the client's key for create requests.
const IdempotencyHeader = "Idempotency-Key"

type formRequest struct {
	Values map[string]any `json:"values" validate:"required,max=64"`
}

// handleGetForm serves the create form, or with an {id} the edit or view
// form selected by ?mode=.
func handleGetForm(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		form, err := ws.Form(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"), r.URL.Query().Get("mode"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, form)
	}
}

func handleUpdate(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		req, err := decodeJSON[formRequest](r)
		if err != nil {
			WriteError(w, err)
			return
		}
		resp, err := ws.Update(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"), req.Values)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleCreate(ws Workspaces) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		key := r.Header.Get(IdempotencyHeader)
		if len(key) > 128 {
			WriteError(w, model.NewBadRequestError(IdempotencyHeader+" must be at most 128 characters"))
			return
		}
		req, err := decodeJSON[formRequest](r)
		if err != nil {
			WriteError(w, err)
			return
		}
		resp, err := ws.Create(r.Context(), rctx, chi.URLParam(r, "resource"), req.Values, key)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}
