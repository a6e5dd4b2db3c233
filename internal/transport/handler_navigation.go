package transport

import (
	"net/http"

	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/model"
)

func handleNavigation(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		WriteJSON(w, http.StatusOK, menu.GetMenu(r.Context(), rctx))
	}
}
