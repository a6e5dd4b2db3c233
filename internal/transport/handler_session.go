package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

// Authenticator exchanges user credentials for a token pair.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (apiclient.Credentials, apiclient.Identity, error)
}

// SessionDropper forgets the server-side state of a session.
type SessionDropper interface {
	Drop(sessionID string)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type userResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	LastLogin string   `json:"last_login,omitempty"`
}

type loginResponse struct {
	SessionID string       `json:"session_id"`
	User      userResponse `json:"user"`
}

func sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

func handleLogin(auth Authenticator, store session.Store, cookieName string, ttl time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeJSON[loginRequest](r)
		if err != nil {
			WriteError(w, err)
			return
		}

		creds, id, err := auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			WriteError(w, err)
			return
		}

		sid := uuid.NewString()
		if err := session.SaveCredentials(r.Context(), store, sid, creds); err != nil {
			observability.LoggerFrom(r.Context(), logger).Error("transport: saving session", zap.Error(err))
			WriteError(w, model.NewInternalError())
			return
		}

		http.SetCookie(w, sessionCookie(cookieName, sid, ttl))
		WriteJSON(w, http.StatusCreated, loginResponse{
			SessionID: sid,
			User: userResponse{
				ID:        id.UserID,
				Username:  id.Username,
				Roles:     id.Roles,
				LastLogin: id.LastLogin,
			},
		})
	}
}

func handleLogout(store session.Store, workspaces SessionDropper, cookieName string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		if err := store.Clear(r.Context(), rctx.SessionID); err != nil {
			observability.RequestLogger(r.Context(), logger).Warn("transport: clearing session", zap.Error(err))
		}
		workspaces.Drop(rctx.SessionID)

		expired := sessionCookie(cookieName, "", 0)
		expired.MaxAge = -1
		http.SetCookie(w, expired)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		WriteJSON(w, http.StatusOK, userResponse{
			ID:        rctx.UserID,
			Username:  rctx.Username,
			Roles:     rctx.Roles,
			LastLogin: rctx.LastLogin,
		})
	}
}
