package transport

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/model"
)

// SessionHeader carries the session id for clients that do not use cookies.
const SessionHeader = "X-Session-Id"

// SessionIDFrom reads the session id from the X-Session-Id header, falling
// back to the session cookie.
func SessionIDFrom(r *http.Request, cookieName string) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionAuthenticator returns middleware that loads the session's
// credentials and builds the RequestContext from the access token's claims.
// The token is not verified here: the forms API verifies it on every call.
func SessionAuthenticator(store session.Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sid := SessionIDFrom(r, cookieName)
			if sid == "" {
				WriteError(w, model.NewUnauthorizedError("Authentication required"))
				return
			}

			creds, err := session.LoadCredentials(ctx, store, sid)
			if errors.Is(err, session.ErrNoSession) {
				WriteError(w, model.NewUnauthorizedError("Session expired, please log in again"))
				return
			}
			if err != nil {
				observability.LoggerFrom(ctx, zap.NewNop()).Error("transport: loading session", zap.Error(err))
				WriteError(w, fmt.Errorf("transport: loading session: %w", err))
				return
			}

			id, err := apiclient.DecodeClaims(creds.Access)
			if err != nil {
				WriteError(w, model.NewUnauthorizedError("Invalid session credentials"))
				return
			}

			traceID, spanID := observability.SpanIDs(ctx)
			rctx := &model.RequestContext{
				SessionID:     sid,
				UserID:        id.UserID,
				Username:      id.Username,
				Roles:         id.Roles,
				LastLogin:     id.LastLogin,
				Claims:        id.Claims,
				CorrelationID: CorrelationIDFrom(ctx),
				TraceID:       traceID,
				SpanID:        spanID,
			}
			if err := rctx.Validate(); err != nil {
				WriteError(w, model.NewUnauthorizedError("Invalid session credentials"))
				return
			}

			next.ServeHTTP(w, r.WithContext(model.WithRequestContext(ctx, rctx)))
		})
	}
}
