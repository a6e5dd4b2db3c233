package model

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// RequestContext carries the identity decoded from the session credentials
// and the tracing information for the lifetime of a request. It is immutable
// after construction and safe for concurrent reads.
type RequestContext struct {
	SessionID     string
	UserID        string
	Username      string
	Roles         []string
	LastLogin     string
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Validate reports a missing session or user id. Both are needed to key
// per-session state and ownership checks.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SessionID == "" {
		errs = append(errs, errors.New("SessionID is required"))
	}
	if rc.UserID == "" {
		errs = append(errs, errors.New("UserID is required"))
	}
	return errors.Join(errs...)
}

// HasRole reports whether the user holds role, ignoring case.
func (rc *RequestContext) HasRole(role string) bool {
	return slices.ContainsFunc(rc.Roles, func(r string) bool { return strings.EqualFold(r, role) })
}

// Owns reports whether owner, the formatted value of a row's owner field,
// names this user by username or by id.
func (rc *RequestContext) Owns(owner string) bool {
	return owner != "" && (owner == rc.Username || owner == rc.UserID)
}

type contextKey struct{}

// WithRequestContext attaches rctx to ctx.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom returns the RequestContext attached to ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
