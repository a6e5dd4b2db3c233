package model

import (
	"fmt"
	"strconv"
)

// Resource is implemented by the marker types that parameterise rows per
// remote collection.
type Resource interface {
	// ResourceKind returns the kind name used in definitions.
	ResourceKind() string
}

// Resource markers.
type (
	Forms       struct{}
	Submissions struct{}
	Users       struct{}
	AuditLogs   struct{}
)

// Resource kind names.
const (
	KindForms       = "forms"
	KindSubmissions = "submissions"
	KindUsers       = "users"
	KindAuditLogs   = "audit_logs"
)

func (Forms) ResourceKind() string       { return KindForms }
func (Submissions) ResourceKind() string { return KindSubmissions }
func (Users) ResourceKind() string       { return KindUsers }
func (AuditLogs) ResourceKind() string   { return KindAuditLogs }

// KnownKinds lists every resource kind the BFF can present.
func KnownKinds() []string {
	return []string{KindForms, KindSubmissions, KindUsers, KindAuditLogs}
}

// Row is one record returned by the remote API for resource R. The table
// layer treats it as an opaque key-value map and never mutates it.
type Row[R Resource] map[string]any

// Value returns the raw value stored under key.
func (r Row[R]) Value(key string) any {
	return r[key]
}

// Text renders the value under key for display. Missing and null values
// render as the empty string.
func (r Row[R]) Text(key string) string {
	return FormatValue(r[key])
}

// Map returns the row as a plain map.
func (r Row[R]) Map() map[string]any {
	return map[string]any(r)
}

// FormatValue renders a decoded JSON value as display text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// Page is the paginated envelope returned by list endpoints.
type Page[R Resource] struct {
	Results []Row[R] `json:"results"`
	Count   int      `json:"count"`
}
