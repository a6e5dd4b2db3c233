package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/xaviermatuz/formdesk/model"
)

// NormalizeError turns a non-2xx response from the forms API into a single
// envelope whose Message is safe to show inline.
//
//	{"detail": "Not found."}                      -> "Not found."
//	{"email": ["This field is required."]}        -> "email: This field is required."
//	[{"a": "x"}, {"b": "y", "c": "z"}]            -> "x | y, z"
//	"Server exploded"                             -> "Server exploded"
//	anything else                                 -> "HTTP <status>"
//
// Object keys are rendered in sorted order.
func NormalizeError(status int, body []byte) *model.ErrorEnvelope {
	env := &model.ErrorEnvelope{Code: codeForStatus(status), Status: status}

	var payload any
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		env.Message = fmt.Sprintf("HTTP %d", status)
		return env
	}

	switch v := payload.(type) {
	case string:
		env.Message = v
	case map[string]any:
		if detail, ok := v["detail"].(string); ok {
			env.Message = detail
			break
		}
		env.Details = fieldErrors(v)
		parts := make([]string, 0, len(env.Details))
		for _, fe := range env.Details {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		env.Message = strings.Join(parts, " | ")
		if status == http.StatusBadRequest && len(env.Details) > 0 {
			env.Code = model.ErrValidationError
		}
	case []any:
		groups := make([]string, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				groups = append(groups, strings.Join(objectValues(obj), ", "))
				continue
			}
			groups = append(groups, stringify(item))
		}
		env.Message = strings.Join(groups, " | ")
	}

	if env.Message == "" {
		env.Message = fmt.Sprintf("HTTP %d", status)
	}
	return env
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return model.ErrBadRequest
	case status == http.StatusUnauthorized:
		return model.ErrUnauthorized
	case status == http.StatusForbidden:
		return model.ErrForbidden
	case status == http.StatusNotFound:
		return model.ErrNotFound
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return model.ErrBackendUnavailable
	case status == http.StatusGatewayTimeout:
		return model.ErrBackendTimeout
	case status >= 400 && status < 500:
		return model.ErrBadRequest
	}
	return model.ErrInternalError
}

func fieldErrors(obj map[string]any) []model.FieldError {
	keys := sortedKeys(obj)
	out := make([]model.FieldError, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.FieldError{Field: k, Message: messages(obj[k])})
	}
	return out
}

func messages(v any) string {
	list, ok := v.([]any)
	if !ok {
		return stringify(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, stringify(item))
	}
	return strings.Join(parts, ", ")
}

func objectValues(obj map[string]any) []string {
	keys := sortedKeys(obj)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, messages(obj[k]))
	}
	return out
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any:
		return strings.Join(objectValues(t), ", ")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
