package apiclient

import (
	"testing"

	"github.com/xaviermatuz/formdesk/model"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"detail", 404, `{"detail":"Not found."}`, model.ErrNotFound, "Not found."},
		{"field list", 400, `{"email":["This field is required."]}`, model.ErrValidationError, "email: This field is required."},
		{"several fields", 400, `{"title":["Too long.","Invalid."],"email":"Bad."}`, model.ErrValidationError, "email: Bad. | title: Too long., Invalid."},
		{"array of objects", 400, `[{"non_field_errors":["x"]},{"a":"y","b":["z"]}]`, model.ErrBadRequest, "x | y, z"},
		{"array of strings", 400, `["one","two"]`, model.ErrBadRequest, "one | two"},
		{"plain string", 500, `"Server exploded"`, model.ErrInternalError, "Server exploded"},
		{"empty body", 502, ``, model.ErrBackendUnavailable, "HTTP 502"},
		{"html body", 500, `<html>oops</html>`, model.ErrInternalError, "HTTP 500"},
		{"empty object", 403, `{}`, model.ErrForbidden, "HTTP 403"},
		{"number", 409, `42`, model.ErrBadRequest, "HTTP 409"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NormalizeError(tt.status, []byte(tt.body))
			if env.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Code, tt.wantCode)
			}
			if env.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", env.Message, tt.wantMsg)
			}
			if env.Status != tt.status {
				t.Errorf("status = %d, want %d", env.Status, tt.status)
			}
		})
	}
}

func TestNormalizeError_fieldDetails(t *testing.T) {
	env := NormalizeError(400, []byte(`{"password":["Too short."],"username":["Taken."]}`))
	if len(env.Details) != 2 {
		t.Fatalf("details = %+v", env.Details)
	}
	if env.Details[0].Field != "password" || env.Details[0].Message != "Too short." {
		t.Errorf("details[0] = %+v", env.Details[0])
	}
}
