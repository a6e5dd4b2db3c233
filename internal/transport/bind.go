package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/xaviermatuz/formdesk/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// requestValidator returns the shared validator. Field errors name the JSON
// key rather than the Go field.
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		validate = v
	})
	return validate
}

// decodeJSON reads the request body into T and validates it. Unknown keys
// are rejected. Malformed bodies are BAD_REQUEST; failed validation is a
// VALIDATION_ERROR with one detail per field.
func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, model.NewBadRequestError("request body is empty")
		}
		return v, model.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err))
	}
	if err := requestValidator().Struct(v); err != nil {
		return v, validationError(err)
	}
	return v, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewBadRequestError(err.Error())
	}
	details := make([]model.FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		d := model.FieldError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: fieldMessage(fe),
		}
		details = append(details, d)
		msgs = append(msgs, d.Field+": "+d.Message)
	}
	return model.NewValidationError(strings.Join(msgs, " | "), details)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	case "min":
		return "Must be at least " + fe.Param() + "."
	case "max":
		return "Must be at most " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}
