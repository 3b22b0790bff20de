package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"churchledger/internal/core"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names, not Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors carries per-field validation failures to the client.
type fieldErrors struct {
	fields map[string]string
}

func (e *fieldErrors) Error() string {
	parts := make([]string, 0, len(e.fields))
	for f, tag := range e.fields {
		parts = append(parts, f+": "+tag)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (e *fieldErrors) Unwrap() error { return core.ErrValidation }

// DecodeJSON reads a size-limited JSON body into dst and validates it.
// Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewValidationError("body", "request body too large")
		}
		return core.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if dec.More() {
		return core.NewValidationError("body", "unexpected data after JSON object")
	}
	return Validate(dst)
}

// Validate runs the struct tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	fe := &fieldErrors{fields: make(map[string]string, len(verrs))}
	for _, ve := range verrs {
		fe.fields[ve.Field()] = ve.Tag()
	}
	return fe
}

// ParseDateRange reads optional from/to query parameters (YYYY-MM-DD).
func ParseDateRange(q url.Values) (from, to core.Date, err error) {
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, core.NewValidationError("from", "expected YYYY-MM-DD")
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, core.NewValidationError("to", "expected YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		return core.Date{}, core.Date{}, core.NewValidationError("to", "end date is before start date")
	}
	return from, to, nil
}
