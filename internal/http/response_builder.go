package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"churchledger/internal/auth"
	"churchledger/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.data != nil {
		_ = json.NewEncoder(w).Encode(b.data)
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates an error response with a machine-readable code.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(ErrorBody{Error: code, Message: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "unauthenticated", message).
		Header("WWW-Authenticate", `Bearer realm="churchledger"`)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", "internal server error")
}

// ErrorFor maps the error classes to status codes:
// validation 422, not authorized 403, invalid state, duplicate or conflict 409,
// not found 404, store unavailable 503, unauthenticated 401.
func ErrorFor(err error) *JSONResponseBuilder {
	var fieldErr *fieldErrors
	switch {
	case errors.As(err, &fieldErr):
		b := ErrorResponse(http.StatusUnprocessableEntity, "validation", "request failed validation")
		b.data = ErrorBody{Error: "validation", Message: "request failed validation", Fields: fieldErr.fields}
		return b
	case errors.Is(err, auth.ErrUnauthenticated):
		return UnauthorizedError("authentication required")
	case errors.Is(err, core.ErrValidation):
		b := ErrorResponse(http.StatusUnprocessableEntity, "validation", err.Error())
		var ve *core.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			b.data = ErrorBody{Error: "validation", Message: err.Error(), Fields: map[string]string{ve.Field: ve.Reason}}
		}
		return b
	case errors.Is(err, core.ErrNotAuthorized):
		return ErrorResponse(http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, core.ErrAlreadyExists):
		return ErrorResponse(http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, core.ErrConflict):
		return ErrorResponse(http.StatusConflict, "conflict", "the record changed meanwhile; refresh and retry")
	case errors.Is(err, core.ErrInvalidState):
		return ErrorResponse(http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrStoreUnavailable):
		return ErrorResponse(http.StatusServiceUnavailable, "unavailable", "storage is unavailable; try again later").
			Header("Retry-After", "5")
	}
	return InternalServerError()
}
