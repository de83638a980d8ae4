// Package http exposes the challenge service as a JSON API.
//
// This file implements the builder used for every JSON response and the
// mapping from domain errors to error envelopes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
	"envelopes/internal/store"
)

// Error envelope codes.
const (
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeConflict        = "conflict"
	CodeTooManyRequests = "too_many_requests"
	CodeInternal        = "internal"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal","message":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse builds an error envelope carrying the request id of r.
func ErrorResponse(r *http.Request, status int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(status).
		Body(ErrorBody{Code: code, Message: message, RequestID: middleware.GetReqID(r.Context())})
}

// BadRequestError creates a 400 error envelope.
func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, CodeBadRequest, message)
}

// NotFoundError creates a 404 error envelope.
func NotFoundError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusNotFound, CodeNotFound, message)
}

// InternalServerError creates a 500 error envelope.
func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// classify maps a service error onto a status and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, core.ErrEnvelopeNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, services.ErrInvalidSyncCode),
		errors.Is(err, core.ErrInvalidDays),
		errors.Is(err, core.ErrInvalidTarget),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrUnknownDistribution):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, services.ErrNoRemote):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeServiceError writes the envelope for err. Internal errors are logged
// and their text is not exposed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if code == CodeInternal {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		InternalServerError(r).Write(w)
		return
	}
	ErrorResponse(r, status, code, err.Error()).Write(w)
}
