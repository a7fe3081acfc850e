package web

// errors.go maps service errors to HTTP responses.
//
// Technical details are logged with the request id; clients get the
// catalogue message from core.MapError and a status from statusFor.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/rowstream"
	"github.com/JonMunkholm/sheetimport/internal/spool"
)

// retryAfterSeconds is sent with 503 responses when no run slot is free.
const retryAfterSeconds = "5"

// ErrorResponse is the JSON body of every error response.
// Code is machine-readable; Message and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func newErrorResponse(err error) *ErrorResponse {
	msg := core.MapError(err)
	return &ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := newErrorResponse(err)

	logger := logging.FromContext(r.Context())
	log := logger.Warn
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", body.Code,
	)

	if errors.Is(err, core.ErrTooManyRuns) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, r, status, body)
}

// statusFor picks the HTTP status of an error.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrImporterNotFound), errors.Is(err, spool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidMapping), errors.Is(err, core.ErrDuplicateMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, spool.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, rowstream.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrCallback), errors.Is(err, core.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrRowProcessing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// writeJSON encodes v as the response body. Encoding errors are logged
// since the status is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}

// maxJSONBody bounds request bodies of the JSON endpoints.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &requestError{err: err}
	}
	return nil
}

// requestError is a malformed request body.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }
