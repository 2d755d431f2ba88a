package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"aetherflow/internal/connectearth"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/middleware/trace"
	"aetherflow/internal/services"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation  = "validation_failed"
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeUpstream    = "upstream_failed"
	CodeUnavailable = "upstream_unavailable"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

// classify maps a service error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case core.IsValidation(err), errors.Is(err, services.ErrUnknownChallenge):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, services.ErrDietInProgress):
		return http.StatusConflict, CodeConflict
	case connectearth.IsUnavailable(err):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, connectearth.ErrUpstream):
		return http.StatusBadGateway, CodeUpstream
	}
	return http.StatusInternalServerError, CodeInternal
}

// errorType labels err for log aggregation.
func errorType(err error, status int) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	case status == http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case status == http.StatusNotFound:
		return log.ErrorTypeNotFound
	case status == http.StatusConflict:
		return log.ErrorTypeConflict
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return log.ErrorTypeUpstream
	}
	return log.ErrorTypeInternal
}

// writeServiceError logs and writes err. Internal failures are not echoed
// back to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	logger := log.FromContext(r.Context())

	msg := err.Error()
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op, log.FieldStatusCode, status,
			log.FieldErrorType, errorType(err, status), log.FieldError, err.Error())
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
	default:
		logger.WarnContext(r.Context(), "Request rejected",
			log.FieldOperation, op, log.FieldStatusCode, status,
			log.FieldErrorType, errorType(err, status), log.FieldError, err.Error())
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeError(w, r, status, code, msg)
}
