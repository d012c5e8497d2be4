package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeTimeout       = "box_timeout"
	ErrCodeBoxError      = "box_error"
	ErrCodeOperationFail = "operation_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCoreError maps an error from the core to a response.
// A box that answered with 401 or 403 is reported as 401 so the UI can
// start the login flow; other box statuses are reported as 502.
func (s *Server) writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *boxsync.HTTPError
	switch {
	case errors.Is(err, boxsync.ErrServiceNotFound), errors.Is(err, boxsync.ErrTagNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, boxsync.ErrInvalidService),
		errors.Is(err, boxsync.ErrInvalidTag),
		errors.Is(err, boxsync.ErrInvalidOperation),
		errors.Is(err, boxsync.ErrBoxIndexOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, boxsync.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, err.Error())
	case errors.Is(err, boxsync.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, boxsync.ErrOperationFailed):
		writeError(w, http.StatusBadGateway, ErrCodeOperationFail, err.Error())
	case errors.As(err, &httpErr):
		if httpErr.Status == http.StatusUnauthorized || httpErr.Status == http.StatusForbidden {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeBoxError, err.Error())
	default:
		s.logger.Error("core request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
