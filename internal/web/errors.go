package web

// errors.go turns service errors into JSON responses.
//
// The technical error is logged with the request id; the client gets the
// message, action and code from core.MapError.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/logging"
)

// codeBadRequest marks requests rejected before reaching the service.
const codeBadRequest = "REQ001"

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Action  string              `json:"action,omitempty"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"errors,omitempty"`
}

// respondError logs err and writes the mapped user message. A zero status
// lets statusFor pick one.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	ue := core.NewUserError(err)
	msg := ue.User

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", ue.Technical.Error(),
		"code", msg.Code,
	}
	if status >= 500 {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var vr core.ValidationResult
	if errors.As(err, &vr) {
		resp.Fields = vr.ByField()
	}
	writeJSON(w, status, resp)
}

// badRequest reports a malformed request that never reached the service.
func badRequest(w http.ResponseWriter, r *http.Request, message, code string) {
	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "reason", message)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    code,
	})
}

func statusFor(err error) int {
	var vr core.ValidationResult
	switch {
	case errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, core.ErrGroupNotFound),
		errors.Is(err, core.ErrProgressNotFound):
		return http.StatusNotFound
	case errors.As(err, &vr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
