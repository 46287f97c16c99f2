package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/mailclean/internal/core"
	"github.com/JonMunkholm/mailclean/internal/logging"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

var (
	errFileTooLarge = errors.New("file too large")
	errNoFile       = errors.New("no file provided")
	errNoOutput     = errors.New("run produced no output")
	errBadRequest   = errors.New("invalid request")
)

// ErrorResponse is the JSON body of every API error: a user-facing message,
// a stable code and a suggested action.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

// respondError logs the technical error and returns its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:  msg.Message,
		Code:   msg.Code,
		Action: msg.Action,
	})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRunNotFound), errors.Is(err, errNoOutput):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRunNotFinished):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errNoFile),
		errors.Is(err, tabular.ErrNoEmailColumn),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrRunCancelled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	// Remaining input and validation failures are recognized by their code.
	if code := core.MapError(err).Code; strings.HasPrefix(code, "FILE") || strings.HasPrefix(code, "VAL") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
