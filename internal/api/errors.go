// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Error kinds carried in the "error" field of every error body.
const (
	KindInvalidCredentials = "INVALID_CREDENTIALS"
	KindUserAlreadyExists  = "USER_ALREADY_EXISTS"
	KindInvalidToken       = "INVALID_TOKEN"
	KindValidationFailed   = "VALIDATION_FAILED"
	KindBadRequest         = "BAD_REQUEST"
	KindPayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	KindNotFound           = "NOT_FOUND"
	KindMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	KindInternal           = "INTERNAL_ERROR"
)

const internalMessage = "internal server error"

// ErrorResponse is the body of every non-2xx response. Message is a string,
// or a list of strings for validation failures.
type ErrorResponse struct {
	StatusCode int       `json:"statusCode"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
	Message    any       `json:"message"`
	Error      string    `json:"error"`
}

// requestError is a transport-level failure raised before the service runs.
type requestError struct {
	status   int
	kind     string
	messages []string
}

func (e *requestError) Error() string {
	if len(e.messages) == 0 {
		return e.kind
	}
	return e.messages[0]
}

func badRequest(kind string, messages ...string) error {
	return &requestError{status: http.StatusBadRequest, kind: kind, messages: messages}
}

type errorMapping struct {
	target error
	status int
	kind   string
}

// errorTable maps domain sentinels to responses; first match wins.
func (h *handler) errorTable() []errorMapping {
	return []errorMapping{
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, KindInvalidCredentials},
		{auth.ErrUserAlreadyExists, h.userExistsStatus, KindUserAlreadyExists},
		{auth.ErrInvalidToken, http.StatusUnauthorized, KindInvalidToken},
	}
}

// classify resolves err to a status, kind, and client-safe message.
func (h *handler) classify(err error) (int, string, any) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		if len(reqErr.messages) > 1 || reqErr.kind == KindValidationFailed {
			return reqErr.status, reqErr.kind, reqErr.messages
		}
		return reqErr.status, reqErr.kind, reqErr.Error()
	}
	var valErr *auth.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, KindValidationFailed, []string{valErr.Error()}
	}
	for _, m := range h.errorTable() {
		if errors.Is(err, m.target) {
			return m.status, m.kind, m.target.Error()
		}
	}
	return http.StatusInternalServerError, KindInternal, internalMessage
}

// writeError renders err and logs it: 5xx at error level with full detail,
// everything else at warn.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, message := h.classify(err)

	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status}
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), h.logger, "request failed", err, attrs...)
	} else {
		errutil.Log(r.Context(), h.logger, slog.LevelWarn, "request rejected", err, attrs...)
	}

	h.writeErrorBody(w, r, status, kind, message)
}

func (h *handler) writeErrorBody(w http.ResponseWriter, r *http.Request, status int, kind string, message any) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Timestamp:  h.now().UTC(),
		Path:       r.URL.Path,
		Message:    message,
		Error:      kind,
	})
}
