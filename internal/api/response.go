package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
	"github.com/gyaneshwarpardhi/scenegraph/internal/hierarchy"
	"github.com/gyaneshwarpardhi/scenegraph/internal/merge"
	"github.com/gyaneshwarpardhi/scenegraph/internal/session"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr picks the status code for a domain error.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, hierarchy.ErrCycle):
		return http.StatusConflict
	case errors.Is(err, session.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrDecode),
		errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, document.ErrUnsupportedVersion),
		errors.Is(err, merge.ErrInvalidNode):
		return http.StatusBadRequest
	case errors.Is(err, hierarchy.ErrUnsupportedKind),
		errors.Is(err, merge.ErrUnknownKind),
		errors.Is(err, merge.ErrRoleLimit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
