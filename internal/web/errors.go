package web

// errors.go provides unified error response handling for the web layer.
//
// Every handler error is logged with its technical detail server-side and
// returned to the client as a user-friendly JSON body produced by
// core.MapError, with the HTTP status derived from the error type.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alphaops/contactsync/internal/core"
	"github.com/alphaops/contactsync/internal/mapping"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user
// message with a status derived from the error type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var vErr *core.ValidationError
	var uErr *mapping.UnmappedColumnsError
	var badReq *badRequestError

	switch {
	case errors.Is(err, core.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyRolledBack):
		return http.StatusConflict
	case errors.Is(err, errTooManyImports):
		return http.StatusTooManyRequests
	case errors.As(err, &vErr),
		errors.Is(err, core.ErrInvalidMode),
		errors.Is(err, mapping.ErrNoRecords),
		errors.As(err, &uErr),
		errors.As(err, &badReq):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// badRequestError marks request decoding failures so they map to 400.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
