package httpapi

import (
	"encoding/json"
	"net/http"

	"evald/internal/backend"
	"evald/internal/config"
	"evald/internal/plan"
	"evald/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known planner and backend errors to HTTP codes.
// Configuration and planning mistakes are the caller's to fix (400); a
// missing replica engine is a service condition (503).
func statusForError(err error) int {
	switch {
	case config.IsUnrecognizedOption(err), config.IsInvalidOptionValue(err), config.IsOutOfRangeOption(err):
		return http.StatusBadRequest
	case plan.IsInsufficientDevices(err), plan.IsUnsupportedParallelism(err):
		return http.StatusBadRequest
	case backend.IsEngineUnavailable(err), backend.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
