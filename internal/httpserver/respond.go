package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope. Code is one of the
// error kinds in spec §7 (not_found, forbidden, conflict,
// provisioning_failure, invalid_request, timeout, too_many_requests,
// internal_error).
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// RespondErr writes a JSON error response derived from an apperr.Kind,
// falling back to an opaque internal_error for unclassified causes.
func RespondErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	RespondError(w, kind.HTTPStatus(), string(kind), err.Error())
}
