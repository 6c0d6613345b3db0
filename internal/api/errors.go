// Package api provides the HTTP handlers and error envelope for the
// payment gateway.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/remip/satgate/internal/middleware"
)

// Internal error codes attached to the request context for the logging
// middleware. They are never exposed to clients: the public envelope is a
// single human-readable error string.
const (
	ErrCodeValidation       = "validation_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeSignatureInvalid = "signature_invalid"
	ErrCodeUpstreamFailure  = "upstream_failure"
	ErrCodeStorageFailure   = "storage_failure"
	ErrCodeConflict         = "conflict"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the public error envelope: {"error": "<message>"}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes the error envelope with the given HTTP status and
// records the internal error code on the context for the logging
// middleware. Messages must be safe for clients: upstream and storage
// causes are logged at the call site, never placed in the envelope.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{Error: message})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		middleware.UpdateResponseContext(w, ctx)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeJSON writes a JSON success body with the given status.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
