package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
	"github.com/Nithesh414/Bloom-Alert/internal/service"
	"github.com/Nithesh414/Bloom-Alert/internal/store"
	"github.com/Nithesh414/Bloom-Alert/internal/upload"
	"github.com/Nithesh414/Bloom-Alert/internal/validation"
)

// Error codes used in the JSON error body.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeMalformedInput      = "MALFORMED_INPUT"
	CodeInvalidFileType     = "INVALID_FILE_TYPE"
	CodeNoFileSelected      = "NO_FILE_SELECTED"
	CodeNotFound            = "NOT_FOUND"
	CodeConfigurationError  = "CONFIGURATION_ERROR"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId"`
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// optional details and the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps a domain error to its HTTP status and error code.
// Unrecognized errors are logged and answered with 500 INTERNAL.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, validation.ErrMalformedInput):
		writeError(w, r, http.StatusBadRequest, CodeMalformedInput, "Malformed input", err.Error())
	case errors.Is(err, upload.ErrInvalidFileType):
		writeError(w, r, http.StatusBadRequest, CodeInvalidFileType, "Invalid file type", "allowed: png, jpg, jpeg, gif")
	case errors.Is(err, upload.ErrNoFileSelected):
		writeError(w, r, http.StatusBadRequest, CodeNoFileSelected, "No file selected", "")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "Record not found", "")
	case errors.Is(err, auth.ErrNoSession):
		writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "Login required", "")
	case errors.Is(err, service.ErrConfiguration):
		logger.Debug("weather provider not configured")
		writeError(w, r, http.StatusInternalServerError, CodeConfigurationError, "OpenWeather API key not configured", "")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		logger.Debug("upstream error", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, CodeUpstreamUnavailable, "Unable to fetch weather data", service.UpstreamDetails(err))
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "Internal server error", "")
	}
}
