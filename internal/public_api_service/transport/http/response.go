package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// GenericErrorResponse is the body of every non-2xx API response.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.WarnContext(context.Background(), "API Error Response", "status_code", statusCode, "message", message)
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}

// writeServiceError maps service and store errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	var pe *domain.ProviderError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: ve.Error(), Code: "VALIDATION_ERROR", Field: ve.Field})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, GenericErrorResponse{Error: "not found", Code: "NOT_FOUND"})
	case errors.Is(err, domain.ErrUnknownCircle):
		writeJSON(w, http.StatusNotFound, GenericErrorResponse{Error: err.Error(), Code: "UNKNOWN_CIRCLE"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "forbidden", Code: "FORBIDDEN"})
	case errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrProviderReferenceSet),
		errors.Is(err, domain.ErrRelayAlreadyReported),
		errors.Is(err, domain.ErrFailureLogClosed),
		errors.Is(err, domain.ErrNotificationAlreadySent):
		writeJSON(w, http.StatusConflict, GenericErrorResponse{Error: err.Error(), Code: "CONFLICT"})
	case errors.Is(err, domain.ErrProviderConfigMissing):
		writeJSON(w, http.StatusServiceUnavailable, GenericErrorResponse{Error: err.Error(), Code: "PROVIDER_UNAVAILABLE"})
	case errors.As(err, &pe):
		logger.WarnContext(context.Background(), "Upstream provider error", "provider", pe.Provider, "code", pe.Code, "error", err)
		writeJSON(w, http.StatusBadGateway, GenericErrorResponse{Error: "upstream provider error", Code: "PROVIDER_ERROR", Details: pe.Code})
	default:
		logger.ErrorContext(context.Background(), "Unhandled service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, GenericErrorResponse{Error: "internal server error"})
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v *validator.Validate, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "Validation failed", Code: "VALIDATION_ERROR", Details: err.Error()})
		return false
	}
	return true
}
