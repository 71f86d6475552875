package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"log/slog"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/public_api_service/middleware"
)

const (
	defaultFailureListLimit = 50
	maxFailureListLimit     = 500
)

type FailureManager interface {
	ListFailures(ctx context.Context, status domain.FailureStatus, limit int) ([]*domain.SMSFailureLog, error)
	RetryFailedSms(ctx context.Context, logID string) (*domain.SMSFailureLog, error)
	ResolveFailure(ctx context.Context, logID, resolver, note string, ignore bool) (*domain.SMSFailureLog, error)
}

// FailureHandler is the admin surface over the SMS failure log. Mounted behind AdminOnly.
type FailureHandler struct {
	failures FailureManager
	logger   *slog.Logger
	validate *validator.Validate
}

func NewFailureHandler(failures FailureManager, logger *slog.Logger, validate *validator.Validate) *FailureHandler {
	return &FailureHandler{failures: failures, logger: logger.With("handler", "sms_failures"), validate: validate}
}

func (h *FailureHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))

	status := domain.FailureStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.FailurePending, domain.FailureResolved, domain.FailureIgnored:
	default:
		jsonError(w, logger, "status must be one of pending, resolved, ignored", http.StatusBadRequest)
		return
	}

	limit := defaultFailureListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, logger, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxFailureListLimit)
	}

	logs, err := h.failures.ListFailures(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	if logs == nil {
		logs = []*domain.SMSFailureLog{}
	}
	writeJSON(w, http.StatusOK, FailureLogsResponse{Failures: logs})
}

func (h *FailureHandler) RetryFailure(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	id := chi.URLParam(r, "id")
	entry, err := h.failures.RetryFailedSms(r.Context(), id)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	logger.InfoContext(r.Context(), "Manual SMS retry processed", "failure_log_id", id, "status", entry.Status)
	writeJSON(w, http.StatusOK, entry)
}

func (h *FailureHandler) ResolveFailure(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, logger, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var dto ResolveFailureDTO
	if !decodeAndValidate(w, r, logger, h.validate, &dto) {
		return
	}
	entry, err := h.failures.ResolveFailure(r.Context(), chi.URLParam(r, "id"), user.Username, dto.Note, dto.Ignore)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
