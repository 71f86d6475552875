package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"log/slog"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/public_api_service/middleware"
)

type RelayQueue interface {
	GetPending(ctx context.Context, userID string) ([]*domain.RelayEntry, error)
	ReportResult(ctx context.Context, userID, entryID string, success bool, errMsg string) (*domain.RelayEntry, error)
}

// RelayHandler serves the companion app that sends regulator SMS from the user's phone.
type RelayHandler struct {
	relay    RelayQueue
	logger   *slog.Logger
	validate *validator.Validate
}

func NewRelayHandler(relay RelayQueue, logger *slog.Logger, validate *validator.Validate) *RelayHandler {
	return &RelayHandler{relay: relay, logger: logger.With("handler", "relay"), validate: validate}
}

func (h *RelayHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, logger, "Unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.relay.GetPending(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	if entries == nil {
		entries = []*domain.RelayEntry{}
	}
	writeJSON(w, http.StatusOK, RelayEntriesResponse{Entries: entries})
}

func (h *RelayHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, logger, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var dto RelayResultDTO
	if !decodeAndValidate(w, r, logger, h.validate, &dto) {
		return
	}
	entry, err := h.relay.ReportResult(r.Context(), user.ID, chi.URLParam(r, "id"), *dto.Success, dto.Error)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
