package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"log/slog"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type RulesProvider interface {
	ListRules(ctx context.Context) ([]*domain.PortingRules, error)
	GetRules(ctx context.Context, circle string) (*domain.PortingRules, error)
	ComputeLeadDate(ctx context.Context, endDate time.Time, circle string) (time.Time, error)
	ComputePortingDate(smsDate time.Time, circle string) time.Time
}

type CircleHandler struct {
	rules  RulesProvider
	logger *slog.Logger
}

func NewCircleHandler(rules RulesProvider, logger *slog.Logger) *CircleHandler {
	return &CircleHandler{rules: rules, logger: logger.With("handler", "circle")}
}

func (h *CircleHandler) ListCircles(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	if rules == nil {
		rules = []*domain.PortingRules{}
	}
	writeJSON(w, http.StatusOK, CirclesResponse{Circles: rules})
}

func (h *CircleHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	rules, err := h.rules.GetRules(r.Context(), chi.URLParam(r, "circle"))
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *CircleHandler) GetLeadDate(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	circle := chi.URLParam(r, "circle")
	endDate, err := time.Parse(dateLayout, r.URL.Query().Get("end_date"))
	if err != nil {
		jsonError(w, logger, "end_date query parameter must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	lead, err := h.rules.ComputeLeadDate(r.Context(), endDate, circle)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LeadDateResponse{Circle: circle, EndDate: formatDate(endDate), SMSDate: formatDate(lead)})
}

func (h *CircleHandler) GetPortingDate(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	circle := chi.URLParam(r, "circle")
	smsDate, err := time.Parse(dateLayout, r.URL.Query().Get("sms_date"))
	if err != nil {
		jsonError(w, logger, "sms_date query parameter must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	porting := h.rules.ComputePortingDate(smsDate, circle)
	writeJSON(w, http.StatusOK, PortingDateResponse{Circle: circle, SMSDate: formatDate(smsDate), PortingDate: formatDate(porting)})
}
