package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"log/slog"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	portingapp "github.com/numberport/golang_services/internal/porting_service/app"
	"github.com/numberport/golang_services/internal/public_api_service/middleware"
	recapp "github.com/numberport/golang_services/internal/reconciliation_service/app"
)

// PortingService is the intake surface the handler drives.
type PortingService interface {
	Submit(ctx context.Context, in portingapp.SubmitInput) (*domain.PortingRequest, error)
	Get(ctx context.Context, requestID string) (*domain.PortingRequest, error)
	InitiatePorting(ctx context.Context, requestID string) (*domain.PortingRequest, error)
	Cancel(ctx context.Context, requestID, note string) (*domain.PortingRequest, error)
}

type NotificationScheduler interface {
	ScheduleNotifications(ctx context.Context, requestID string) ([]domain.Notification, error)
	ToggleAutomation(ctx context.Context, requestID string, enable bool) (*domain.PortingRequest, error)
}

type StatusChecker interface {
	CheckProviderStatus(ctx context.Context, requestID string) (*recapp.CheckResult, error)
}

type PortingHandler struct {
	porting   PortingService
	scheduler NotificationScheduler
	checker   StatusChecker
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewPortingHandler(porting PortingService, scheduler NotificationScheduler, checker StatusChecker, logger *slog.Logger, validate *validator.Validate) *PortingHandler {
	return &PortingHandler{
		porting:   porting,
		scheduler: scheduler,
		checker:   checker,
		logger:    logger.With("handler", "porting"),
		validate:  validate,
	}
}

// authorize loads the request named in the URL and checks the caller owns it.
// Admins may act on any request.
func (h *PortingHandler) authorize(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*domain.PortingRequest, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, logger, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	id := chi.URLParam(r, "id")
	req, err := h.porting.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, logger, err)
		return nil, false
	}
	if req.UserID != user.ID && !user.IsAdmin {
		logger.WarnContext(r.Context(), "Porting request access denied", "request_id", id, "user_id", user.ID)
		writeServiceError(w, logger, domain.ErrForbidden)
		return nil, false
	}
	return req, true
}

func (h *PortingHandler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
}

func (h *PortingHandler) CreatePortingRequest(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, logger, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto CreatePortingRequestDTO
	if !decodeAndValidate(w, r, logger, h.validate, &dto) {
		return
	}
	endDate, err := time.Parse(dateLayout, dto.PlanEndDate)
	if err != nil {
		jsonError(w, logger, "plan_end_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	in := portingapp.SubmitInput{
		UserID:          user.ID,
		ContactEmail:    strings.TrimSpace(dto.ContactEmail),
		MobileNumber:    dto.MobileNumber,
		CurrentProvider: dto.CurrentProvider,
		NewProvider:     dto.NewProvider,
		Circle:          dto.Circle,
		PlanEndDate:     endDate,
		AutomatePorting: dto.AutomatePorting,
		UPCCode:         dto.UPCCode,
	}
	if dto.PortingCenter != nil {
		in.PortingCenter = domain.PortingCenter{Name: dto.PortingCenter.Name, Address: dto.PortingCenter.Address, Hours: dto.PortingCenter.Hours}
	}

	req, err := h.porting.Submit(r.Context(), in)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	logger.InfoContext(r.Context(), "Porting request created", "porting_request_id", req.ID, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, newPortingRequestResponse(req))
}

func (h *PortingHandler) GetPortingRequest(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, ok := h.authorize(w, r, logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newPortingRequestResponse(req))
}

func (h *PortingHandler) ScheduleNotifications(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, ok := h.authorize(w, r, logger)
	if !ok {
		return
	}
	ns, err := h.scheduler.ScheduleNotifications(r.Context(), req.ID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	if ns == nil {
		ns = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{RequestID: req.ID, Notifications: ns})
}

func (h *PortingHandler) ToggleAutomation(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, ok := h.authorize(w, r, logger)
	if !ok {
		return
	}
	var dto AutomationRequestDTO
	if !decodeAndValidate(w, r, logger, h.validate, &dto) {
		return
	}
	updated, err := h.scheduler.ToggleAutomation(r.Context(), req.ID, *dto.Enabled)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortingRequestResponse(updated))
}

func (h *PortingHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, ok := h.authorize(w, r, logger)
	if !ok {
		return
	}
	res, err := h.checker.CheckProviderStatus(r.Context(), req.ID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InitiatePorting is mounted behind AdminOnly.
func (h *PortingHandler) InitiatePorting(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, err := h.porting.InitiatePorting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	logger.InfoContext(r.Context(), "Porting initiated", "porting_request_id", req.ID, "provider_reference_id", req.ProviderReferenceID)
	writeJSON(w, http.StatusOK, newPortingRequestResponse(req))
}

func (h *PortingHandler) CancelPortingRequest(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	req, ok := h.authorize(w, r, logger)
	if !ok {
		return
	}
	var dto CancelRequestDTO
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, logger, h.validate, &dto) {
			return
		}
	}
	note := dto.Note
	if note == "" {
		note = "Cancelled by user"
	}
	updated, err := h.porting.Cancel(r.Context(), req.ID, note)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortingRequestResponse(updated))
}
