package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	circles "github.com/numberport/golang_services/internal/calendar_service/domain"
	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	"github.com/numberport/golang_services/internal/platform/messagebroker"
	"github.com/numberport/golang_services/internal/reconciliation_service/adapters/telecom"
)

// DateCalculator derives the porting timeline from circle rules.
type DateCalculator interface {
	ComputeLeadDate(ctx context.Context, endDate time.Time, circle string) (time.Time, error)
	ComputePortingDate(smsDate time.Time, circle string) time.Time
}

// NotificationPlanner builds a request's reminder set.
type NotificationPlanner interface {
	ScheduleNotifications(ctx context.Context, requestID string) ([]domain.Notification, error)
}

// TelecomResolver looks up the porting API of an operator.
type TelecomResolver interface {
	Client(name string) (telecom.Client, error)
}

// SubmitInput is a new porting request as entered by the user.
type SubmitInput struct {
	UserID          string               `validate:"required"`
	ContactEmail    string               `validate:"omitempty,email"`
	MobileNumber    string               `validate:"required,numeric,len=10"`
	CurrentProvider string               `validate:"required,max=64"`
	NewProvider     string               `validate:"required,max=64,nefield=CurrentProvider"`
	Circle          string               `validate:"required,max=64"`
	PlanEndDate     time.Time            `validate:"required"`
	AutomatePorting bool
	UPCCode         string               `validate:"omitempty,alphanum,len=8"`
	PortingCenter   domain.PortingCenter `validate:"-"`
}

type IntakeConfig struct {
	DomesticPrefix  string
	InitiateTimeout time.Duration
}

// IntakeService creates porting requests and drives their administrative transitions.
type IntakeService struct {
	requests      repository.PortingRequestRepository
	notifications repository.NotificationRepository
	relay         repository.RelayRepository
	dates         DateCalculator
	planner       NotificationPlanner
	telecoms      TelecomResolver
	publisher     messagebroker.Publisher
	validate      *validator.Validate
	logger        *slog.Logger
	cfg           IntakeConfig
	now           func() time.Time
	newID         func() string
}

func NewIntakeService(
	requests repository.PortingRequestRepository,
	notifications repository.NotificationRepository,
	relay repository.RelayRepository,
	dates DateCalculator,
	planner NotificationPlanner,
	telecoms TelecomResolver,
	publisher messagebroker.Publisher,
	validate *validator.Validate,
	logger *slog.Logger,
	cfg IntakeConfig,
) *IntakeService {
	if cfg.InitiateTimeout <= 0 {
		cfg.InitiateTimeout = 15 * time.Second
	}
	return &IntakeService{
		requests:      requests,
		notifications: notifications,
		relay:         relay,
		dates:         dates,
		planner:       planner,
		telecoms:      telecoms,
		publisher:     publisher,
		validate:      validate,
		logger:        logger.With("component", "porting_intake"),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Submit validates input, computes the timeline, stores the request and
// schedules its reminders. Once the request is stored it is returned even if
// scheduling fails; the reminders can be rebuilt with ScheduleNotifications.
func (s *IntakeService) Submit(ctx context.Context, in SubmitInput) (*domain.PortingRequest, error) {
	in.MobileNumber = s.nationalNumber(in.MobileNumber)
	in.CurrentProvider = strings.ToLower(strings.TrimSpace(in.CurrentProvider))
	in.NewProvider = strings.ToLower(strings.TrimSpace(in.NewProvider))
	in.UPCCode = strings.ToUpper(strings.TrimSpace(in.UPCCode))
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}

	circle := circles.NormalizeCircle(in.Circle)
	smsDate, err := s.dates.ComputeLeadDate(ctx, in.PlanEndDate, circle)
	if err != nil {
		return nil, err
	}
	today := s.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if smsDate.Before(today) {
		return nil, domain.NewValidationError("plan_end_date", "too close to complete porting before the plan ends")
	}

	now := s.now()
	req := &domain.PortingRequest{
		ID:              s.newID(),
		UserID:          in.UserID,
		ContactEmail:    in.ContactEmail,
		MobileNumber:    in.MobileNumber,
		CurrentProvider: in.CurrentProvider,
		NewProvider:     in.NewProvider,
		Circle:          circle,
		PlanEndDate:     in.PlanEndDate.UTC(),
		SMSDate:         smsDate,
		ScheduledDate:   s.dates.ComputePortingDate(smsDate, circle),
		AutomatePorting: in.AutomatePorting,
		UPCCode:         in.UPCCode,
		PortingCenter:   in.PortingCenter,
		CreatedAt:       now,
	}
	req.AppendStatus(domain.StatusPending, "Porting request submitted", now)

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create porting request: %w", err)
	}
	s.logger.InfoContext(ctx, "Porting request submitted", "request_id", req.ID, "circle", circle, "sms_date", smsDate.Format(time.DateOnly))

	if _, err := s.planner.ScheduleNotifications(ctx, req.ID); err != nil {
		s.logger.WarnContext(ctx, "Porting request stored without reminders", "request_id", req.ID, "error", err)
	}
	stored, err := s.requests.GetByID(ctx, req.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "Reload after submit failed", "request_id", req.ID, "error", err)
		return req, nil
	}
	return stored, nil
}

// InitiatePorting hands a pending request to the recipient operator and
// moves it to processing. The operator reference is stored exactly once.
func (s *IntakeService) InitiatePorting(ctx context.Context, requestID string) (*domain.PortingRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load porting request %s: %w", requestID, err)
	}
	if req.ProviderReferenceID != "" {
		return nil, domain.ErrProviderReferenceSet
	}
	if req.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot initiate a %s request", domain.ErrInvalidTransition, req.Status)
	}

	client, err := s.telecoms.Client(req.NewProvider)
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, s.cfg.InitiateTimeout)
	resp, err := client.Initiate(initCtx, telecom.InitiateRequest{
		RequestID:       req.ID,
		MobileNumber:    req.MobileNumber,
		CurrentProvider: req.CurrentProvider,
		Circle:          req.Circle,
		UPCCode:         req.UPCCode,
		ScheduledDate:   req.ScheduledDate,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("initiate porting with %s: %w", req.NewProvider, err)
	}

	if err := s.requests.SetProviderReference(ctx, req.ID, resp.ReferenceID); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("Porting initiated with %s, reference %s", req.NewProvider, resp.ReferenceID)
	if err := s.transition(ctx, req, domain.StatusProcessing, note); err != nil {
		return nil, err
	}
	return s.requests.GetByID(ctx, req.ID)
}

// Cancel moves a non-terminal request to cancelled and drops its pending reminders.
func (s *IntakeService) Cancel(ctx context.Context, requestID, note string) (*domain.PortingRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load porting request %s: %w", requestID, err)
	}
	if !domain.CanTransition(req.Status, domain.StatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel a %s request", domain.ErrInvalidTransition, req.Status)
	}
	if strings.TrimSpace(note) == "" {
		note = "Cancelled"
	}
	if err := s.transition(ctx, req, domain.StatusCancelled, note); err != nil {
		return nil, err
	}

	for _, ch := range []domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelApp, domain.ChannelMobileSMS} {
		if _, err := s.notifications.DeleteUnsent(ctx, req.ID, ch); err != nil {
			s.logger.ErrorContext(ctx, "Failed to drop unsent notifications", "request_id", req.ID, "channel", ch, "error", err)
		}
	}
	if _, err := s.relay.DeletePendingForRequest(ctx, req.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear relay queue", "request_id", req.ID, "error", err)
	}
	return s.requests.GetByID(ctx, req.ID)
}

func (s *IntakeService) Get(ctx context.Context, requestID string) (*domain.PortingRequest, error) {
	return s.requests.GetByID(ctx, requestID)
}

func (s *IntakeService) transition(ctx context.Context, req *domain.PortingRequest, to domain.Status, note string) error {
	now := s.now()
	if err := s.requests.AppendStatus(ctx, req.ID, req.Status, domain.StatusEntry{Status: to, Timestamp: now, Note: note}); err != nil {
		return fmt.Errorf("append status %s: %w", to, err)
	}
	s.logger.InfoContext(ctx, "Porting status changed", "request_id", req.ID, "from", req.Status, "to", to)
	messagebroker.PublishJSON(ctx, s.publisher, s.logger, messagebroker.SubjectStatusChanged, domain.StatusChangedEvent{
		RequestID:  req.ID,
		UserID:     req.UserID,
		From:       req.Status,
		To:         to,
		Note:       note,
		OccurredAt: now,
	})
	return nil
}

// nationalNumber strips formatting and a leading domestic country code.
func (s *IntakeService) nationalNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if p := s.cfg.DomesticPrefix; p != "" && len(digits) == 10+len(p) && strings.HasPrefix(digits, p) {
		return digits[len(p):]
	}
	return digits
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("", err.Error())
	}
	fe := verrs[0]
	return domain.NewValidationError(toSnake(fe.Field()), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain digits only"
	case "nefield":
		return "must differ from " + toSnake(fe.Param())
	case "alphanum":
		return "must be alphanumeric"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag() + " validation"
}

func toSnake(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
