package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
)

const displayDate = "02 Jan 2006"

// SchedulerConfig holds the scheduling policy for reminders.
type SchedulerConfig struct {
	Location           *time.Location
	SendHour           int
	RegulatorShortCode string
	RegulatorKeyword   string
	// SMSTemplateIDs maps a reminder type to a provider-native template.
	SMSTemplateIDs map[domain.NotificationType]string
	// Templates override entries of DefaultTemplates.
	Templates map[domain.NotificationType]Template
}

// Scheduler builds and maintains the notification set of porting requests.
type Scheduler struct {
	requests      repository.PortingRequestRepository
	notifications repository.NotificationRepository
	relay         repository.RelayRepository
	logger        *slog.Logger
	cfg           SchedulerConfig
	locks         *requestLocks
	now           func() time.Time
	newID         func() string
}

func NewScheduler(
	requests repository.PortingRequestRepository,
	notifications repository.NotificationRepository,
	relay repository.RelayRepository,
	logger *slog.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Templates = Catalogue(cfg.Templates)
	if cfg.RegulatorShortCode == "" {
		cfg.RegulatorShortCode = "1900"
	}
	if cfg.RegulatorKeyword == "" {
		cfg.RegulatorKeyword = "PORT"
	}
	return &Scheduler{
		requests:      requests,
		notifications: notifications,
		relay:         relay,
		logger:        logger.With("component", "notification_scheduler"),
		cfg:           cfg,
		locks:         newRequestLocks(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// RegulatorMessage is the literal SMS the user's phone must send to the regulator.
func (s *Scheduler) RegulatorMessage(mobileNumber string) string {
	return s.cfg.RegulatorKeyword + " " + mobileNumber
}

// ScheduleNotifications replaces the unsent notifications of a request with a
// freshly built set. Reminder types that were already delivered, or that are
// parked after exhausted delivery, are not re-created; a parked reminder comes
// back only through an explicit retry.
func (s *Scheduler) ScheduleNotifications(ctx context.Context, requestID string) ([]domain.Notification, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load porting request %s: %w", requestID, err)
	}
	if err := validateDates(req); err != nil {
		return nil, err
	}

	settled := make(map[domain.NotificationType]bool)
	for _, n := range req.Notifications {
		if n.Sent || n.FailedAt != nil {
			settled[n.Type] = true
		}
	}

	var planned []domain.Notification
	for _, n := range s.build(req) {
		if settled[n.Type] {
			continue
		}
		planned = append(planned, n)
	}

	if err := s.notifications.ReplaceUnsent(ctx, req.ID, planned); err != nil {
		return nil, fmt.Errorf("store notifications: %w", err)
	}
	if _, err := s.relay.DeletePendingForRequest(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("clear relay queue: %w", err)
	}
	for _, n := range planned {
		if n.Channel == domain.ChannelMobileSMS {
			if err := s.enqueueRelay(ctx, req, n); err != nil {
				return nil, err
			}
		}
	}

	s.logger.InfoContext(ctx, "Notifications scheduled", "request_id", req.ID, "count", len(planned), "automate", req.AutomatePorting)
	return planned, nil
}

// ToggleAutomation switches regulator-SMS automation on or off. Repeated calls
// with the same value leave at most one unsent mobile_sms notification.
func (s *Scheduler) ToggleAutomation(ctx context.Context, requestID string, enable bool) (*domain.PortingRequest, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load porting request %s: %w", requestID, err)
	}
	if req.Status.IsTerminal() {
		return nil, domain.NewValidationError("status", "automation cannot change on a "+string(req.Status)+" request")
	}

	changed := false
	if req.AutomatePorting != enable {
		if err := s.requests.SetAutomation(ctx, req.ID, enable); err != nil {
			return nil, fmt.Errorf("set automation: %w", err)
		}
		changed = true
	}

	if enable {
		added, err := s.ensureRegulatorSMS(ctx, req)
		if err != nil {
			return nil, err
		}
		changed = changed || added
	} else {
		removed, err := s.notifications.DeleteUnsent(ctx, req.ID, domain.ChannelMobileSMS)
		if err != nil {
			return nil, fmt.Errorf("remove regulator sms: %w", err)
		}
		dequeued, err := s.relay.DeletePendingForRequest(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("clear relay queue: %w", err)
		}
		changed = changed || len(removed) > 0 || dequeued > 0
	}

	if changed {
		note := "Automated porting disabled"
		if enable {
			note = "Automated porting enabled"
		}
		entry := domain.StatusEntry{Status: req.Status, Timestamp: s.now(), Note: note}
		if err := s.requests.AppendStatus(ctx, req.ID, req.Status, entry); err != nil {
			return nil, fmt.Errorf("append automation audit entry: %w", err)
		}
		s.logger.InfoContext(ctx, "Automation toggled", "request_id", req.ID, "enabled", enable)
	}

	return s.requests.GetByID(ctx, req.ID)
}

// ensureRegulatorSMS adds the regulator SMS unless one is pending or already
// relayed. A parked one (the device reported failure) is replaced, which makes
// re-enabling automation the manual retry for the relay channel.
func (s *Scheduler) ensureRegulatorSMS(ctx context.Context, req *domain.PortingRequest) (bool, error) {
	parked := false
	for _, n := range req.Notifications {
		if n.Type != domain.NotificationRegulatorSMS {
			continue
		}
		if n.Sent || n.FailedAt == nil {
			return false, nil
		}
		parked = true
	}
	if err := validateDates(req); err != nil {
		return false, err
	}
	if parked {
		if _, err := s.notifications.DeleteUnsent(ctx, req.ID, domain.ChannelMobileSMS); err != nil {
			return false, fmt.Errorf("remove parked regulator sms: %w", err)
		}
	}

	n := s.regulatorSMS(req, s.now())
	if err := s.notifications.Add(ctx, n); err != nil {
		return false, fmt.Errorf("add regulator sms: %w", err)
	}
	if err := s.enqueueRelay(ctx, req, n); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) enqueueRelay(ctx context.Context, req *domain.PortingRequest, n domain.Notification) error {
	now := s.now()
	entry := &domain.RelayEntry{
		ID:             s.newID(),
		UserID:         req.UserID,
		RequestID:      req.ID,
		NotificationID: n.ID,
		TargetNumber:   n.TargetNumber,
		Message:        n.Message,
		Status:         domain.RelayPending,
		ScheduledFor:   n.ScheduledFor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.relay.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueue relay entry: %w", err)
	}
	return nil
}

func (s *Scheduler) build(req *domain.PortingRequest) []domain.Notification {
	now := s.now()
	vars := s.variables(req)

	ns := []domain.Notification{
		s.fromTemplate(req, domain.NotificationSMSDateReminder, domain.ChannelSMS, s.at(req.SMSDate.AddDate(0, 0, -1)), vars, now),
		s.fromTemplate(req, domain.NotificationSMSDateEmail, domain.ChannelEmail, s.at(req.SMSDate), vars, now),
		s.fromTemplate(req, domain.NotificationPortingVisitSMS, domain.ChannelSMS, s.at(req.ScheduledDate.AddDate(0, 0, -1)), vars, now),
		s.fromTemplate(req, domain.NotificationSIMActivationEmail, domain.ChannelEmail, s.at(req.ScheduledDate), vars, now),
	}
	if req.AutomatePorting {
		ns = append(ns, s.regulatorSMS(req, now))
	}
	return ns
}

func (s *Scheduler) fromTemplate(req *domain.PortingRequest, typ domain.NotificationType, ch domain.Channel, at time.Time, vars map[string]string, now time.Time) domain.Notification {
	tpl := s.cfg.Templates[typ]
	n := domain.Notification{
		ID:           s.newID(),
		RequestID:    req.ID,
		Type:         typ,
		Channel:      ch,
		ScheduledFor: at,
		Subject:      Render(tpl.Subject, vars),
		Message:      Render(tpl.Body, vars),
		CreatedAt:    now,
	}
	if ch == domain.ChannelSMS {
		if id := s.cfg.SMSTemplateIDs[typ]; id != "" {
			n.TemplateID = id
			n.Variables = vars
		}
	}
	return n
}

func (s *Scheduler) regulatorSMS(req *domain.PortingRequest, now time.Time) domain.Notification {
	return domain.Notification{
		ID:           s.newID(),
		RequestID:    req.ID,
		Type:         domain.NotificationRegulatorSMS,
		Channel:      domain.ChannelMobileSMS,
		ScheduledFor: s.at(req.SMSDate),
		Message:      s.RegulatorMessage(req.MobileNumber),
		TargetNumber: s.cfg.RegulatorShortCode,
		CreatedAt:    now,
	}
}

func (s *Scheduler) variables(req *domain.PortingRequest) map[string]string {
	return map[string]string{
		"mobile_number":  req.MobileNumber,
		"reference":      req.ReferenceNumber(),
		"sms_date":       req.SMSDate.Format(displayDate),
		"porting_date":   req.ScheduledDate.Format(displayDate),
		"center_name":    fallback(req.PortingCenter.Name, "your nearest "+req.NewProvider+" store"),
		"center_address": fallback(req.PortingCenter.Address, "address shared in the app"),
		"center_hours":   fallback(req.PortingCenter.Hours, "store hours"),
		"new_provider":   req.NewProvider,
		"short_code":     s.cfg.RegulatorShortCode,
	}
}

// at places a civil date at the configured send hour in the configured zone.
func (s *Scheduler) at(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), s.cfg.SendHour, 0, 0, 0, s.cfg.Location).UTC()
}

func validateDates(req *domain.PortingRequest) error {
	if req.SMSDate.IsZero() || req.ScheduledDate.IsZero() {
		return domain.NewValidationError("sms_date", "sms and porting dates must be computed before scheduling")
	}
	if !req.SMSDate.Before(req.ScheduledDate) {
		return domain.NewValidationError("scheduled_date", "must be after the sms date")
	}
	if strings.TrimSpace(req.MobileNumber) == "" {
		return domain.NewValidationError("mobile_number", "must be set")
	}
	return nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
