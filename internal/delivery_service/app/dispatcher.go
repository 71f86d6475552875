package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	"github.com/numberport/golang_services/internal/delivery_service/provider"
	"github.com/numberport/golang_services/internal/platform/messagebroker"
)

// DispatcherConfig holds the dispatcher's batch policy.
type DispatcherConfig struct {
	BatchSize int
}

// DeliveryFailedEvent is published when a notification exhausts delivery.
type DeliveryFailedEvent struct {
	NotificationID string    `json:"notification_id"`
	RequestID      string    `json:"request_id"`
	Channel        string    `json:"channel"`
	FailureLogID   string    `json:"failure_log_id,omitempty"`
	Error          string    `json:"error"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// DispatchReport summarizes one dispatcher cycle.
type DispatchReport struct {
	Scanned int
	Sent    int
	Failed  int
}

// Dispatcher delivers due notifications over their channel.
type Dispatcher struct {
	notifications repository.NotificationRepository
	failures      repository.FailureLogRepository
	sms           *ChannelSender
	email         provider.EmailProvider
	push          provider.PushProvider
	publisher     messagebroker.Publisher
	logger        *slog.Logger
	cfg           DispatcherConfig
	now           func() time.Time
	newID         func() string
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	failures repository.FailureLogRepository,
	sms *ChannelSender,
	email provider.EmailProvider,
	push provider.PushProvider,
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Dispatcher{
		notifications: notifications,
		failures:      failures,
		sms:           sms,
		email:         email,
		push:          push,
		publisher:     publisher,
		logger:        logger.With("component", "delivery_dispatcher"),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Tick runs one cycle; it matches the ticker callback signature.
func (d *Dispatcher) Tick(ctx context.Context) {
	report, err := d.DispatchDue(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Dispatch cycle failed", "error", err)
		return
	}
	if report.Scanned > 0 {
		d.logger.InfoContext(ctx, "Dispatch cycle complete", "scanned", report.Scanned, "sent", report.Sent, "failed", report.Failed)
	}
}

// DispatchDue delivers every due notification once. A failure on one
// notification never stops the others.
func (d *Dispatcher) DispatchDue(ctx context.Context) (DispatchReport, error) {
	timer := prometheus.NewTimer(dispatchDurationHist)
	defer timer.ObserveDuration()

	due, err := d.notifications.FindDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("find due notifications: %w", err)
	}

	report := DispatchReport{Scanned: len(due)}
	for _, n := range due {
		if ctx.Err() != nil {
			break
		}
		if d.dispatchOne(ctx, n) {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n domain.DueNotification) bool {
	logger := d.logger.With("notification_id", n.ID, "request_id", n.RequestID, "channel", n.Channel)

	providerName, attempts, err := d.deliver(ctx, n)
	if err == nil {
		if err := d.notifications.MarkSent(ctx, n.ID, providerName, d.now()); err != nil {
			if !errors.Is(err, domain.ErrNotificationAlreadySent) {
				// delivered but still unsent in the store, so the next tick sends it again
				markSentErrorsCounter.Inc()
				notificationsDispatchedCounter.WithLabelValues(string(n.Channel), "unrecorded").Inc()
				logger.ErrorContext(ctx, "Failed to mark notification sent", "provider", providerName, "error", err)
				return false
			}
			logger.WarnContext(ctx, "Notification was marked sent concurrently")
		}
		notificationsDispatchedCounter.WithLabelValues(string(n.Channel), "sent").Inc()
		logger.InfoContext(ctx, "Notification delivered", "provider", providerName, "attempts", attempts)
		return true
	}

	notificationsDispatchedCounter.WithLabelValues(string(n.Channel), "failed").Inc()
	logger.WarnContext(ctx, "Notification delivery failed", "attempts", attempts, "error", err)

	if markErr := d.notifications.MarkFailed(ctx, n.ID, err.Error(), d.now()); markErr != nil {
		logger.ErrorContext(ctx, "Failed to mark notification failed", "error", markErr)
	}

	event := DeliveryFailedEvent{
		NotificationID: n.ID,
		RequestID:      n.RequestID,
		Channel:        string(n.Channel),
		Error:          err.Error(),
		OccurredAt:     d.now(),
	}
	if n.Channel == domain.ChannelSMS {
		if entry, logErr := d.logSMSFailure(ctx, n, attempts, err); logErr != nil {
			logger.ErrorContext(ctx, "Failed to write SMS failure log", "error", logErr)
		} else {
			event.FailureLogID = entry.ID
		}
	}
	messagebroker.PublishJSON(ctx, d.publisher, logger, messagebroker.SubjectDeliveryFailed, event)
	return false
}

// deliver sends n over its channel and returns the provider that accepted it.
func (d *Dispatcher) deliver(ctx context.Context, n domain.DueNotification) (string, int, error) {
	switch n.Channel {
	case domain.ChannelSMS:
		out, err := d.sms.Send(ctx, SMSMessage{
			ID:         n.ID,
			To:         n.MobileNumber,
			Message:    n.Message,
			TemplateID: n.TemplateID,
			Variables:  n.Variables,
		})
		return out.Provider, out.Attempts, err

	case domain.ChannelEmail:
		if d.email == nil {
			return "", 0, domain.NewConfigMissingError("email")
		}
		if strings.TrimSpace(n.ContactEmail) == "" {
			return "", 0, &domain.ProviderError{Provider: d.email.GetName(), Code: "NO_ADDRESS", Message: "request has no contact email"}
		}
		_, attempts, err := withRetry(ctx, d.sms.policy, d.sms.sleep, d.email.GetName(), func(ctx context.Context) (string, error) {
			return d.email.Send(ctx, n.ContactEmail, n.Subject, n.Message)
		})
		return d.email.GetName(), attempts, err

	case domain.ChannelApp:
		if d.push == nil {
			return "", 0, domain.NewConfigMissingError("push")
		}
		title := n.Subject
		if title == "" {
			title = "Porting update"
		}
		_, attempts, err := withRetry(ctx, d.sms.policy, d.sms.sleep, d.push.GetName(), func(ctx context.Context) (string, error) {
			return d.push.Send(ctx, n.UserID, title, n.Message)
		})
		return d.push.GetName(), attempts, err
	}
	// mobile_sms is delivered by the user's device through the relay queue.
	return "", 0, &domain.ProviderError{Provider: "router", Code: "UNSUPPORTED_CHANNEL", Message: "channel " + string(n.Channel) + " is not dispatched"}
}

func (d *Dispatcher) logSMSFailure(ctx context.Context, n domain.DueNotification, attempts int, cause error) (*domain.SMSFailureLog, error) {
	now := d.now()
	entry := &domain.SMSFailureLog{
		ID:             d.newID(),
		RequestID:      n.RequestID,
		NotificationID: n.ID,
		PhoneNumber:    n.MobileNumber,
		Message:        n.Message,
		TemplateID:     n.TemplateID,
		Variables:      n.Variables,
		Error:          failureError(cause),
		AttemptCount:   attempts,
		Status:         domain.FailurePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.failures.Create(ctx, entry); err != nil {
		return nil, err
	}
	smsFailuresLoggedCounter.Inc()
	return entry, nil
}

func failureError(err error) domain.FailureError {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return domain.FailureError{Code: pe.Code, Message: pe.Error(), IsNetworkError: pe.IsNetworkError}
	}
	return domain.FailureError{Code: "UNKNOWN", Message: err.Error()}
}
