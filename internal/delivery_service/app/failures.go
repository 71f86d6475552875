package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// ListFailures returns failure log entries, newest first. An empty status lists all.
func (d *Dispatcher) ListFailures(ctx context.Context, status domain.FailureStatus, limit int) ([]*domain.SMSFailureLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return d.failures.List(ctx, status, limit)
}

// RetryFailedSms re-sends a logged SMS through the normal routing path. On
// success the entry is resolved by the system; otherwise its attempt count
// and last error are updated and the entry stays pending.
func (d *Dispatcher) RetryFailedSms(ctx context.Context, logID string) (*domain.SMSFailureLog, error) {
	entry, err := d.failures.Get(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("load failure log %s: %w", logID, err)
	}
	if entry.Status != domain.FailurePending {
		return nil, domain.ErrFailureLogClosed
	}
	logger := d.logger.With("failure_log_id", entry.ID, "notification_id", entry.NotificationID)

	// Another path may have delivered the notification in the meantime.
	if entry.NotificationID != "" {
		n, err := d.notifications.Get(ctx, entry.NotificationID)
		switch {
		case err == nil && n.Sent:
			if err := d.failures.Resolve(ctx, entry.ID, domain.FailureResolved, domain.SystemRetryResolver, "notification already delivered", d.now()); err != nil {
				return nil, err
			}
			return d.failures.Get(ctx, entry.ID)
		case errors.Is(err, domain.ErrNotFound):
			// cancelled or removed since the failure was logged
			logger.InfoContext(ctx, "Failure log closed, notification no longer scheduled")
			if err := d.failures.Resolve(ctx, entry.ID, domain.FailureIgnored, domain.SystemRetryResolver, "notification no longer scheduled", d.now()); err != nil {
				return nil, err
			}
			return d.failures.Get(ctx, entry.ID)
		case err != nil:
			return nil, fmt.Errorf("load notification %s: %w", entry.NotificationID, err)
		}
	}

	out, sendErr := d.sms.Send(ctx, SMSMessage{
		ID:         entry.NotificationID,
		To:         entry.PhoneNumber,
		Message:    entry.Message,
		TemplateID: entry.TemplateID,
		Variables:  entry.Variables,
	})
	if sendErr != nil {
		logger.WarnContext(ctx, "Manual SMS retry failed", "attempts", out.Attempts, "error", sendErr)
		if err := d.failures.RecordRetryFailure(ctx, entry.ID, out.Attempts, failureError(sendErr), d.now()); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("retry sms: %w", sendErr)
	}

	if entry.NotificationID != "" {
		if err := d.notifications.MarkSent(ctx, entry.NotificationID, out.Provider, d.now()); err != nil &&
			!errors.Is(err, domain.ErrNotificationAlreadySent) && !errors.Is(err, domain.ErrNotFound) {
			logger.ErrorContext(ctx, "Failed to mark notification sent after retry", "error", err)
		}
	}
	note := "delivered via " + out.Provider
	if err := d.failures.Resolve(ctx, entry.ID, domain.FailureResolved, domain.SystemRetryResolver, note, d.now()); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Manual SMS retry delivered", "provider", out.Provider, "attempts", out.Attempts)
	return d.failures.Get(ctx, entry.ID)
}

// ResolveFailure closes a pending entry by hand, as resolved or, when ignore
// is set, as ignored.
func (d *Dispatcher) ResolveFailure(ctx context.Context, logID, resolver, note string, ignore bool) (*domain.SMSFailureLog, error) {
	if resolver == "" {
		return nil, domain.NewValidationError("resolved_by", "must be set")
	}
	status := domain.FailureResolved
	if ignore {
		status = domain.FailureIgnored
	}
	if err := d.failures.Resolve(ctx, logID, status, resolver, note, d.now()); err != nil {
		return nil, err
	}
	return d.failures.Get(ctx, logID)
}
