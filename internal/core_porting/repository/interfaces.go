package repository

import (
	"context"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// PortingRequestRepository persists the PortingRequest aggregate root and its
// append-only status history.
type PortingRequestRepository interface {
	Create(ctx context.Context, req *domain.PortingRequest) error
	// GetByID returns the request with its status history and notifications.
	GetByID(ctx context.Context, id string) (*domain.PortingRequest, error)
	// FindInFlight returns processing/approved requests that carry a provider reference.
	FindInFlight(ctx context.Context, limit int) ([]*domain.PortingRequest, error)
	// AppendStatus atomically appends entry and sets the current status to
	// entry.Status, provided the current status still equals expected.
	// Returns domain.ErrStatusConflict otherwise.
	AppendStatus(ctx context.Context, id string, expected domain.Status, entry domain.StatusEntry) error
	// SetProviderReference stores ref once; domain.ErrProviderReferenceSet if already set.
	SetProviderReference(ctx context.Context, id, ref string) error
	SetAutomation(ctx context.Context, id string, enabled bool) error
}

// NotificationRepository persists the notifications embedded in a request.
type NotificationRepository interface {
	// ReplaceUnsent deletes the unsent, unparked notifications of the request and
	// inserts ns, atomically. Parked rows (FailedAt set) survive.
	ReplaceUnsent(ctx context.Context, requestID string, ns []domain.Notification) error
	Add(ctx context.Context, n domain.Notification) error
	// DeleteUnsent removes unsent notifications on a channel and returns their IDs.
	DeleteUnsent(ctx context.Context, requestID string, ch domain.Channel) ([]string, error)
	// FindDue returns unsent, not failed, non-relay notifications scheduled at or before now.
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.DueNotification, error)
	Get(ctx context.Context, id string) (*domain.DueNotification, error)
	// MarkSent flips sent=false to true; domain.ErrNotificationAlreadySent if it was already sent.
	MarkSent(ctx context.Context, id, provider string, at time.Time) error
	// MarkFailed records the last error and parks the notification out of the due scan.
	MarkFailed(ctx context.Context, id, lastErr string, at time.Time) error
}

// RulesRepository holds per-circle porting rules.
type RulesRepository interface {
	// Get returns the active rule set for a canonical circle key, or domain.ErrNotFound.
	Get(ctx context.Context, circleKey string) (*domain.PortingRules, error)
	Upsert(ctx context.Context, rules *domain.PortingRules) error
	List(ctx context.Context) ([]*domain.PortingRules, error)
}

// RelayRepository is the AutomatedSmsQueue.
type RelayRepository interface {
	Enqueue(ctx context.Context, e *domain.RelayEntry) error
	// ListPending returns pending entries for a user, oldest first.
	ListPending(ctx context.Context, userID string) ([]*domain.RelayEntry, error)
	Get(ctx context.Context, id string) (*domain.RelayEntry, error)
	// Complete moves a pending entry to sent or failed; domain.ErrRelayAlreadyReported otherwise.
	Complete(ctx context.Context, id string, status domain.RelayStatus, result domain.RelayResult) error
	DeletePendingForRequest(ctx context.Context, requestID string) (int, error)
}

// FailureLogRepository stores SMS delivery failures awaiting manual handling.
type FailureLogRepository interface {
	Create(ctx context.Context, l *domain.SMSFailureLog) error
	Get(ctx context.Context, id string) (*domain.SMSFailureLog, error)
	// List filters by status when it is non-empty, newest first.
	List(ctx context.Context, status domain.FailureStatus, limit int) ([]*domain.SMSFailureLog, error)
	// RecordRetryFailure adds attempts to the running count and replaces the stored error.
	RecordRetryFailure(ctx context.Context, id string, attempts int, e domain.FailureError, at time.Time) error
	// Resolve closes a pending entry; domain.ErrFailureLogClosed if it is not pending.
	Resolve(ctx context.Context, id string, status domain.FailureStatus, resolver, note string, at time.Time) error
}
