package memory

import (
	"context"
	"sort"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ReplaceUnsent(ctx context.Context, requestID string, ns []domain.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, sn := range r.db.notifications {
		if sn.n.RequestID == requestID && !sn.n.Sent && sn.n.FailedAt == nil {
			delete(r.db.notifications, id)
		}
	}
	for _, n := range ns {
		r.db.notifications[n.ID] = &storedNotification{seq: r.db.next(), n: cloneNotification(n)}
	}
	return nil
}

func (r *NotificationRepository) Add(ctx context.Context, n domain.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.notifications[n.ID] = &storedNotification{seq: r.db.next(), n: cloneNotification(n)}
	return nil
}

func (r *NotificationRepository) DeleteUnsent(ctx context.Context, requestID string, ch domain.Channel) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var ids []string
	for id, sn := range r.db.notifications {
		if sn.n.RequestID == requestID && sn.n.Channel == ch && !sn.n.Sent {
			ids = append(ids, id)
			delete(r.db.notifications, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *NotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.DueNotification, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var due []*storedNotification
	for _, sn := range r.db.notifications {
		n := sn.n
		if n.Sent || n.FailedAt != nil || n.Channel == domain.ChannelMobileSMS || n.ScheduledFor.After(now) {
			continue
		}
		due = append(due, sn)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].n.ScheduledFor.Equal(due[j].n.ScheduledFor) {
			return due[i].seq < due[j].seq
		}
		return due[i].n.ScheduledFor.Before(due[j].n.ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.DueNotification, 0, len(due))
	for _, sn := range due {
		out = append(out, r.db.join(sn.n))
	}
	return out, nil
}

func (r *NotificationRepository) Get(ctx context.Context, id string) (*domain.DueNotification, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sn, ok := r.db.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	dn := r.db.join(sn.n)
	return &dn, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id, provider string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sn, ok := r.db.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sn.n.Sent {
		return domain.ErrNotificationAlreadySent
	}
	sentAt := at
	sn.n.Sent = true
	sn.n.SentAt = &sentAt
	sn.n.Provider = provider
	sn.n.LastError = ""
	sn.n.FailedAt = nil
	return nil
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id, lastErr string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sn, ok := r.db.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sn.n.Sent {
		return domain.ErrNotificationAlreadySent
	}
	failedAt := at
	sn.n.LastError = lastErr
	sn.n.FailedAt = &failedAt
	return nil
}

func (db *DB) join(n domain.Notification) domain.DueNotification {
	dn := domain.DueNotification{Notification: cloneNotification(n)}
	if req, ok := db.requests[n.RequestID]; ok {
		dn.UserID = req.UserID
		dn.MobileNumber = req.MobileNumber
		dn.ContactEmail = req.ContactEmail
	}
	return dn
}
