package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

func seedRequest(t *testing.T, db *DB, id string) {
	t.Helper()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	req := &domain.PortingRequest{ID: id, UserID: "user-1", MobileNumber: "9876543210", CreatedAt: now, UpdatedAt: now}
	req.AppendStatus(domain.StatusPending, "submitted", now)
	require.NoError(t, NewPortingRequestRepository(db).Create(context.Background(), req))
}

func TestNotificationRepository_FindDueSkipsSentFailedAndRelay(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedRequest(t, db, "req-1")
	repo := NewNotificationRepository(db)
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.ReplaceUnsent(ctx, "req-1", []domain.Notification{
		{ID: "n-due", RequestID: "req-1", Channel: domain.ChannelSMS, ScheduledFor: now.Add(-time.Hour)},
		{ID: "n-future", RequestID: "req-1", Channel: domain.ChannelEmail, ScheduledFor: now.Add(time.Hour)},
		{ID: "n-relay", RequestID: "req-1", Channel: domain.ChannelMobileSMS, ScheduledFor: now.Add(-time.Hour)},
		{ID: "n-failed", RequestID: "req-1", Channel: domain.ChannelSMS, ScheduledFor: now.Add(-time.Hour)},
	}))
	require.NoError(t, repo.MarkFailed(ctx, "n-failed", "boom", now))

	due, err := repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "n-due", due[0].ID)
	assert.Equal(t, "9876543210", due[0].MobileNumber)

	require.NoError(t, repo.MarkSent(ctx, "n-due", "regional", now))
	assert.ErrorIs(t, repo.MarkSent(ctx, "n-due", "regional", now), domain.ErrNotificationAlreadySent)

	due, err = repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestNotificationRepository_ReplaceUnsentKeepsSent(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedRequest(t, db, "req-1")
	repo := NewNotificationRepository(db)
	at := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.ReplaceUnsent(ctx, "req-1", []domain.Notification{
		{ID: "a", RequestID: "req-1", Channel: domain.ChannelSMS},
		{ID: "b", RequestID: "req-1", Channel: domain.ChannelEmail},
	}))
	require.NoError(t, repo.MarkSent(ctx, "a", "regional", at))
	require.NoError(t, repo.ReplaceUnsent(ctx, "req-1", []domain.Notification{
		{ID: "c", RequestID: "req-1", Channel: domain.ChannelEmail},
	}))

	req, err := NewPortingRequestRepository(db).GetByID(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, req.Notifications, 2)
	assert.Equal(t, "a", req.Notifications[0].ID)
	assert.True(t, req.Notifications[0].Sent)
	assert.Equal(t, "c", req.Notifications[1].ID)
}

func TestNotificationRepository_ReplaceUnsentKeepsParked(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedRequest(t, db, "req-1")
	repo := NewNotificationRepository(db)
	at := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.ReplaceUnsent(ctx, "req-1", []domain.Notification{
		{ID: "a", RequestID: "req-1", Channel: domain.ChannelSMS, ScheduledFor: at},
		{ID: "b", RequestID: "req-1", Channel: domain.ChannelEmail, ScheduledFor: at},
	}))
	require.NoError(t, repo.MarkFailed(ctx, "a", "gateway down", at))
	require.NoError(t, repo.ReplaceUnsent(ctx, "req-1", []domain.Notification{
		{ID: "c", RequestID: "req-1", Channel: domain.ChannelEmail, ScheduledFor: at},
	}))

	parked, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, parked.Sent)
	require.NotNil(t, parked.FailedAt)

	_, err = repo.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	due, err := repo.FindDue(ctx, at, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c", due[0].ID)
}

func TestPortingRequestRepository_AppendStatusGuardsExpected(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedRequest(t, db, "req-1")
	repo := NewPortingRequestRepository(db)
	at := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendStatus(ctx, "req-1", domain.StatusPending, domain.StatusEntry{Status: domain.StatusProcessing, Timestamp: at}))
	err := repo.AppendStatus(ctx, "req-1", domain.StatusPending, domain.StatusEntry{Status: domain.StatusRejected, Timestamp: at})
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	require.NoError(t, repo.SetProviderReference(ctx, "req-1", "REF-1"))
	assert.ErrorIs(t, repo.SetProviderReference(ctx, "req-1", "REF-2"), domain.ErrProviderReferenceSet)

	inFlight, err := repo.FindInFlight(ctx, 10)
	require.NoError(t, err)
	require.Len(t, inFlight, 1)
	assert.Equal(t, "REF-1", inFlight[0].ProviderReferenceID)
	assert.Len(t, inFlight[0].StatusHistory, 2)
}

func TestRelayRepository_CompleteOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRelayRepository(NewDB())
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Enqueue(ctx, &domain.RelayEntry{ID: "r2", UserID: "u", RequestID: "req", Status: domain.RelayPending, CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, repo.Enqueue(ctx, &domain.RelayEntry{ID: "r1", UserID: "u", RequestID: "req", Status: domain.RelayPending, CreatedAt: t0}))

	pending, err := repo.ListPending(ctx, "u")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r1", pending[0].ID)

	require.NoError(t, repo.Complete(ctx, "r1", domain.RelaySent, domain.RelayResult{Success: true, ReportedAt: t0}))
	assert.ErrorIs(t, repo.Complete(ctx, "r1", domain.RelayFailed, domain.RelayResult{ReportedAt: t0}), domain.ErrRelayAlreadyReported)

	n, err := repo.DeletePendingForRequest(ctx, "req")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFailureLogRepository_ResolveOnlyPending(t *testing.T) {
	ctx := context.Background()
	repo := NewFailureLogRepository(NewDB())
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &domain.SMSFailureLog{ID: "f1", AttemptCount: 3, Status: domain.FailurePending}))
	require.NoError(t, repo.RecordRetryFailure(ctx, "f1", 2, domain.FailureError{Code: "503"}, at))

	l, err := repo.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 5, l.AttemptCount)

	require.NoError(t, repo.Resolve(ctx, "f1", domain.FailureResolved, "ops", "done", at))
	assert.ErrorIs(t, repo.Resolve(ctx, "f1", domain.FailureIgnored, "ops", "", at), domain.ErrFailureLogClosed)

	pending, err := repo.List(ctx, domain.FailurePending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
