package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	"github.com/numberport/golang_services/internal/delivery_service/provider"
	notifapp "github.com/numberport/golang_services/internal/notification_service/app"
)

var fixedNow = time.Date(2024, 3, 11, 5, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type mockEmail struct {
	calls int
	to    string
}

func (m *mockEmail) Send(_ context.Context, to, _, _ string) (string, error) {
	m.calls++
	m.to = to
	return fmt.Sprintf("em-%d", m.calls), nil
}

func (m *mockEmail) GetName() string { return "email-mock" }

type fixture struct {
	store      *repository.Store
	primary    *provider.MockSMSProvider
	secondary  *provider.MockTemplateSMSProvider
	email      *mockEmail
	publisher  *recordingPublisher
	sender     *ChannelSender
	dispatcher *Dispatcher
	delays     []time.Duration
}

func testPolicy() RetryPolicy {
	return NewRetryPolicy(3, time.Second, time.Second, []string{"503", "30001"})
}

func newFixture(t *testing.T, withPrimary bool) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(),
		secondary: provider.NewMockTemplateSMSProvider("regional", discardLogger()),
		email:     &mockEmail{},
		publisher: &recordingPublisher{},
	}
	var primary provider.SMSSenderProvider
	if withPrimary {
		f.primary = provider.NewMockSMSProvider("transactional", discardLogger(), 0)
		primary = f.primary
	}
	f.sender = NewChannelSender(primary, f.secondary, "91", testPolicy(), discardLogger())
	f.sender.sleep = func(_ context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return nil
	}
	f.dispatcher = NewDispatcher(f.store.Notifications, f.store.Failures, f.sender, f.email, nil, f.publisher, discardLogger(), DispatcherConfig{BatchSize: 10})
	f.dispatcher.now = func() time.Time { return fixedNow }
	seq := 0
	f.dispatcher.newID = func() string {
		seq++
		return fmt.Sprintf("log-%d", seq)
	}
	return f
}

func (f *fixture) seed(t *testing.T, mobile string, ns ...domain.Notification) {
	t.Helper()
	ctx := context.Background()
	req := &domain.PortingRequest{
		ID:            "req-1",
		UserID:        "user-1",
		ContactEmail:  "user@example.com",
		MobileNumber:  mobile,
		Circle:        "delhi",
		SMSDate:       time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		ScheduledDate: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	req.AppendStatus(domain.StatusPending, "Request submitted", fixedNow)
	require.NoError(t, f.store.Requests.Create(ctx, req))
	require.NoError(t, f.store.Notifications.ReplaceUnsent(ctx, req.ID, ns))
}

func smsNotification(id string) domain.Notification {
	return domain.Notification{
		ID:           id,
		RequestID:    "req-1",
		Type:         domain.NotificationSMSDateReminder,
		Channel:      domain.ChannelSMS,
		ScheduledFor: fixedNow.Add(-time.Minute),
		Message:      "Reminder: send PORT 9876543210 to 1900",
		CreatedAt:    fixedNow,
	}
}

func retryable503() error {
	return &domain.ProviderError{Provider: "regional", Code: "503", Message: "unavailable"}
}

func TestChannelSender_DomesticWithPrimaryMissingRoutesToSecondary(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "9876543210", smsNotification("n-1"))

	report, err := f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Scanned: 1, Sent: 1}, report)

	sent := f.secondary.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "919876543210", sent[0].Recipient)

	logs, err := f.store.Failures.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	n, err := f.store.Notifications.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.True(t, n.Sent)
	assert.Equal(t, "regional", n.Provider)
}

func TestDispatcher_RetryableFailureExhaustsAndLogsOnce(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "+91 98765 43210", smsNotification("n-1"))
	f.secondary.FailNext(retryable503(), retryable503(), retryable503())

	report, err := f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, f.secondary.Calls())
	assert.Equal(t, 0, f.primary.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)

	logs, err := f.store.Failures.List(context.Background(), domain.FailurePending, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].AttemptCount)
	assert.Equal(t, "503", logs[0].Error.Code)
	assert.Equal(t, "n-1", logs[0].NotificationID)

	n, err := f.store.Notifications.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.False(t, n.Sent)
	assert.NotNil(t, n.FailedAt)

	// parked notifications are not picked up again
	report, err = f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, []string{"porting.delivery.failed"}, f.publisher.Subjects())
}

func TestChannelSender_PermanentErrorStopsImmediately(t *testing.T) {
	f := newFixture(t, true)
	f.secondary.FailNext(&domain.ProviderError{Provider: "regional", Code: "400", Message: "bad number"})

	out, err := f.sender.Send(context.Background(), SMSMessage{ID: "x", To: "9876543210", Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderPermanent)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, f.delays)
}

func TestChannelSender_InternationalUsesPrimaryWithoutFallback(t *testing.T) {
	f := newFixture(t, true)
	f.primary.FailNext(&domain.ProviderError{Provider: "transactional", Code: "21211", Message: "invalid"})

	out, err := f.sender.Send(context.Background(), SMSMessage{ID: "x", To: "+44 7700 900123", Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 0, f.secondary.Calls())
	require.Len(t, f.primary.Sent(), 1)
	assert.Equal(t, "+447700900123", f.primary.Sent()[0].Recipient)
}

func TestChannelSender_InternationalWithoutPrimaryIsConfigMissing(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.sender.Send(context.Background(), SMSMessage{ID: "x", To: "+14155550100", Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrProviderConfigMissing)
	assert.ErrorIs(t, err, domain.ErrProviderPermanent)
	assert.Equal(t, 0, f.secondary.Calls())
}

func TestChannelSender_TemplateFailureFallsBackToPlainText(t *testing.T) {
	f := newFixture(t, false)
	f.secondary.FailNext(&domain.ProviderError{Provider: "regional", Code: "TEMPLATE_REJECTED", Message: "unknown template"})

	out, err := f.sender.Send(context.Background(), SMSMessage{
		ID:         "x",
		To:         "9876543210",
		Message:    "rendered text",
		TemplateID: "tpl-1",
		Variables:  map[string]string{"reference": "PRT-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "regional", out.Provider)
	require.Len(t, f.secondary.Templated(), 1)
	require.Len(t, f.secondary.Sent(), 1)
	assert.Equal(t, "rendered text", f.secondary.Sent()[0].Content)
}

func TestChannelSender_InvalidDestination(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.sender.Send(context.Background(), SMSMessage{To: "12-34"})
	assert.ErrorIs(t, err, domain.ErrProviderPermanent)
	assert.Equal(t, 0, f.secondary.Calls())
}

func TestDispatcher_EmailChannel(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "9876543210", domain.Notification{
		ID:           "n-mail",
		RequestID:    "req-1",
		Type:         domain.NotificationSMSDateEmail,
		Channel:      domain.ChannelEmail,
		ScheduledFor: fixedNow,
		Subject:      "Today",
		Message:      "<p>hi</p>",
	})

	report, err := f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, "user@example.com", f.email.to)

	// sent notifications are never delivered twice
	report, err = f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 1, f.email.calls)
}

func TestDispatcher_AppChannelWithoutPushIsFailedWithoutSMSLog(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "9876543210", domain.Notification{
		ID:           "n-app",
		RequestID:    "req-1",
		Type:         domain.NotificationStatusUpdate,
		Channel:      domain.ChannelApp,
		ScheduledFor: fixedNow,
		Message:      "approved",
	})

	report, err := f.dispatcher.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	logs, err := f.store.Failures.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRetryFailedSms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.seed(t, "9876543210", smsNotification("n-1"))
	f.secondary.FailNext(retryable503(), retryable503(), retryable503())
	_, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)

	logs, err := f.dispatcher.ListFailures(ctx, domain.FailurePending, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	logID := logs[0].ID

	t.Run("failure keeps entry pending and adds attempts", func(t *testing.T) {
		f.secondary.FailNext(&domain.ProviderError{Provider: "regional", Code: "400", Message: "rejected"})
		_, err := f.dispatcher.RetryFailedSms(ctx, logID)
		require.Error(t, err)

		entry, err := f.store.Failures.Get(ctx, logID)
		require.NoError(t, err)
		assert.Equal(t, domain.FailurePending, entry.Status)
		assert.Equal(t, 4, entry.AttemptCount)
		assert.Equal(t, "400", entry.Error.Code)
	})

	t.Run("success resolves entry and marks notification sent", func(t *testing.T) {
		entry, err := f.dispatcher.RetryFailedSms(ctx, logID)
		require.NoError(t, err)
		assert.Equal(t, domain.FailureResolved, entry.Status)
		assert.Equal(t, domain.SystemRetryResolver, entry.ResolvedBy)

		n, err := f.store.Notifications.Get(ctx, "n-1")
		require.NoError(t, err)
		assert.True(t, n.Sent)
	})

	t.Run("closed entry cannot be retried", func(t *testing.T) {
		_, err := f.dispatcher.RetryFailedSms(ctx, logID)
		assert.ErrorIs(t, err, domain.ErrFailureLogClosed)
	})
}

func TestRetryFailedSms_RescheduleDoesNotDuplicateParkedReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, "9876543210", smsNotification("n-1"))
	f.secondary.FailNext(retryable503(), retryable503(), retryable503())
	_, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, f.secondary.Calls())

	scheduler := notifapp.NewScheduler(f.store.Requests, f.store.Notifications, f.store.Relay, discardLogger(), notifapp.SchedulerConfig{})
	_, err = scheduler.ScheduleNotifications(ctx, "req-1")
	require.NoError(t, err)

	parked, err := f.store.Notifications.Get(ctx, "n-1")
	require.NoError(t, err)
	assert.NotNil(t, parked.FailedAt)

	report, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 3, f.secondary.Calls())

	entry, err := f.dispatcher.RetryFailedSms(ctx, "log-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureResolved, entry.Status)
	assert.Equal(t, 4, f.secondary.Calls())

	report, err = f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 4, f.secondary.Calls())
}

func TestRetryFailedSms_RemovedNotificationIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, "9876543210", smsNotification("n-1"))
	f.secondary.FailNext(retryable503(), retryable503(), retryable503())
	_, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)

	removed, err := f.store.Notifications.DeleteUnsent(ctx, "req-1", domain.ChannelSMS)
	require.NoError(t, err)
	require.Equal(t, []string{"n-1"}, removed)

	entry, err := f.dispatcher.RetryFailedSms(ctx, "log-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureIgnored, entry.Status)
	assert.Equal(t, domain.SystemRetryResolver, entry.ResolvedBy)
	assert.Equal(t, 3, f.secondary.Calls())
}

type unrecordedNotifications struct {
	repository.NotificationRepository
}

func (unrecordedNotifications) MarkSent(context.Context, string, string, time.Time) error {
	return fmt.Errorf("connection reset")
}

func TestDispatcher_MarkSentStoreErrorCountsAsFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, "9876543210", smsNotification("n-1"))
	d := NewDispatcher(unrecordedNotifications{f.store.Notifications}, f.store.Failures, f.sender, f.email, nil, f.publisher, discardLogger(), DispatcherConfig{BatchSize: 10})
	before := testutil.ToFloat64(markSentErrorsCounter)

	report, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, before+1, testutil.ToFloat64(markSentErrorsCounter))

	// no failure log: the provider accepted the message
	logs, err := f.store.Failures.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestResolveFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, "9876543210", smsNotification("n-1"))
	f.secondary.FailNext(retryable503(), retryable503(), retryable503())
	_, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)

	_, err = f.dispatcher.ResolveFailure(ctx, "log-1", "", "", false)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	entry, err := f.dispatcher.ResolveFailure(ctx, "log-1", "ops@example.com", "customer ported elsewhere", true)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureIgnored, entry.Status)
	assert.Equal(t, "ops@example.com", entry.ResolvedBy)

	_, err = f.dispatcher.ResolveFailure(ctx, "log-1", "ops@example.com", "", false)
	assert.ErrorIs(t, err, domain.ErrFailureLogClosed)

	_, err = f.dispatcher.ResolveFailure(ctx, "missing", "ops@example.com", "", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
