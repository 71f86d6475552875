package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	calendarapp "github.com/numberport/golang_services/internal/calendar_service/app"
	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	notifapp "github.com/numberport/golang_services/internal/notification_service/app"
	"github.com/numberport/golang_services/internal/platform/messagebroker"
	"github.com/numberport/golang_services/internal/reconciliation_service/adapters/telecom"
)

var fixedNow = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

type MockTelecomClient struct {
	mock.Mock
}

func (m *MockTelecomClient) Initiate(ctx context.Context, req telecom.InitiateRequest) (*telecom.InitiateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telecom.InitiateResponse), args.Error(1)
}

func (m *MockTelecomClient) CheckStatus(ctx context.Context, ref string) (*telecom.StatusResponse, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telecom.StatusResponse), args.Error(1)
}

func newTestIntake(t *testing.T) (*IntakeService, *repository.Store, *MockTelecomClient) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	require.NoError(t, store.Rules.Upsert(ctx, &domain.PortingRules{CircleKey: "delhi", WorkingDaysRequired: 3, Active: true}))

	rules := calendarapp.NewRulesService(store.Rules, nil, logger)
	scheduler := notifapp.NewScheduler(store.Requests, store.Notifications, store.Relay, logger,
		notifapp.SchedulerConfig{SendHour: 10, RegulatorShortCode: "1900", RegulatorKeyword: "PORT"})

	client := new(MockTelecomClient)
	registry := telecom.NewRegistry()
	registry.Register("jio", client)

	s := NewIntakeService(store.Requests, store.Notifications, store.Relay, rules, scheduler, registry,
		messagebroker.NoopPublisher{}, validator.New(), logger, IntakeConfig{DomesticPrefix: "91"})
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d" }
	return s, store, client
}

func validInput() SubmitInput {
	return SubmitInput{
		UserID:          "user-1",
		ContactEmail:    "user@example.com",
		MobileNumber:    "+91 98765-43210",
		CurrentProvider: "Airtel",
		NewProvider:     "Jio",
		Circle:          "New Delhi",
		PlanEndDate:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		AutomatePorting: true,
	}
}

func TestSubmit_ComputesTimelineAndSchedules(t *testing.T) {
	s, _, _ := newTestIntake(t)

	req, err := s.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "9876543210", req.MobileNumber)
	assert.Equal(t, "delhi", req.Circle)
	assert.Equal(t, "jio", req.NewProvider)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), req.SMSDate)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), req.ScheduledDate)
	assert.Equal(t, domain.StatusPending, req.Status)
	require.Len(t, req.StatusHistory, 1)
	assert.Len(t, req.Notifications, 5)
	assert.Equal(t, "PRT-9B1DEB4D", req.ReferenceNumber())
}

type failingPlanner struct{ calls int }

func (p *failingPlanner) ScheduleNotifications(context.Context, string) ([]domain.Notification, error) {
	p.calls++
	return nil, errors.New("relay store unavailable")
}

func TestSubmit_SchedulingFailureStillReturnsStoredRequest(t *testing.T) {
	s, store, _ := newTestIntake(t)
	planner := &failingPlanner{}
	s.planner = planner

	req, err := s.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", req.ID)
	assert.Empty(t, req.Notifications)

	stored, err := store.Requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		field  string
	}{
		{"missing user", func(in *SubmitInput) { in.UserID = "" }, "user_id"},
		{"short number", func(in *SubmitInput) { in.MobileNumber = "98765" }, "mobile_number"},
		{"bad email", func(in *SubmitInput) { in.ContactEmail = "nope" }, "contact_email"},
		{"same provider", func(in *SubmitInput) { in.NewProvider = "airtel" }, "new_provider"},
		{"missing end date", func(in *SubmitInput) { in.PlanEndDate = time.Time{} }, "plan_end_date"},
		{"bad upc", func(in *SubmitInput) { in.UPCCode = "AB" }, "upc_code"},
		{"end date too close", func(in *SubmitInput) { in.PlanEndDate = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }, "plan_end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestIntake(t)
			in := validInput()
			tt.mutate(&in)

			_, err := s.Submit(context.Background(), in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSubmit_UnknownCircle(t *testing.T) {
	s, _, _ := newTestIntake(t)
	in := validInput()
	in.Circle = "Atlantis"

	_, err := s.Submit(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrUnknownCircle)
}

func TestInitiatePorting(t *testing.T) {
	ctx := context.Background()
	s, _, client := newTestIntake(t)
	req, err := s.Submit(ctx, validInput())
	require.NoError(t, err)

	client.On("Initiate", mock.Anything, mock.MatchedBy(func(r telecom.InitiateRequest) bool {
		return r.RequestID == req.ID && r.MobileNumber == "9876543210" && r.CurrentProvider == "airtel"
	})).Return(&telecom.InitiateResponse{ReferenceID: "JIO-77"}, nil).Once()

	got, err := s.InitiatePorting(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, "JIO-77", got.ProviderReferenceID)
	assert.Contains(t, got.StatusHistory[len(got.StatusHistory)-1].Note, "JIO-77")

	_, err = s.InitiatePorting(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrProviderReferenceSet)
	client.AssertExpectations(t)
}

func TestInitiatePorting_ProviderFailureLeavesRequestPending(t *testing.T) {
	ctx := context.Background()
	s, store, client := newTestIntake(t)
	req, err := s.Submit(ctx, validInput())
	require.NoError(t, err)

	client.On("Initiate", mock.Anything, mock.Anything).Return(nil, &domain.ProviderError{Provider: "jio", Code: "503", Retryable: true}).Once()

	_, err = s.InitiatePorting(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrProviderTransient)

	stored, err := store.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, stored.ProviderReferenceID)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestIntake(t)
	req, err := s.Submit(ctx, validInput())
	require.NoError(t, err)

	got, err := s.Cancel(ctx, req.ID, "customer changed their mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Empty(t, got.Notifications)

	pending, err := store.Relay.ListPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.Cancel(ctx, req.ID, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
