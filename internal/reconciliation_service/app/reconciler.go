package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
	notifapp "github.com/numberport/golang_services/internal/notification_service/app"
	"github.com/numberport/golang_services/internal/platform/messagebroker"
	"github.com/numberport/golang_services/internal/reconciliation_service/adapters/telecom"
)

// TelecomResolver looks up the porting API of an operator.
type TelecomResolver interface {
	Client(name string) (telecom.Client, error)
}

type ReconcilerConfig struct {
	BatchSize    int
	CheckTimeout time.Duration
	// NotifyUser adds an in-app status_update notification on every change.
	NotifyUser bool
	// StatusTemplate renders that notification; the catalogue entry when empty.
	StatusTemplate notifapp.Template
}

// CheckResult is the outcome of reconciling one request.
type CheckResult struct {
	RequestID      string        `json:"request_id"`
	ProviderStatus string        `json:"provider_status"`
	Details        string        `json:"details,omitempty"`
	Mapped         bool          `json:"mapped"`
	Previous       domain.Status `json:"previous_status"`
	Current        domain.Status `json:"current_status"`
	Changed        bool          `json:"changed"`
}

// BatchReport summarizes one reconciliation tick.
type BatchReport struct {
	Checked  int
	Changed  int
	Unmapped int
	Errors   []*domain.ReconciliationError
}

// Reconciler polls operators for in-flight requests and advances their status.
type Reconciler struct {
	requests      repository.PortingRequestRepository
	notifications repository.NotificationRepository
	telecoms      TelecomResolver
	publisher     messagebroker.Publisher
	logger        *slog.Logger
	cfg           ReconcilerConfig
	now           func() time.Time
	newID         func() string
}

func NewReconciler(
	requests repository.PortingRequestRepository,
	notifications repository.NotificationRepository,
	telecoms TelecomResolver,
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 15 * time.Second
	}
	if cfg.StatusTemplate.Body == "" {
		cfg.StatusTemplate = notifapp.DefaultTemplates[domain.NotificationStatusUpdate]
	}
	return &Reconciler{
		requests:      requests,
		notifications: notifications,
		telecoms:      telecoms,
		publisher:     publisher,
		logger:        logger.With("component", "status_reconciler"),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Tick runs one batch; it matches the ticker callback signature.
func (r *Reconciler) Tick(ctx context.Context) {
	report, err := r.ReconcileBatch(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Reconciliation batch failed", "error", err)
		return
	}
	if report.Checked > 0 {
		r.logger.InfoContext(ctx, "Reconciliation batch complete",
			"checked", report.Checked, "changed", report.Changed, "unmapped", report.Unmapped, "errors", len(report.Errors))
	}
}

// ReconcileBatch checks every in-flight request once. Per-request failures
// are collected in the report and never stop the batch.
func (r *Reconciler) ReconcileBatch(ctx context.Context) (BatchReport, error) {
	timer := prometheus.NewTimer(reconcileDurationHist)
	defer timer.ObserveDuration()

	inFlight, err := r.requests.FindInFlight(ctx, r.cfg.BatchSize)
	if err != nil {
		return BatchReport{}, fmt.Errorf("find in-flight requests: %w", err)
	}

	var report BatchReport
	for _, req := range inFlight {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		res, err := r.reconcile(ctx, req)
		if err != nil {
			report.Errors = append(report.Errors, &domain.ReconciliationError{RequestID: req.ID, Err: err})
			r.logger.WarnContext(ctx, "Status check failed", "request_id", req.ID, "error", err)
			continue
		}
		if res.Changed {
			report.Changed++
		}
		if !res.Mapped {
			report.Unmapped++
		}
	}
	return report, nil
}

// CheckProviderStatus reconciles one request on demand.
func (r *Reconciler) CheckProviderStatus(ctx context.Context, requestID string) (*CheckResult, error) {
	req, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load porting request %s: %w", requestID, err)
	}
	if req.ProviderReferenceID == "" {
		return nil, domain.NewValidationError("provider_reference_id", "porting has not been initiated with the provider")
	}
	if req.Status.IsTerminal() {
		return &CheckResult{RequestID: req.ID, Mapped: true, Previous: req.Status, Current: req.Status}, nil
	}
	return r.reconcile(ctx, req)
}

func (r *Reconciler) reconcile(ctx context.Context, req *domain.PortingRequest) (*CheckResult, error) {
	client, err := r.telecoms.Client(req.NewProvider)
	if err != nil {
		statusChecksCounter.WithLabelValues("no_client").Inc()
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, r.cfg.CheckTimeout)
	resp, err := client.CheckStatus(checkCtx, req.ProviderReferenceID)
	cancel()
	if err != nil {
		statusChecksCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("check status with %s: %w", req.NewProvider, err)
	}
	statusChecksCounter.WithLabelValues("ok").Inc()

	res := &CheckResult{
		RequestID:      req.ID,
		ProviderStatus: resp.Status,
		Details:        resp.Details,
		Previous:       req.Status,
		Current:        req.Status,
	}

	target, ok := MapProviderStatus(resp.Status)
	if !ok {
		unmappedStatusCounter.WithLabelValues(req.NewProvider).Inc()
		r.logger.WarnContext(ctx, "Unrecognized provider status", "request_id", req.ID, "provider", req.NewProvider, "provider_status", resp.Status)
		return res, nil
	}
	res.Mapped = true

	if !shouldApply(req.Status, target) {
		return res, nil
	}

	note := fmt.Sprintf("Provider reported %s", resp.Status)
	if resp.Details != "" {
		note += ": " + resp.Details
	}
	now := r.now()
	err = r.requests.AppendStatus(ctx, req.ID, req.Status, domain.StatusEntry{Status: target, Timestamp: now, Note: note})
	if errors.Is(err, domain.ErrStatusConflict) {
		// Someone else moved the request; the next tick sees the new status.
		r.logger.InfoContext(ctx, "Status changed concurrently, skipping", "request_id", req.ID)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("append status: %w", err)
	}

	res.Current = target
	res.Changed = true
	statusTransitionsCounter.WithLabelValues(string(req.Status), string(target)).Inc()
	r.logger.InfoContext(ctx, "Porting status advanced", "request_id", req.ID, "from", req.Status, "to", target, "provider_status", resp.Status)

	messagebroker.PublishJSON(ctx, r.publisher, r.logger, messagebroker.SubjectStatusChanged, domain.StatusChangedEvent{
		RequestID:      req.ID,
		UserID:         req.UserID,
		From:           req.Status,
		To:             target,
		ProviderStatus: resp.Status,
		Note:           note,
		OccurredAt:     now,
	})
	if r.cfg.NotifyUser {
		r.notifyUser(ctx, req, target, now)
	}
	return res, nil
}

func (r *Reconciler) notifyUser(ctx context.Context, req *domain.PortingRequest, status domain.Status, now time.Time) {
	vars := map[string]string{
		"reference":     req.ReferenceNumber(),
		"status":        string(status),
		"mobile_number": req.MobileNumber,
		"new_provider":  req.NewProvider,
	}
	n := domain.Notification{
		ID:           r.newID(),
		RequestID:    req.ID,
		Type:         domain.NotificationStatusUpdate,
		Channel:      domain.ChannelApp,
		ScheduledFor: now,
		Subject:      notifapp.Render(r.cfg.StatusTemplate.Subject, vars),
		Message:      notifapp.Render(r.cfg.StatusTemplate.Body, vars),
		CreatedAt:    now,
	}
	if err := r.notifications.Add(ctx, n); err != nil {
		r.logger.ErrorContext(ctx, "Failed to add status update notification", "request_id", req.ID, "error", err)
	}
}
