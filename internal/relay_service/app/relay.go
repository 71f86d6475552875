package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
)

// RelayProviderName is recorded on notifications delivered from the user's phone.
const RelayProviderName = "mobile_relay"

var relayResultsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "results_reported_total",
		Help:      "Relay results reported by companion apps.",
	},
	[]string{"outcome"},
)

type RelayConfig struct {
	RegulatorShortCode string
	RegulatorKeyword   string
}

// RelayService exposes the AutomatedSmsQueue to the companion app.
type RelayService struct {
	relay         repository.RelayRepository
	requests      repository.PortingRequestRepository
	notifications repository.NotificationRepository
	logger        *slog.Logger
	cfg           RelayConfig
	now           func() time.Time
}

func NewRelayService(
	relay repository.RelayRepository,
	requests repository.PortingRequestRepository,
	notifications repository.NotificationRepository,
	logger *slog.Logger,
	cfg RelayConfig,
) *RelayService {
	return &RelayService{
		relay:         relay,
		requests:      requests,
		notifications: notifications,
		logger:        logger.With("component", "relay_service"),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetPending returns the user's pending relay entries, oldest first.
func (s *RelayService) GetPending(ctx context.Context, userID string) ([]*domain.RelayEntry, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "must be set")
	}
	return s.relay.ListPending(ctx, userID)
}

// ReportResult records what happened when the user's phone sent an entry.
func (s *RelayService) ReportResult(ctx context.Context, userID, entryID string, success bool, errMsg string) (*domain.RelayEntry, error) {
	entry, err := s.relay.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load relay entry %s: %w", entryID, err)
	}
	if entry.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if entry.Status != domain.RelayPending {
		return nil, domain.ErrRelayAlreadyReported
	}

	now := s.now()
	status := domain.RelaySent
	if !success {
		status = domain.RelayFailed
		if strings.TrimSpace(errMsg) == "" {
			errMsg = "device reported failure"
		}
	} else {
		errMsg = ""
	}
	if err := s.relay.Complete(ctx, entry.ID, status, domain.RelayResult{Success: success, Error: errMsg, ReportedAt: now}); err != nil {
		return nil, err
	}
	relayResultsCounter.WithLabelValues(string(status)).Inc()
	logger := s.logger.With("relay_id", entry.ID, "request_id", entry.RequestID)
	logger.InfoContext(ctx, "Relay result reported", "status", status)

	if entry.NotificationID != "" {
		// a failed relay parks the notification; re-enabling automation queues it again
		var err error
		if success {
			err = s.notifications.MarkSent(ctx, entry.NotificationID, RelayProviderName, now)
		} else {
			err = s.notifications.MarkFailed(ctx, entry.NotificationID, errMsg, now)
		}
		if err != nil && !errors.Is(err, domain.ErrNotificationAlreadySent) && !errors.Is(err, domain.ErrNotFound) {
			logger.ErrorContext(ctx, "Failed to record relay outcome on notification", "notification_id", entry.NotificationID, "success", success, "error", err)
		}
	}

	if s.isRegulatorMessage(entry) {
		note := "Porting code SMS sent from user's device"
		if !success {
			note = "Porting code SMS failed on user's device: " + errMsg
		}
		if err := s.audit(ctx, entry.RequestID, note, now); err != nil {
			logger.ErrorContext(ctx, "Failed to append relay audit entry", "error", err)
		}
	}

	return s.relay.Get(ctx, entry.ID)
}

func (s *RelayService) isRegulatorMessage(e *domain.RelayEntry) bool {
	if e.TargetNumber != s.cfg.RegulatorShortCode {
		return false
	}
	fields := strings.Fields(e.Message)
	return len(fields) == 2 && strings.EqualFold(fields[0], s.cfg.RegulatorKeyword)
}

// audit appends a note without changing status. A concurrent status change
// is retried once against the fresh status.
func (s *RelayService) audit(ctx context.Context, requestID, note string, at time.Time) error {
	for attempt := 0; attempt < 2; attempt++ {
		req, err := s.requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		err = s.requests.AppendStatus(ctx, req.ID, req.Status, domain.StatusEntry{Status: req.Status, Timestamp: at, Note: note})
		if !errors.Is(err, domain.ErrStatusConflict) {
			return err
		}
	}
	return domain.ErrStatusConflict
}
