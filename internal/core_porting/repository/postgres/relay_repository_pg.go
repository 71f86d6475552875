package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type PgRelayRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgRelayRepository(db *pgxpool.Pool, logger *slog.Logger) *PgRelayRepository {
	return &PgRelayRepository{db: db, logger: logger}
}

const relayColumns = `id, user_id, request_id, notification_id, target_number, message, status, result,
	scheduled_for, created_at, updated_at`

func (r *PgRelayRepository) Enqueue(ctx context.Context, e *domain.RelayEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO automated_sms_queue (`+relayColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9, $10)`,
		e.ID, e.UserID, e.RequestID, e.NotificationID, e.TargetNumber, e.Message, e.Status,
		e.ScheduledFor, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error enqueuing relay entry", "error", err, "request_id", e.RequestID)
		return fmt.Errorf("enqueue relay entry: %w", err)
	}
	return nil
}

func (r *PgRelayRepository) ListPending(ctx context.Context, userID string) ([]*domain.RelayEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+relayColumns+` FROM automated_sms_queue
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC, seq ASC`,
		userID, domain.RelayPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending relay entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.RelayEntry
	for rows.Next() {
		e, err := scanRelay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgRelayRepository) Get(ctx context.Context, id string) (*domain.RelayEntry, error) {
	e, err := scanRelay(r.db.QueryRow(ctx, `SELECT `+relayColumns+` FROM automated_sms_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *PgRelayRepository) Complete(ctx context.Context, id string, status domain.RelayStatus, result domain.RelayResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal relay result: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE automated_sms_queue SET status = $1, result = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		status, raw, result.ReportedAt, id, domain.RelayPending,
	)
	if err != nil {
		return fmt.Errorf("complete relay entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrRelayAlreadyReported
	}
	return nil
}

func (r *PgRelayRepository) DeletePendingForRequest(ctx context.Context, requestID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM automated_sms_queue WHERE request_id = $1 AND status = $2`,
		requestID, domain.RelayPending,
	)
	if err != nil {
		return 0, fmt.Errorf("delete pending relay entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRelay(row pgx.Row) (*domain.RelayEntry, error) {
	e := &domain.RelayEntry{}
	var result []byte
	if err := row.Scan(&e.ID, &e.UserID, &e.RequestID, &e.NotificationID, &e.TargetNumber, &e.Message, &e.Status,
		&result, &e.ScheduledFor, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		e.Result = &domain.RelayResult{}
		if err := json.Unmarshal(result, e.Result); err != nil {
			return nil, fmt.Errorf("decode relay result: %w", err)
		}
	}
	return e, nil
}
