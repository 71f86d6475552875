package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type PgFailureLogRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgFailureLogRepository(db *pgxpool.Pool, logger *slog.Logger) *PgFailureLogRepository {
	return &PgFailureLogRepository{db: db, logger: logger}
}

const failureColumns = `id, request_id, notification_id, phone_number, message, template_id, variables,
	error_code, error_message, is_network_error, attempt_count, status, resolved_by, resolution_note,
	created_at, updated_at, resolved_at`

func (r *PgFailureLogRepository) Create(ctx context.Context, l *domain.SMSFailureLog) error {
	var vars []byte
	if len(l.Variables) > 0 {
		b, err := json.Marshal(l.Variables)
		if err != nil {
			return fmt.Errorf("marshal failure variables: %w", err)
		}
		vars = b
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO sms_failure_logs (`+failureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		l.ID, l.RequestID, l.NotificationID, l.PhoneNumber, l.Message, l.TemplateID, vars,
		l.Error.Code, l.Error.Message, l.Error.IsNetworkError, l.AttemptCount, l.Status, l.ResolvedBy, l.ResolutionNote,
		l.CreatedAt, l.UpdatedAt, l.ResolvedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating SMS failure log", "error", err, "notification_id", l.NotificationID)
		return fmt.Errorf("insert sms failure log: %w", err)
	}
	return nil
}

func (r *PgFailureLogRepository) Get(ctx context.Context, id string) (*domain.SMSFailureLog, error) {
	l, err := scanFailure(r.db.QueryRow(ctx, `SELECT `+failureColumns+` FROM sms_failure_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *PgFailureLogRepository) List(ctx context.Context, status domain.FailureStatus, limit int) ([]*domain.SMSFailureLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+failureColumns+` FROM sms_failure_logs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sms failure logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SMSFailureLog
	for rows.Next() {
		l, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PgFailureLogRepository) RecordRetryFailure(ctx context.Context, id string, attempts int, e domain.FailureError, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sms_failure_logs
		SET attempt_count = attempt_count + $1, error_code = $2, error_message = $3, is_network_error = $4, updated_at = $5
		WHERE id = $6`,
		attempts, e.Code, e.Message, e.IsNetworkError, at, id,
	)
	if err != nil {
		return fmt.Errorf("record retry failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgFailureLogRepository) Resolve(ctx context.Context, id string, status domain.FailureStatus, resolver, note string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sms_failure_logs
		SET status = $1, resolved_by = $2, resolution_note = $3, resolved_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6`,
		status, resolver, note, at, id, domain.FailurePending,
	)
	if err != nil {
		return fmt.Errorf("resolve sms failure log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrFailureLogClosed
	}
	return nil
}

func scanFailure(row pgx.Row) (*domain.SMSFailureLog, error) {
	l := &domain.SMSFailureLog{}
	var vars []byte
	err := row.Scan(&l.ID, &l.RequestID, &l.NotificationID, &l.PhoneNumber, &l.Message, &l.TemplateID, &vars,
		&l.Error.Code, &l.Error.Message, &l.Error.IsNetworkError, &l.AttemptCount, &l.Status, &l.ResolvedBy, &l.ResolutionNote,
		&l.CreatedAt, &l.UpdatedAt, &l.ResolvedAt)
	if err != nil {
		return nil, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &l.Variables); err != nil {
			return nil, fmt.Errorf("decode failure variables: %w", err)
		}
	}
	return l, nil
}
