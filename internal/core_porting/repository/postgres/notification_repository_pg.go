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

type PgNotificationRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgNotificationRepository(db *pgxpool.Pool, logger *slog.Logger) *PgNotificationRepository {
	return &PgNotificationRepository{db: db, logger: logger}
}

const notificationColumns = `n.id, n.request_id, n.type, n.channel, n.scheduled_for, n.subject, n.message, n.template_id,
	n.variables, n.target_number, n.sent, n.sent_at, n.provider, n.last_error, n.failed_at, n.created_at`

const insertNotification = `
	INSERT INTO porting_notifications (id, request_id, type, channel, scheduled_for, subject, message, template_id,
		variables, target_number, sent, sent_at, provider, last_error, failed_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (r *PgNotificationRepository) ReplaceUnsent(ctx context.Context, requestID string, ns []domain.Notification) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace notifications: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM porting_notifications WHERE request_id = $1 AND sent = FALSE AND failed_at IS NULL`, requestID); err != nil {
		return fmt.Errorf("delete unsent notifications: %w", err)
	}

	batch := &pgx.Batch{}
	for _, n := range ns {
		args, err := notificationArgs(n)
		if err != nil {
			return err
		}
		batch.Queue(insertNotification, args...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.logger.ErrorContext(ctx, "Error inserting notifications", "error", err, "request_id", requestID)
		return fmt.Errorf("insert notifications: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgNotificationRepository) Add(ctx context.Context, n domain.Notification) error {
	args, err := notificationArgs(n)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, insertNotification, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgNotificationRepository) DeleteUnsent(ctx context.Context, requestID string, ch domain.Channel) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM porting_notifications WHERE request_id = $1 AND channel = $2 AND sent = FALSE RETURNING id`,
		requestID, ch,
	)
	if err != nil {
		return nil, fmt.Errorf("delete unsent notifications: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgNotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.DueNotification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`, r.user_id, r.mobile_number, r.contact_email
		FROM porting_notifications n
		JOIN porting_requests r ON r.id = n.request_id
		WHERE n.sent = FALSE AND n.failed_at IS NULL AND n.channel <> $1 AND n.scheduled_for <= $2
		ORDER BY n.scheduled_for ASC, n.seq ASC
		LIMIT $3`,
		domain.ChannelMobileSMS, now, limit,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying due notifications", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []domain.DueNotification
	for rows.Next() {
		dn, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dn)
	}
	return out, rows.Err()
}

func (r *PgNotificationRepository) Get(ctx context.Context, id string) (*domain.DueNotification, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+notificationColumns+`, r.user_id, r.mobile_number, r.contact_email
		FROM porting_notifications n
		JOIN porting_requests r ON r.id = n.request_id
		WHERE n.id = $1`, id)
	dn, err := scanDue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return dn, nil
}

func (r *PgNotificationRepository) MarkSent(ctx context.Context, id, provider string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE porting_notifications
		SET sent = TRUE, sent_at = $1, provider = $2, last_error = '', failed_at = NULL
		WHERE id = $3 AND sent = FALSE`,
		at, provider, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrSent(ctx, id)
	}
	return nil
}

func (r *PgNotificationRepository) MarkFailed(ctx context.Context, id, lastErr string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE porting_notifications SET last_error = $1, failed_at = $2 WHERE id = $3 AND sent = FALSE`,
		lastErr, at, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrSent(ctx, id)
	}
	return nil
}

func (r *PgNotificationRepository) missingOrSent(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM porting_notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrNotificationAlreadySent
}

func (r *PgNotificationRepository) listForRequest(ctx context.Context, requestID string) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+` FROM porting_notifications n WHERE n.request_id = $1 ORDER BY n.seq ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var vars []byte
		if err := rows.Scan(notificationDest(&n, &vars)...); err != nil {
			return nil, err
		}
		if err := decodeVars(vars, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func notificationArgs(n domain.Notification) ([]any, error) {
	var vars []byte
	if len(n.Variables) > 0 {
		b, err := json.Marshal(n.Variables)
		if err != nil {
			return nil, fmt.Errorf("marshal notification variables: %w", err)
		}
		vars = b
	}
	return []any{
		n.ID, n.RequestID, n.Type, n.Channel, n.ScheduledFor, n.Subject, n.Message, n.TemplateID,
		vars, n.TargetNumber, n.Sent, n.SentAt, n.Provider, n.LastError, n.FailedAt, n.CreatedAt,
	}, nil
}

func notificationDest(n *domain.Notification, vars *[]byte) []any {
	return []any{
		&n.ID, &n.RequestID, &n.Type, &n.Channel, &n.ScheduledFor, &n.Subject, &n.Message, &n.TemplateID,
		vars, &n.TargetNumber, &n.Sent, &n.SentAt, &n.Provider, &n.LastError, &n.FailedAt, &n.CreatedAt,
	}
}

func scanDue(row pgx.Row) (*domain.DueNotification, error) {
	dn := &domain.DueNotification{}
	var vars []byte
	dest := append(notificationDest(&dn.Notification, &vars), &dn.UserID, &dn.MobileNumber, &dn.ContactEmail)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := decodeVars(vars, &dn.Notification); err != nil {
		return nil, err
	}
	return dn, nil
}

func decodeVars(raw []byte, n *domain.Notification) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &n.Variables); err != nil {
		return fmt.Errorf("decode notification variables: %w", err)
	}
	return nil
}
