package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type PgPortingRequestRepository struct {
	db            *pgxpool.Pool
	notifications *PgNotificationRepository
	logger        *slog.Logger
}

func NewPgPortingRequestRepository(db *pgxpool.Pool, logger *slog.Logger) *PgPortingRequestRepository {
	return &PgPortingRequestRepository{
		db:            db,
		notifications: NewPgNotificationRepository(db, logger),
		logger:        logger,
	}
}

const requestColumns = `id, user_id, contact_email, mobile_number, current_provider, new_provider, circle,
	plan_end_date, sms_date, scheduled_date, status, automate_porting, COALESCE(provider_reference_id, ''),
	upc_code, center_name, center_address, center_hours, created_at, updated_at`

func (r *PgPortingRequestRepository) Create(ctx context.Context, req *domain.PortingRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create porting request: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ref *string
	if req.ProviderReferenceID != "" {
		ref = &req.ProviderReferenceID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO porting_requests (id, user_id, contact_email, mobile_number, current_provider, new_provider, circle,
			plan_end_date, sms_date, scheduled_date, status, automate_porting, provider_reference_id,
			upc_code, center_name, center_address, center_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		req.ID, req.UserID, req.ContactEmail, req.MobileNumber, req.CurrentProvider, req.NewProvider, req.Circle,
		req.PlanEndDate, req.SMSDate, req.ScheduledDate, req.Status, req.AutomatePorting, ref,
		req.UPCCode, req.PortingCenter.Name, req.PortingCenter.Address, req.PortingCenter.Hours, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating porting request", "error", err, "request_id", req.ID)
		return fmt.Errorf("insert porting request: %w", err)
	}

	for _, h := range req.StatusHistory {
		if _, err := tx.Exec(ctx,
			`INSERT INTO porting_status_history (request_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
			req.ID, h.Status, h.Note, h.Timestamp,
		); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgPortingRequestRepository) GetByID(ctx context.Context, id string) (*domain.PortingRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM porting_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting porting request", "error", err, "request_id", id)
		return nil, err
	}
	if err := r.loadChildren(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *PgPortingRequestRepository) FindInFlight(ctx context.Context, limit int) ([]*domain.PortingRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM porting_requests
		WHERE status IN ($1, $2) AND provider_reference_id IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $3`,
		domain.StatusProcessing, domain.StatusApproved, limit,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying in-flight porting requests", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PortingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, req := range out {
		if err := r.loadHistory(ctx, req); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PgPortingRequestRepository) AppendStatus(ctx context.Context, id string, expected domain.Status, entry domain.StatusEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append status: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current domain.Status
	if err := tx.QueryRow(ctx, `SELECT status FROM porting_requests WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock porting request: %w", err)
	}
	if current != expected {
		return domain.ErrStatusConflict
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO porting_status_history (request_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
		id, entry.Status, entry.Note, entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE porting_requests SET status = $1, updated_at = $2 WHERE id = $3`,
		entry.Status, entry.Timestamp, id,
	); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgPortingRequestRepository) SetProviderReference(ctx context.Context, id, ref string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE porting_requests SET provider_reference_id = $1, updated_at = NOW() WHERE id = $2 AND provider_reference_id IS NULL`,
		ref, id,
	)
	if err != nil {
		return fmt.Errorf("set provider reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, domain.ErrProviderReferenceSet)
	}
	return nil
}

func (r *PgPortingRequestRepository) SetAutomation(ctx context.Context, id string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE porting_requests SET automate_porting = $1, updated_at = NOW() WHERE id = $2`,
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("set automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// missingOr distinguishes a missing row from a guarded update that matched nothing.
func (r *PgPortingRequestRepository) missingOr(ctx context.Context, id string, guardErr error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM porting_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return guardErr
}

func (r *PgPortingRequestRepository) loadChildren(ctx context.Context, req *domain.PortingRequest) error {
	if err := r.loadHistory(ctx, req); err != nil {
		return err
	}
	ns, err := r.notifications.listForRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	req.Notifications = ns
	return nil
}

func (r *PgPortingRequestRepository) loadHistory(ctx context.Context, req *domain.PortingRequest) error {
	rows, err := r.db.Query(ctx,
		`SELECT status, note, created_at FROM porting_status_history WHERE request_id = $1 ORDER BY id ASC`,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	req.StatusHistory = nil
	for rows.Next() {
		var h domain.StatusEntry
		if err := rows.Scan(&h.Status, &h.Note, &h.Timestamp); err != nil {
			return err
		}
		req.StatusHistory = append(req.StatusHistory, h)
	}
	return rows.Err()
}

func scanRequest(row pgx.Row) (*domain.PortingRequest, error) {
	req := &domain.PortingRequest{}
	err := row.Scan(
		&req.ID, &req.UserID, &req.ContactEmail, &req.MobileNumber, &req.CurrentProvider, &req.NewProvider, &req.Circle,
		&req.PlanEndDate, &req.SMSDate, &req.ScheduledDate, &req.Status, &req.AutomatePorting, &req.ProviderReferenceID,
		&req.UPCCode, &req.PortingCenter.Name, &req.PortingCenter.Address, &req.PortingCenter.Hours, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
