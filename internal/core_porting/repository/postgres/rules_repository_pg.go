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

type PgRulesRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgRulesRepository(db *pgxpool.Pool, logger *slog.Logger) *PgRulesRepository {
	return &PgRulesRepository{db: db, logger: logger}
}

const rulesColumns = `circle_key, display_name, working_days_required, holidays, weekly_off_days,
	minimum_usage_days, fees, active, updated_at`

func (r *PgRulesRepository) Get(ctx context.Context, circleKey string) (*domain.PortingRules, error) {
	row := r.db.QueryRow(ctx, `SELECT `+rulesColumns+` FROM porting_rules WHERE circle_key = $1 AND active = TRUE`, circleKey)
	rules, err := scanRules(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting porting rules", "error", err, "circle", circleKey)
		return nil, err
	}
	return rules, nil
}

func (r *PgRulesRepository) Upsert(ctx context.Context, rules *domain.PortingRules) error {
	holidays, err := json.Marshal(rules.Holidays)
	if err != nil {
		return fmt.Errorf("marshal holidays: %w", err)
	}
	fees, err := json.Marshal(rules.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}
	offDays := make([]int32, 0, len(rules.WeeklyOffDays))
	for _, d := range rules.WeeklyOffDays {
		offDays = append(offDays, int32(d))
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO porting_rules (`+rulesColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (circle_key) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			working_days_required = EXCLUDED.working_days_required,
			holidays = EXCLUDED.holidays,
			weekly_off_days = EXCLUDED.weekly_off_days,
			minimum_usage_days = EXCLUDED.minimum_usage_days,
			fees = EXCLUDED.fees,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		rules.CircleKey, rules.DisplayName, rules.WorkingDaysRequired, holidays, offDays,
		rules.MinimumUsageDays, fees, rules.Active, rules.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting porting rules", "error", err, "circle", rules.CircleKey)
		return fmt.Errorf("upsert porting rules: %w", err)
	}
	return nil
}

func (r *PgRulesRepository) List(ctx context.Context) ([]*domain.PortingRules, error) {
	rows, err := r.db.Query(ctx, `SELECT `+rulesColumns+` FROM porting_rules ORDER BY circle_key`)
	if err != nil {
		return nil, fmt.Errorf("list porting rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.PortingRules
	for rows.Next() {
		rules, err := scanRules(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rules)
	}
	return out, rows.Err()
}

func scanRules(row pgx.Row) (*domain.PortingRules, error) {
	rules := &domain.PortingRules{}
	var holidays, fees []byte
	var offDays []int32
	err := row.Scan(&rules.CircleKey, &rules.DisplayName, &rules.WorkingDaysRequired, &holidays, &offDays,
		&rules.MinimumUsageDays, &fees, &rules.Active, &rules.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(holidays, &rules.Holidays); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	if err := json.Unmarshal(fees, &rules.Fees); err != nil {
		return nil, fmt.Errorf("decode fees: %w", err)
	}
	for _, d := range offDays {
		rules.WeeklyOffDays = append(rules.WeeklyOffDays, time.Weekday(d))
	}
	return rules, nil
}
