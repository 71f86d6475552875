package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	circles "github.com/numberport/golang_services/internal/calendar_service/domain"
	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/core_porting/repository"
)

// RulesCache is an optional read-through cache in front of the rules store.
type RulesCache interface {
	Get(ctx context.Context, circleKey string) (*domain.PortingRules, error)
	Set(ctx context.Context, rules *domain.PortingRules) error
	Invalidate(ctx context.Context, circleKey string) error
}

// RulesService resolves circle rules and computes porting dates from them.
type RulesService struct {
	repo   repository.RulesRepository
	cache  RulesCache
	logger *slog.Logger
}

// NewRulesService builds the service; cache may be nil.
func NewRulesService(repo repository.RulesRepository, cache RulesCache, logger *slog.Logger) *RulesService {
	return &RulesService{repo: repo, cache: cache, logger: logger.With("component", "rules_service")}
}

// GetRules returns the active rules for a circle given by name or slug.
// Cache failures are logged and fall through to the store.
func (s *RulesService) GetRules(ctx context.Context, circle string) (*domain.PortingRules, error) {
	key := circles.NormalizeCircle(circle)
	if key == "" {
		return nil, domain.NewValidationError("circle", "must be set")
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "Rules cache read failed", "circle", key, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	rules, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCircle, circle)
		}
		return nil, fmt.Errorf("load rules for %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rules); err != nil {
			s.logger.WarnContext(ctx, "Rules cache write failed", "circle", key, "error", err)
		}
	}
	return rules, nil
}

// ListRules returns every stored rule set ordered by circle key. The cache is
// bypassed since it only holds single circles.
func (s *RulesService) ListRules(ctx context.Context) ([]*domain.PortingRules, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list porting rules: %w", err)
	}
	return rules, nil
}

// EffectiveWorkingDays applies the Jammu & Kashmir carve-out on top of the
// stored value. circle may be a display name, alias or key.
func EffectiveWorkingDays(circle string, rules *domain.PortingRules) int {
	if circles.IsJammuKashmir(circle) {
		return circles.JammuKashmirWorkingDays
	}
	return rules.WorkingDaysRequired
}

// ComputeLeadDate returns the SMS date for a plan ending on endDate in the given circle.
func (s *RulesService) ComputeLeadDate(ctx context.Context, endDate time.Time, circle string) (time.Time, error) {
	rules, err := s.GetRules(ctx, circle)
	if err != nil {
		return time.Time{}, err
	}
	key := circles.NormalizeCircle(circle)
	required := EffectiveWorkingDays(circle, rules)

	lead, reached, err := ComputeLeadDate(endDate, required, NewHolidaySet(rules.Holidays), rules.OffDays())
	if err != nil {
		return time.Time{}, err
	}
	if !reached {
		s.logger.WarnContext(ctx, "Lead date lookback exhausted before reaching required working days",
			"circle", key, "end_date", endDate.Format(time.DateOnly), "required", required, "returned", lead.Format(time.DateOnly))
	}
	return lead, nil
}

// ComputePortingDate is circle independent; circle is accepted for symmetry with ComputeLeadDate.
func (s *RulesService) ComputePortingDate(smsDate time.Time, _ string) time.Time {
	return ComputePortingDate(smsDate)
}

// UpsertRules stores a rule set under its canonical key and drops the cached copy.
func (s *RulesService) UpsertRules(ctx context.Context, rules *domain.PortingRules) error {
	rules.CircleKey = circles.NormalizeCircle(rules.CircleKey)
	if rules.CircleKey == "" {
		return domain.NewValidationError("circle_key", "must be set")
	}
	if rules.WorkingDaysRequired <= 0 {
		return domain.NewValidationError("working_days_required", "must be positive")
	}
	if rules.UpdatedAt.IsZero() {
		rules.UpdatedAt = time.Now().UTC()
	}
	if err := s.repo.Upsert(ctx, rules); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, rules.CircleKey); err != nil {
			s.logger.WarnContext(ctx, "Rules cache invalidation failed", "circle", rules.CircleKey, "error", err)
		}
	}
	return nil
}

type seedHoliday struct {
	Date  string `mapstructure:"date"`
	Label string `mapstructure:"label"`
}

type seedRules struct {
	CircleKey           string           `mapstructure:"circle_key"`
	DisplayName         string           `mapstructure:"display_name"`
	WorkingDaysRequired int              `mapstructure:"working_days_required"`
	MinimumUsageDays    int              `mapstructure:"minimum_usage_days"`
	WeeklyOffDays       []string         `mapstructure:"weekly_off_days"`
	Holidays            []seedHoliday    `mapstructure:"holidays"`
	Fees                []domain.FeeItem `mapstructure:"fees"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// SeedFromFile loads circle rules from a YAML file and upserts each of them.
func (s *RulesService) SeedFromFile(ctx context.Context, path string) (int, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("read rules seed %s: %w", path, err)
	}

	var seeds []seedRules
	if err := v.UnmarshalKey("circles", &seeds); err != nil {
		return 0, fmt.Errorf("decode rules seed: %w", err)
	}

	for _, seed := range seeds {
		rules, err := seed.toRules()
		if err != nil {
			return 0, fmt.Errorf("circle %s: %w", seed.CircleKey, err)
		}
		if err := s.UpsertRules(ctx, rules); err != nil {
			return 0, fmt.Errorf("seed circle %s: %w", seed.CircleKey, err)
		}
	}
	s.logger.InfoContext(ctx, "Porting rules seeded", "count", len(seeds), "file", path)
	return len(seeds), nil
}

func (seed seedRules) toRules() (*domain.PortingRules, error) {
	rules := &domain.PortingRules{
		CircleKey:           seed.CircleKey,
		DisplayName:         seed.DisplayName,
		WorkingDaysRequired: seed.WorkingDaysRequired,
		MinimumUsageDays:    seed.MinimumUsageDays,
		Fees:                seed.Fees,
		Active:              true,
	}
	for _, name := range seed.WeeklyOffDays {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, domain.NewValidationError("weekly_off_days", "unknown weekday "+name)
		}
		rules.WeeklyOffDays = append(rules.WeeklyOffDays, d)
	}
	for _, h := range seed.Holidays {
		day, err := time.Parse(time.DateOnly, h.Date)
		if err != nil {
			return nil, domain.NewValidationError("holidays", "bad date "+h.Date)
		}
		rules.Holidays = append(rules.Holidays, domain.Holiday{Date: day, Label: h.Label})
	}
	return rules, nil
}
