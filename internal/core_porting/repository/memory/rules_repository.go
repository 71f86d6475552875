package memory

import (
	"context"
	"sort"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type RulesRepository struct {
	db *DB
}

func NewRulesRepository(db *DB) *RulesRepository {
	return &RulesRepository{db: db}
}

func (r *RulesRepository) Get(ctx context.Context, circleKey string) (*domain.PortingRules, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rules, ok := r.db.rules[circleKey]
	if !ok || !rules.Active {
		return nil, domain.ErrNotFound
	}
	return cloneRules(rules), nil
}

func (r *RulesRepository) Upsert(ctx context.Context, rules *domain.PortingRules) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.rules[rules.CircleKey] = cloneRules(rules)
	return nil
}

func (r *RulesRepository) List(ctx context.Context) ([]*domain.PortingRules, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*domain.PortingRules, 0, len(r.db.rules))
	for _, rules := range r.db.rules {
		out = append(out, cloneRules(rules))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CircleKey < out[j].CircleKey })
	return out, nil
}

func cloneRules(in *domain.PortingRules) *domain.PortingRules {
	cp := *in
	cp.Holidays = append([]domain.Holiday(nil), in.Holidays...)
	cp.WeeklyOffDays = append([]time.Weekday(nil), in.WeeklyOffDays...)
	cp.Fees = append([]domain.FeeItem(nil), in.Fees...)
	return &cp
}
