package memory

import (
	"context"
	"sort"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type FailureLogRepository struct {
	db *DB
}

func NewFailureLogRepository(db *DB) *FailureLogRepository {
	return &FailureLogRepository{db: db}
}

func (r *FailureLogRepository) Create(ctx context.Context, l *domain.SMSFailureLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *l
	cp.Variables = cloneVars(l.Variables)
	r.db.failures[l.ID] = &storedFailure{seq: r.db.next(), l: cp}
	return nil
}

func (r *FailureLogRepository) Get(ctx context.Context, id string) (*domain.SMSFailureLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sf, ok := r.db.failures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	l := sf.l
	l.Variables = cloneVars(sf.l.Variables)
	return &l, nil
}

func (r *FailureLogRepository) List(ctx context.Context, status domain.FailureStatus, limit int) ([]*domain.SMSFailureLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var matched []*storedFailure
	for _, sf := range r.db.failures {
		if status == "" || sf.l.Status == status {
			matched = append(matched, sf)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*domain.SMSFailureLog, 0, len(matched))
	for _, sf := range matched {
		l := sf.l
		l.Variables = cloneVars(sf.l.Variables)
		out = append(out, &l)
	}
	return out, nil
}

func (r *FailureLogRepository) RecordRetryFailure(ctx context.Context, id string, attempts int, e domain.FailureError, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sf, ok := r.db.failures[id]
	if !ok {
		return domain.ErrNotFound
	}
	sf.l.AttemptCount += attempts
	sf.l.Error = e
	sf.l.UpdatedAt = at
	return nil
}

func (r *FailureLogRepository) Resolve(ctx context.Context, id string, status domain.FailureStatus, resolver, note string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sf, ok := r.db.failures[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sf.l.Status != domain.FailurePending {
		return domain.ErrFailureLogClosed
	}
	resolvedAt := at
	sf.l.Status = status
	sf.l.ResolvedBy = resolver
	sf.l.ResolutionNote = note
	sf.l.ResolvedAt = &resolvedAt
	sf.l.UpdatedAt = at
	return nil
}
