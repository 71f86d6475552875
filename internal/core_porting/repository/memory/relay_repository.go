package memory

import (
	"context"
	"sort"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type RelayRepository struct {
	db *DB
}

func NewRelayRepository(db *DB) *RelayRepository {
	return &RelayRepository{db: db}
}

func (r *RelayRepository) Enqueue(ctx context.Context, e *domain.RelayEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.relay[e.ID] = &storedRelay{seq: r.db.next(), e: *e}
	return nil
}

func (r *RelayRepository) ListPending(ctx context.Context, userID string) ([]*domain.RelayEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var pending []*storedRelay
	for _, sr := range r.db.relay {
		if sr.e.UserID == userID && sr.e.Status == domain.RelayPending {
			pending = append(pending, sr)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].e.CreatedAt.Equal(pending[j].e.CreatedAt) {
			return pending[i].seq < pending[j].seq
		}
		return pending[i].e.CreatedAt.Before(pending[j].e.CreatedAt)
	})

	out := make([]*domain.RelayEntry, 0, len(pending))
	for _, sr := range pending {
		e := sr.e
		out = append(out, &e)
	}
	return out, nil
}

func (r *RelayRepository) Get(ctx context.Context, id string) (*domain.RelayEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sr, ok := r.db.relay[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e := sr.e
	return &e, nil
}

func (r *RelayRepository) Complete(ctx context.Context, id string, status domain.RelayStatus, result domain.RelayResult) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sr, ok := r.db.relay[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sr.e.Status != domain.RelayPending {
		return domain.ErrRelayAlreadyReported
	}
	res := result
	sr.e.Status = status
	sr.e.Result = &res
	sr.e.UpdatedAt = result.ReportedAt
	return nil
}

func (r *RelayRepository) DeletePendingForRequest(ctx context.Context, requestID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	deleted := 0
	for id, sr := range r.db.relay {
		if sr.e.RequestID == requestID && sr.e.Status == domain.RelayPending {
			delete(r.db.relay, id)
			deleted++
		}
	}
	return deleted, nil
}
