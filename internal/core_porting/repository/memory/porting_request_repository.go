package memory

import (
	"context"
	"sort"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

type PortingRequestRepository struct {
	db *DB
}

func NewPortingRequestRepository(db *DB) *PortingRequestRepository {
	return &PortingRequestRepository{db: db}
}

func (r *PortingRequestRepository) Create(ctx context.Context, req *domain.PortingRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *req
	cp.StatusHistory = append([]domain.StatusEntry(nil), req.StatusHistory...)
	cp.Notifications = nil
	r.db.requests[req.ID] = &cp
	return nil
}

func (r *PortingRequestRepository) GetByID(ctx context.Context, id string) (*domain.PortingRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	stored, ok := r.db.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.db.assemble(stored), nil
}

func (r *PortingRequestRepository) FindInFlight(ctx context.Context, limit int) ([]*domain.PortingRequest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*domain.PortingRequest
	for _, stored := range r.db.requests {
		if stored.Status.InFlight() && stored.ProviderReferenceID != "" {
			out = append(out, r.db.assemble(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PortingRequestRepository) AppendStatus(ctx context.Context, id string, expected domain.Status, entry domain.StatusEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return domain.ErrStatusConflict
	}
	stored.AppendStatus(entry.Status, entry.Note, entry.Timestamp)
	return nil
}

func (r *PortingRequestRepository) SetProviderReference(ctx context.Context, id, ref string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.ProviderReferenceID != "" {
		return domain.ErrProviderReferenceSet
	}
	stored.ProviderReferenceID = ref
	return nil
}

func (r *PortingRequestRepository) SetAutomation(ctx context.Context, id string, enabled bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	stored.AutomatePorting = enabled
	return nil
}

// assemble copies a stored request and attaches its notifications in creation order.
// Caller holds at least the read lock.
func (db *DB) assemble(stored *domain.PortingRequest) *domain.PortingRequest {
	cp := *stored
	cp.StatusHistory = append([]domain.StatusEntry(nil), stored.StatusHistory...)

	var ns []*storedNotification
	for _, sn := range db.notifications {
		if sn.n.RequestID == stored.ID {
			ns = append(ns, sn)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].seq < ns[j].seq })
	cp.Notifications = make([]domain.Notification, 0, len(ns))
	for _, sn := range ns {
		cp.Notifications = append(cp.Notifications, cloneNotification(sn.n))
	}
	return &cp
}
