package app

import (
	"strings"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// providerStatusTable maps operator vocabulary to canonical statuses.
var providerStatusTable = map[string]domain.Status{
	"INITIATED":      domain.StatusProcessing,
	"RECEIVED":       domain.StatusProcessing,
	"PROCESSING":     domain.StatusProcessing,
	"IN_PROGRESS":    domain.StatusProcessing,
	"APPROVED":       domain.StatusApproved,
	"READY_FOR_PORT": domain.StatusApproved,
	"COMPLETED":      domain.StatusCompleted,
	"PORTED":         domain.StatusCompleted,
	"FAILED":         domain.StatusRejected,
	"REJECTED":       domain.StatusRejected,
	"CANCELLED":      domain.StatusRejected,
}

// MapProviderStatus returns the canonical status for a raw operator status.
// ok is false for vocabulary outside the table.
func MapProviderStatus(raw string) (domain.Status, bool) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s, ok := providerStatusTable[norm]
	return s, ok
}

// shouldApply guards against re-applying a status a previous poll already recorded.
func shouldApply(current, target domain.Status) bool {
	switch target {
	case domain.StatusCompleted:
		if current == domain.StatusCompleted {
			return false
		}
	case domain.StatusApproved:
		if current == domain.StatusApproved || current == domain.StatusCompleted {
			return false
		}
	}
	return domain.CanTransition(current, target)
}
