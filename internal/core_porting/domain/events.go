package domain

import "time"

// StatusChangedEvent is published whenever a request's status moves.
type StatusChangedEvent struct {
	RequestID      string    `json:"request_id"`
	UserID         string    `json:"user_id"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	ProviderStatus string    `json:"provider_status,omitempty"`
	Note           string    `json:"note,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
