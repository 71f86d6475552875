package domain

import "time"

type RelayStatus string

const (
	RelayPending RelayStatus = "pending"
	RelaySent    RelayStatus = "sent"
	RelayFailed  RelayStatus = "failed"
)

type RelayResult struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// RelayEntry is an SMS the companion app must send from the user's own phone.
type RelayEntry struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	RequestID      string       `json:"request_id"`
	NotificationID string       `json:"notification_id"`
	TargetNumber   string       `json:"target_number"`
	Message        string       `json:"message"`
	Status         RelayStatus  `json:"status"`
	Result         *RelayResult `json:"result,omitempty"`
	ScheduledFor   time.Time    `json:"scheduled_for"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
