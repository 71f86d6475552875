package domain

import (
	"strings"
	"time"
)

// StatusEntry is one append-only record of the request's status history.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// PortingCenter is an informational snapshot of where the user completes the port.
type PortingCenter struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Hours   string `json:"hours,omitempty"`
}

// PortingRequest is the aggregate root of one number port.
type PortingRequest struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"user_id"`
	ContactEmail        string         `json:"contact_email,omitempty"`
	MobileNumber        string         `json:"mobile_number"`
	CurrentProvider     string         `json:"current_provider"`
	NewProvider         string         `json:"new_provider"`
	Circle              string         `json:"circle"`
	PlanEndDate         time.Time      `json:"plan_end_date"`
	SMSDate             time.Time      `json:"sms_date"`
	ScheduledDate       time.Time      `json:"scheduled_date"`
	Status              Status         `json:"status"`
	StatusHistory       []StatusEntry  `json:"status_history"`
	AutomatePorting     bool           `json:"automate_porting"`
	ProviderReferenceID string         `json:"provider_reference_id,omitempty"`
	UPCCode             string         `json:"upc_code,omitempty"`
	PortingCenter       PortingCenter  `json:"porting_center"`
	Notifications       []Notification `json:"notifications"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ReferenceNumber is the human-facing identifier derived from the ID.
func (r *PortingRequest) ReferenceNumber() string {
	return ReferenceNumberFor(r.ID)
}

func ReferenceNumberFor(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "PRT-" + strings.ToUpper(compact)
}

// AppendStatus records a new status. Callers are expected to have checked
// CanTransition; audit entries that keep the status unchanged pass s == r.Status.
func (r *PortingRequest) AppendStatus(s Status, note string, at time.Time) {
	r.StatusHistory = append(r.StatusHistory, StatusEntry{Status: s, Timestamp: at, Note: note})
	r.Status = s
	r.UpdatedAt = at
}

// UnsentOfChannel returns the unsent notifications on the given channel.
func (r *PortingRequest) UnsentOfChannel(ch Channel) []Notification {
	var out []Notification
	for _, n := range r.Notifications {
		if n.Channel == ch && !n.Sent {
			out = append(out, n)
		}
	}
	return out
}
