package domain

import "time"

type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelEmail     Channel = "email"
	ChannelApp       Channel = "app"
	ChannelMobileSMS Channel = "mobile_sms"
)

// NotificationType identifies which reminder of the fixed catalogue a record is.
type NotificationType string

const (
	NotificationSMSDateReminder    NotificationType = "sms_date_reminder"
	NotificationSMSDateEmail       NotificationType = "sms_date_email"
	NotificationPortingVisitSMS    NotificationType = "porting_visit_reminder"
	NotificationSIMActivationEmail NotificationType = "sim_activation_email"
	NotificationRegulatorSMS       NotificationType = "regulator_sms"
	NotificationStatusUpdate       NotificationType = "status_update"
)

// Notification is one planned communication attached to a porting request.
// Once Sent is true the record is never modified again.
type Notification struct {
	ID           string            `json:"id"`
	RequestID    string            `json:"request_id"`
	Type         NotificationType  `json:"type"`
	Channel      Channel           `json:"channel"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	Subject      string            `json:"subject,omitempty"`
	Message      string            `json:"message"`
	TemplateID   string            `json:"template_id,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	TargetNumber string            `json:"target_number,omitempty"`
	Sent         bool              `json:"sent"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Provider     string            `json:"provider,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	// FailedAt is set once delivery was exhausted; such records stay unsent
	// but are skipped by the dispatcher until explicitly retried.
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DueNotification is a notification joined with the request fields the
// dispatcher needs to address it.
type DueNotification struct {
	Notification
	UserID       string
	MobileNumber string
	ContactEmail string
}
