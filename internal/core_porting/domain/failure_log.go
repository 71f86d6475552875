package domain

import "time"

type FailureStatus string

const (
	FailurePending  FailureStatus = "pending"
	FailureResolved FailureStatus = "resolved"
	FailureIgnored  FailureStatus = "ignored"
)

// SystemRetryResolver is recorded as resolver when RetryFailedSms succeeds.
const SystemRetryResolver = "system-retry"

type FailureError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	IsNetworkError bool   `json:"is_network_error"`
}

// SMSFailureLog is the audit record of an SMS delivery that could not complete.
type SMSFailureLog struct {
	ID             string            `json:"id"`
	RequestID      string            `json:"request_id"`
	NotificationID string            `json:"notification_id"`
	PhoneNumber    string            `json:"phone_number"`
	Message        string            `json:"message"`
	TemplateID     string            `json:"template_id,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	Error          FailureError      `json:"error"`
	AttemptCount   int               `json:"attempt_count"`
	Status         FailureStatus     `json:"status"`
	ResolvedBy     string            `json:"resolved_by,omitempty"`
	ResolutionNote string            `json:"resolution_note,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
}
