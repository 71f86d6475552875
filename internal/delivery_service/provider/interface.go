package provider

import (
	"context"
	"time"
)

// SendRequestDetails is one plain-text SMS.
type SendRequestDetails struct {
	InternalMessageID string
	Recipient         string
	Content           string
	ScheduleTime      *time.Time
}

// TemplateRequestDetails is one SMS rendered by the provider from a stored template.
type TemplateRequestDetails struct {
	InternalMessageID string
	Recipient         string
	TemplateID        string
	Variables         map[string]string
}

// SendResponseDetails is returned on a successful submission. Failures are
// reported as *domain.ProviderError.
type SendResponseDetails struct {
	ProviderMessageID string
	ProviderStatus    string
}

// SMSSenderProvider is implemented by every SMS gateway client.
type SMSSenderProvider interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	GetName() string
}

// TemplateSender is implemented by gateways with provider-native templates.
type TemplateSender interface {
	SendTemplate(ctx context.Context, details TemplateRequestDetails) (*SendResponseDetails, error)
}

// EmailProvider sends one HTML email and returns the provider message ID.
type EmailProvider interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
	GetName() string
}

// PushProvider sends one push notification to all devices of a user.
type PushProvider interface {
	Send(ctx context.Context, userID, title, body string) (string, error)
	GetName() string
}
