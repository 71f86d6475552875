package http

import (
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

const dateLayout = "2006-01-02"

// CreatePortingRequestDTO is the body of POST /porting-requests.
type CreatePortingRequestDTO struct {
	ContactEmail    string            `json:"contact_email,omitempty" validate:"omitempty,email"`
	MobileNumber    string            `json:"mobile_number" validate:"required"`
	CurrentProvider string            `json:"current_provider" validate:"required"`
	NewProvider     string            `json:"new_provider" validate:"required"`
	Circle          string            `json:"circle" validate:"required"`
	PlanEndDate     string            `json:"plan_end_date" validate:"required,datetime=2006-01-02"`
	AutomatePorting bool              `json:"automate_porting"`
	UPCCode         string            `json:"upc_code,omitempty"`
	PortingCenter   *PortingCenterDTO `json:"porting_center,omitempty"`
}

type PortingCenterDTO struct {
	Name    string `json:"name" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
	Hours   string `json:"hours,omitempty" validate:"max=100"`
}

type AutomationRequestDTO struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type CancelRequestDTO struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

type RelayResultDTO struct {
	Success *bool  `json:"success" validate:"required"`
	Error   string `json:"error,omitempty" validate:"max=500"`
}

type ResolveFailureDTO struct {
	Note   string `json:"note,omitempty" validate:"max=500"`
	Ignore bool   `json:"ignore"`
}

// PortingRequestResponse wraps a request with its human-facing reference.
type PortingRequestResponse struct {
	*domain.PortingRequest
	ReferenceNumber string `json:"reference_number"`
}

func newPortingRequestResponse(req *domain.PortingRequest) PortingRequestResponse {
	return PortingRequestResponse{PortingRequest: req, ReferenceNumber: req.ReferenceNumber()}
}

type NotificationsResponse struct {
	RequestID     string                `json:"request_id"`
	Notifications []domain.Notification `json:"notifications"`
}

type LeadDateResponse struct {
	Circle  string `json:"circle"`
	EndDate string `json:"end_date"`
	SMSDate string `json:"sms_date"`
}

type PortingDateResponse struct {
	Circle      string `json:"circle"`
	SMSDate     string `json:"sms_date"`
	PortingDate string `json:"porting_date"`
}

type CirclesResponse struct {
	Circles []*domain.PortingRules `json:"circles"`
}

type RelayEntriesResponse struct {
	Entries []*domain.RelayEntry `json:"entries"`
}

type FailureLogsResponse struct {
	Failures []*domain.SMSFailureLog `json:"failures"`
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}
