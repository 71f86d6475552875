package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrUnknownCircle           = errors.New("unknown circle")
	ErrNotificationAlreadySent = errors.New("notification already sent")
	ErrStatusConflict          = errors.New("status changed concurrently")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrProviderReferenceSet    = errors.New("provider reference already set")
	ErrForbidden               = errors.New("forbidden")
	ErrRelayAlreadyReported    = errors.New("relay entry already reported")
	ErrFailureLogClosed        = errors.New("failure log entry is not pending")

	// Classification targets for ProviderError; use errors.Is.
	ErrProviderTransient     = errors.New("provider transient error")
	ErrProviderPermanent     = errors.New("provider permanent error")
	ErrProviderConfigMissing = errors.New("provider configuration missing")
	ErrTemplatesNotSupported = errors.New("provider does not support templates")
)

// ValidationError reports malformed input to the calculators, scheduler or intake.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// ProviderError is returned by every outbound provider client.
type ProviderError struct {
	Provider       string
	Code           string
	Message        string
	IsNetworkError bool
	Retryable      bool
	Err            error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("provider %s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets callers classify with errors.Is(err, ErrProviderTransient) or
// errors.Is(err, ErrProviderPermanent).
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderTransient:
		return e.Retryable
	case ErrProviderPermanent:
		return !e.Retryable
	}
	return false
}

// NewConfigMissingError marks a provider that has no credentials or endpoint.
func NewConfigMissingError(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     "CONFIG_MISSING",
		Message:  "provider is not configured",
		Err:      ErrProviderConfigMissing,
	}
}

// IsRetryable reports whether err is a provider error worth another attempt.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// ReconciliationError isolates one request's failure within a reconciliation batch.
type ReconciliationError struct {
	RequestID string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile request %s: %v", e.RequestID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
