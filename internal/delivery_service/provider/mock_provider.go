package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockSMSProvider accepts every message unless errors are queued with FailNext.
// It backs local runs without gateway credentials and the delivery tests.
type MockSMSProvider struct {
	name           string
	logger         *slog.Logger
	SimulatedDelay time.Duration

	mu        sync.Mutex
	failures  []error
	sent      []SendRequestDetails
	templated []TemplateRequestDetails
}

func NewMockSMSProvider(name string, logger *slog.Logger, delay time.Duration) *MockSMSProvider {
	if name == "" {
		name = "mock"
	}
	return &MockSMSProvider{
		name:           name,
		logger:         logger.With("provider", name),
		SimulatedDelay: delay,
	}
}

// FailNext queues errors returned by the next calls, in order.
func (p *MockSMSProvider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// Calls is the number of Send and SendTemplate calls so far.
func (p *MockSMSProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent) + len(p.templated)
}

func (p *MockSMSProvider) Sent() []SendRequestDetails {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SendRequestDetails(nil), p.sent...)
}

func (p *MockSMSProvider) GetName() string { return p.name }

func (p *MockSMSProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	p.mu.Lock()
	p.sent = append(p.sent, details)
	p.mu.Unlock()
	return p.respond(ctx, details.InternalMessageID, details.Recipient)
}

func (p *MockSMSProvider) respond(ctx context.Context, internalID, recipient string) (*SendResponseDetails, error) {
	if p.SimulatedDelay > 0 {
		select {
		case <-time.After(p.SimulatedDelay):
		case <-ctx.Done():
			return nil, networkError(p.name, ctx.Err())
		}
	}

	p.mu.Lock()
	var failure error
	if len(p.failures) > 0 {
		failure = p.failures[0]
		p.failures = p.failures[1:]
	}
	p.mu.Unlock()

	if failure != nil {
		p.logger.WarnContext(ctx, "MockSMSProvider: simulated failure", "internal_id", internalID, "error", failure)
		return nil, failure
	}

	providerMsgID := "mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "MockSMSProvider: SMS sent (simulated)", "internal_id", internalID, "recipient", recipient, "provider_message_id", providerMsgID)
	return &SendResponseDetails{ProviderMessageID: providerMsgID, ProviderStatus: "SENT_MOCK_OK"}, nil
}

// MockTemplateSMSProvider is a MockSMSProvider that also accepts templates.
type MockTemplateSMSProvider struct {
	*MockSMSProvider
}

func NewMockTemplateSMSProvider(name string, logger *slog.Logger) *MockTemplateSMSProvider {
	return &MockTemplateSMSProvider{MockSMSProvider: NewMockSMSProvider(name, logger, 0)}
}

func (p *MockTemplateSMSProvider) SendTemplate(ctx context.Context, details TemplateRequestDetails) (*SendResponseDetails, error) {
	p.mu.Lock()
	p.templated = append(p.templated, details)
	p.mu.Unlock()
	return p.respond(ctx, details.InternalMessageID, details.Recipient)
}

// Templated returns the template requests received so far.
func (p *MockTemplateSMSProvider) Templated() []TemplateRequestDetails {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TemplateRequestDetails(nil), p.templated...)
}
