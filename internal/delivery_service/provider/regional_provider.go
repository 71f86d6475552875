package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/platform/config"
)

// RegionalProvider is the domestic SMS gateway. Recipients are country code
// plus national number without a plus sign. It supports provider-side
// templates through SendTemplate.
type RegionalProvider struct {
	name       string
	baseURL    string
	authKey    string
	sender     string
	httpClient *http.Client
	logger     *slog.Logger
}

type regionalSendRequest struct {
	Sender  string `json:"sender"`
	Mobiles string `json:"mobiles"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

type regionalFlowRequest struct {
	TemplateID string              `json:"template_id"`
	Sender     string              `json:"sender,omitempty"`
	Recipients []map[string]string `json:"recipients"`
}

type regionalResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewRegionalProvider(cfg config.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *RegionalProvider {
	if !cfg.Configured() {
		return nil
	}
	name := cfg.Name
	if name == "" {
		name = "regional"
	}
	return &RegionalProvider{
		name:       name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		authKey:    cfg.APIKey,
		sender:     cfg.Sender,
		httpClient: newHTTPClient(httpClient),
		logger:     logger.With("provider", name),
	}
}

func (p *RegionalProvider) GetName() string { return p.name }

func (p *RegionalProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	p.logger.DebugContext(ctx, "Sending SMS", "internal_id", details.InternalMessageID)
	return p.post(ctx, "/sms/send", details.InternalMessageID, regionalSendRequest{
		Sender:  p.sender,
		Mobiles: details.Recipient,
		Message: details.Content,
		Ref:     details.InternalMessageID,
	})
}

func (p *RegionalProvider) SendTemplate(ctx context.Context, details TemplateRequestDetails) (*SendResponseDetails, error) {
	if details.TemplateID == "" {
		return nil, &domain.ProviderError{Provider: p.name, Code: "TEMPLATE_MISSING", Message: "template id is empty", Err: domain.ErrTemplatesNotSupported}
	}
	recipient := map[string]string{"mobiles": details.Recipient}
	for k, v := range details.Variables {
		if k == "mobiles" {
			continue
		}
		recipient[k] = v
	}
	p.logger.DebugContext(ctx, "Sending template SMS", "internal_id", details.InternalMessageID, "template_id", details.TemplateID)
	return p.post(ctx, "/flow", details.InternalMessageID, regionalFlowRequest{
		TemplateID: details.TemplateID,
		Sender:     p.sender,
		Recipients: []map[string]string{recipient},
	})
}

func (p *RegionalProvider) post(ctx context.Context, path, internalID string, body any) (*SendResponseDetails, error) {
	status, raw, err := postJSON(ctx, p.httpClient, p.name, p.baseURL+path, map[string]string{"authkey": p.authKey}, body)
	if err != nil {
		return nil, err
	}

	var resp regionalResponse
	decodeErr := json.Unmarshal(raw, &resp)

	if status < 200 || status >= 300 {
		p.logger.WarnContext(ctx, "SMS rejected", "internal_id", internalID, "http_status", status, "code", resp.Code)
		return nil, httpStatusError(p.name, status, resp.Code, resp.Message, raw)
	}
	if decodeErr != nil {
		return nil, &domain.ProviderError{Provider: p.name, Code: "BAD_RESPONSE", Message: "undecodable response", Err: decodeErr}
	}
	// The gateway reports some rejections with HTTP 200 and type=error.
	if !strings.EqualFold(resp.Type, "success") {
		p.logger.WarnContext(ctx, "SMS rejected", "internal_id", internalID, "code", resp.Code)
		return nil, &domain.ProviderError{Provider: p.name, Code: resp.Code, Message: resp.Message}
	}

	p.logger.InfoContext(ctx, "SMS accepted", "internal_id", internalID, "provider_message_id", resp.RequestID)
	return &SendResponseDetails{ProviderMessageID: resp.RequestID, ProviderStatus: resp.Type}, nil
}
