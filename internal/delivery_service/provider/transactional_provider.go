package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/platform/config"
)

// TransactionalProvider is the international SMS gateway. It takes E.164
// numbers and plain text only.
type TransactionalProvider struct {
	name       string
	baseURL    string
	apiKey     string
	sender     string
	httpClient *http.Client
	logger     *slog.Logger
}

type transactionalSendRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Body           string `json:"body"`
	ClientRef      string `json:"client_ref,omitempty"`
	ScheduleAtUnix int64  `json:"send_at,omitempty"`
}

type transactionalSendResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTransactionalProvider returns nil when cfg lacks an endpoint or key so the
// caller can treat the provider as missing.
func NewTransactionalProvider(cfg config.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *TransactionalProvider {
	if !cfg.Configured() {
		return nil
	}
	name := cfg.Name
	if name == "" {
		name = "transactional"
	}
	return &TransactionalProvider{
		name:       name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		sender:     cfg.Sender,
		httpClient: newHTTPClient(httpClient),
		logger:     logger.With("provider", name),
	}
}

func (p *TransactionalProvider) GetName() string { return p.name }

func (p *TransactionalProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	body := transactionalSendRequest{
		From:      p.sender,
		To:        details.Recipient,
		Body:      details.Content,
		ClientRef: details.InternalMessageID,
	}
	if details.ScheduleTime != nil {
		body.ScheduleAtUnix = details.ScheduleTime.Unix()
	}

	p.logger.DebugContext(ctx, "Sending SMS", "internal_id", details.InternalMessageID)
	status, raw, err := postJSON(ctx, p.httpClient, p.name, p.baseURL+"/messages", map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, body)
	if err != nil {
		return nil, err
	}

	var resp transactionalSendResponse
	decodeErr := json.Unmarshal(raw, &resp)

	if status < 200 || status >= 300 {
		code := ""
		if decodeErr == nil && resp.Code != 0 {
			code = fmt.Sprintf("%d", resp.Code)
		}
		p.logger.WarnContext(ctx, "SMS rejected", "internal_id", details.InternalMessageID, "http_status", status, "code", code)
		return nil, httpStatusError(p.name, status, code, resp.Message, raw)
	}
	if decodeErr != nil || resp.SID == "" {
		return nil, &domain.ProviderError{Provider: p.name, Code: "BAD_RESPONSE", Message: "response carried no message id", Err: decodeErr}
	}

	p.logger.InfoContext(ctx, "SMS accepted", "internal_id", details.InternalMessageID, "provider_message_id", resp.SID)
	return &SendResponseDetails{ProviderMessageID: resp.SID, ProviderStatus: resp.Status}, nil
}
