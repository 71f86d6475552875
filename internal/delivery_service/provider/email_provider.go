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

// HTTPEmailProvider posts mail to a transactional email API.
type HTTPEmailProvider struct {
	name       string
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *slog.Logger
}

type emailSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailSendResponse struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHTTPEmailProvider(cfg config.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *HTTPEmailProvider {
	if !cfg.Configured() {
		return nil
	}
	name := cfg.Name
	if name == "" {
		name = "email"
	}
	return &HTTPEmailProvider{
		name:       name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.Sender,
		httpClient: newHTTPClient(httpClient),
		logger:     logger.With("provider", name),
	}
}

func (p *HTTPEmailProvider) GetName() string { return p.name }

func (p *HTTPEmailProvider) Send(ctx context.Context, to, subject, html string) (string, error) {
	status, raw, err := postJSON(ctx, p.httpClient, p.name, p.baseURL+"/emails", map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, emailSendRequest{From: p.from, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return "", err
	}

	var resp emailSendResponse
	decodeErr := json.Unmarshal(raw, &resp)
	if status < 200 || status >= 300 {
		p.logger.WarnContext(ctx, "Email rejected", "http_status", status, "code", resp.Code)
		return "", httpStatusError(p.name, status, resp.Code, resp.Message, raw)
	}
	if decodeErr != nil || resp.ID == "" {
		return "", &domain.ProviderError{Provider: p.name, Code: "BAD_RESPONSE", Message: "response carried no message id", Err: decodeErr}
	}
	p.logger.InfoContext(ctx, "Email accepted", "provider_message_id", resp.ID)
	return resp.ID, nil
}
