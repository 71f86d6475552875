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

// HTTPPushProvider fans a notification out to a user's registered devices
// through a push gateway keyed by external user id.
type HTTPPushProvider struct {
	name       string
	baseURL    string
	apiKey     string
	appID      string
	httpClient *http.Client
	logger     *slog.Logger
}

type pushSendRequest struct {
	AppID           string            `json:"app_id"`
	ExternalUserIDs []string          `json:"include_external_user_ids"`
	Headings        map[string]string `json:"headings"`
	Contents        map[string]string `json:"contents"`
}

type pushSendResponse struct {
	ID         string   `json:"id"`
	Recipients int      `json:"recipients"`
	Errors     []string `json:"errors"`
}

// NewHTTPPushProvider reads the gateway app id from cfg.Sender.
func NewHTTPPushProvider(cfg config.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *HTTPPushProvider {
	if !cfg.Configured() {
		return nil
	}
	name := cfg.Name
	if name == "" {
		name = "push"
	}
	return &HTTPPushProvider{
		name:       name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		appID:      cfg.Sender,
		httpClient: newHTTPClient(httpClient),
		logger:     logger.With("provider", name),
	}
}

func (p *HTTPPushProvider) GetName() string { return p.name }

func (p *HTTPPushProvider) Send(ctx context.Context, userID, title, body string) (string, error) {
	status, raw, err := postJSON(ctx, p.httpClient, p.name, p.baseURL+"/notifications", map[string]string{
		"Authorization": "Basic " + p.apiKey,
	}, pushSendRequest{
		AppID:           p.appID,
		ExternalUserIDs: []string{userID},
		Headings:        map[string]string{"en": title},
		Contents:        map[string]string{"en": body},
	})
	if err != nil {
		return "", err
	}

	var resp pushSendResponse
	decodeErr := json.Unmarshal(raw, &resp)
	if status < 200 || status >= 300 {
		msg := ""
		if len(resp.Errors) > 0 {
			msg = strings.Join(resp.Errors, "; ")
		}
		return "", httpStatusError(p.name, status, "", msg, raw)
	}
	if decodeErr != nil {
		return "", &domain.ProviderError{Provider: p.name, Code: "BAD_RESPONSE", Message: "undecodable response", Err: decodeErr}
	}
	if resp.ID == "" || resp.Recipients == 0 {
		// No subscribed device; retrying will not help.
		return "", &domain.ProviderError{Provider: p.name, Code: "NO_RECIPIENTS", Message: "user has no subscribed devices"}
	}
	p.logger.InfoContext(ctx, "Push accepted", "provider_message_id", resp.ID, "recipients", resp.Recipients)
	return resp.ID, nil
}
