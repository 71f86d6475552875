package telecom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/platform/config"
)

// InitiateRequest is the payload handed to the recipient operator.
type InitiateRequest struct {
	RequestID       string    `json:"request_id"`
	MobileNumber    string    `json:"mobile_number"`
	CurrentProvider string    `json:"current_provider"`
	Circle          string    `json:"circle"`
	UPCCode         string    `json:"upc_code,omitempty"`
	ScheduledDate   time.Time `json:"scheduled_date"`
}

type InitiateResponse struct {
	ReferenceID         string     `json:"reference_id"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// StatusResponse carries the operator's raw status vocabulary.
type StatusResponse struct {
	Status      string    `json:"status"`
	Details     string    `json:"details,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Client is one operator's porting API.
type Client interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	CheckStatus(ctx context.Context, referenceID string) (*StatusResponse, error)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPClient talks JSON to an operator porting endpoint.
type HTTPClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(name string, cfg config.TelecomConfig, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger.With("telecom_provider", name),
	}
}

func (c *HTTPClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	var resp InitiateResponse
	if err := c.do(ctx, http.MethodPost, "/porting/initiate", req, &resp); err != nil {
		return nil, err
	}
	if resp.ReferenceID == "" {
		return nil, &domain.ProviderError{Provider: c.name, Code: "BAD_RESPONSE", Message: "initiate response carried no reference id"}
	}
	c.logger.InfoContext(ctx, "Porting initiated", "request_id", req.RequestID, "reference_id", resp.ReferenceID)
	return &resp, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, referenceID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/porting/status/"+url.PathEscape(referenceID), nil, &resp); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Porting status fetched", "reference_id", referenceID, "status", resp.Status)
	return &resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &domain.ProviderError{Provider: c.name, Code: "ENCODE", Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.ProviderError{Provider: c.name, Code: "REQUEST", Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code := "NETWORK"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			code = "TIMEOUT"
		}
		return &domain.ProviderError{Provider: c.name, Code: code, Message: "request failed", IsNetworkError: true, Retryable: true, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &domain.ProviderError{Provider: c.name, Code: "NETWORK", Message: "failed to read response", IsNetworkError: true, Retryable: true, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		if eb.Code == "" {
			eb.Code = strconv.Itoa(httpResp.StatusCode)
		}
		if eb.Message == "" {
			eb.Message = fmt.Sprintf("http status %d", httpResp.StatusCode)
		}
		return &domain.ProviderError{
			Provider:  c.name,
			Code:      eb.Code,
			Message:   eb.Message,
			Retryable: httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.ProviderError{Provider: c.name, Code: "BAD_RESPONSE", Message: "undecodable response", Err: err}
	}
	return nil
}
