package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

const defaultHTTPTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response ends up in an error message.
const maxErrorBody = 200

func newHTTPClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// postJSON sends body to url and returns the status code and raw response.
// Transport failures come back as a retryable network *domain.ProviderError.
func postJSON(ctx context.Context, client *http.Client, providerName, url string, headers map[string]string, body any) (int, []byte, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		providerRequestDurationHist.WithLabelValues(providerName, outcome).Observe(time.Since(start).Seconds())
	}()

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return 0, nil, &domain.ProviderError{Provider: providerName, Code: "ENCODE", Message: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return 0, nil, &domain.ProviderError{Provider: providerName, Code: "REQUEST", Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, networkError(providerName, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, nil, networkError(providerName, err)
	}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		outcome = "success"
	}
	return httpResp.StatusCode, raw, nil
}

func networkError(providerName string, err error) *domain.ProviderError {
	code := "NETWORK"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = "TIMEOUT"
	}
	return &domain.ProviderError{
		Provider:       providerName,
		Code:           code,
		Message:        "request failed",
		IsNetworkError: true,
		Retryable:      true,
		Err:            err,
	}
}

// httpStatusError builds the error for a non-2xx response. code and message
// come from the provider's error body when it had them.
func httpStatusError(providerName string, status int, code, message string, raw []byte) *domain.ProviderError {
	if code == "" {
		code = strconv.Itoa(status)
	}
	if message == "" {
		message = fmt.Sprintf("http status %d", status)
		if len(raw) > 0 && len(raw) < maxErrorBody {
			message = fmt.Sprintf("http status %d: %s", status, string(raw))
		}
	}
	return &domain.ProviderError{Provider: providerName, Code: code, Message: message}
}
