package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewProviders_NilWhenUnconfigured(t *testing.T) {
	logger := discardLogger()
	assert.Nil(t, NewTransactionalProvider(config.ProviderConfig{}, nil, logger))
	assert.Nil(t, NewRegionalProvider(config.ProviderConfig{URL: "http://x"}, nil, logger))
	assert.Nil(t, NewHTTPEmailProvider(config.ProviderConfig{APIKey: "k"}, nil, logger))
	assert.Nil(t, NewHTTPPushProvider(config.ProviderConfig{}, nil, logger))
}

func TestTransactionalProvider_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body transactionalSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PORTIN", body.From)
		assert.Equal(t, "+14155550100", body.To)
		assert.Equal(t, "hello", body.Body)
		assert.Equal(t, "n-1", body.ClientRef)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(transactionalSendResponse{SID: "SM123", Status: "queued"})
	}))
	defer server.Close()

	p := NewTransactionalProvider(config.ProviderConfig{Name: "tx", URL: server.URL, APIKey: "test-key", Sender: "PORTIN"}, server.Client(), discardLogger())
	require.NotNil(t, p)
	assert.Equal(t, "tx", p.GetName())

	resp, err := p.Send(context.Background(), SendRequestDetails{InternalMessageID: "n-1", Recipient: "+14155550100", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", resp.ProviderMessageID)
	assert.Equal(t, "queued", resp.ProviderStatus)
}

func TestTransactionalProvider_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transactionalSendResponse{Code: 21211, Message: "invalid To number"})
	}))
	defer server.Close()

	p := NewTransactionalProvider(config.ProviderConfig{URL: server.URL, APIKey: "k"}, server.Client(), discardLogger())
	_, err := p.Send(context.Background(), SendRequestDetails{Recipient: "+1", Content: "x"})
	require.Error(t, err)

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "21211", pe.Code)
	assert.Equal(t, "invalid To number", pe.Message)
	assert.False(t, pe.IsNetworkError)
	assert.True(t, errors.Is(err, domain.ErrProviderPermanent))
}

func TestTransactionalProvider_Send_ServerErrorUsesHTTPStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("busy"))
	}))
	defer server.Close()

	p := NewTransactionalProvider(config.ProviderConfig{URL: server.URL, APIKey: "k"}, server.Client(), discardLogger())
	_, err := p.Send(context.Background(), SendRequestDetails{Recipient: "+1", Content: "x"})

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "503", pe.Code)
	assert.Contains(t, pe.Message, "busy")
}

func TestTransactionalProvider_Send_TimeoutIsRetryableNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	p := NewTransactionalProvider(config.ProviderConfig{URL: server.URL, APIKey: "k"}, server.Client(), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, SendRequestDetails{Recipient: "+1", Content: "x"})
	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.IsNetworkError)
	assert.Equal(t, "TIMEOUT", pe.Code)
	assert.True(t, errors.Is(err, domain.ErrProviderTransient))
}

func TestRegionalProvider_SendTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flow", r.URL.Path)
		assert.Equal(t, "auth-1", r.Header.Get("authkey"))

		var body regionalFlowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tpl-9", body.TemplateID)
		require.Len(t, body.Recipients, 1)
		assert.Equal(t, "919876543210", body.Recipients[0]["mobiles"])
		assert.Equal(t, "PRT-ABCD1234", body.Recipients[0]["reference"])

		json.NewEncoder(w).Encode(regionalResponse{Type: "success", RequestID: "req-77"})
	}))
	defer server.Close()

	p := NewRegionalProvider(config.ProviderConfig{URL: server.URL, APIKey: "auth-1", Sender: "PRTSMS"}, server.Client(), discardLogger())
	resp, err := p.SendTemplate(context.Background(), TemplateRequestDetails{
		Recipient:  "919876543210",
		TemplateID: "tpl-9",
		Variables:  map[string]string{"reference": "PRT-ABCD1234", "mobiles": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-77", resp.ProviderMessageID)
}

func TestRegionalProvider_Send_ErrorWithHTTP200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sms/send", r.URL.Path)
		json.NewEncoder(w).Encode(regionalResponse{Type: "error", Code: "418", Message: "DLT template mismatch"})
	}))
	defer server.Close()

	p := NewRegionalProvider(config.ProviderConfig{URL: server.URL, APIKey: "a"}, server.Client(), discardLogger())
	_, err := p.Send(context.Background(), SendRequestDetails{Recipient: "919876543210", Content: "x"})

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "418", pe.Code)
	assert.Equal(t, "regional", pe.Provider)
}

func TestRegionalProvider_SendTemplate_EmptyTemplateID(t *testing.T) {
	p := NewRegionalProvider(config.ProviderConfig{URL: "http://127.0.0.1:1", APIKey: "a"}, nil, discardLogger())
	_, err := p.SendTemplate(context.Background(), TemplateRequestDetails{Recipient: "91"})
	assert.ErrorIs(t, err, domain.ErrTemplatesNotSupported)
}

func TestHTTPEmailProvider_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body emailSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"user@example.com"}, body.To)
		assert.Equal(t, "Porting update", body.Subject)
		assert.Equal(t, "noreply@example.com", body.From)
		json.NewEncoder(w).Encode(emailSendResponse{ID: "em-1"})
	}))
	defer server.Close()

	p := NewHTTPEmailProvider(config.ProviderConfig{URL: server.URL, APIKey: "k", Sender: "noreply@example.com"}, server.Client(), discardLogger())
	id, err := p.Send(context.Background(), "user@example.com", "Porting update", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "em-1", id)
}

func TestHTTPPushProvider_Send_NoRecipients(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body pushSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"user-1"}, body.ExternalUserIDs)
		assert.Equal(t, "app-1", body.AppID)
		json.NewEncoder(w).Encode(pushSendResponse{ID: "", Recipients: 0})
	}))
	defer server.Close()

	p := NewHTTPPushProvider(config.ProviderConfig{URL: server.URL, APIKey: "k", Sender: "app-1"}, server.Client(), discardLogger())
	_, err := p.Send(context.Background(), "user-1", "title", "body")

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "NO_RECIPIENTS", pe.Code)
	assert.False(t, pe.Retryable)
}

func TestMockSMSProvider_FailNext(t *testing.T) {
	p := NewMockTemplateSMSProvider("m", discardLogger())
	boom := &domain.ProviderError{Provider: "m", Code: "X"}
	p.FailNext(boom)

	_, err := p.SendTemplate(context.Background(), TemplateRequestDetails{TemplateID: "t"})
	assert.ErrorIs(t, err, boom)

	resp, err := p.Send(context.Background(), SendRequestDetails{Recipient: "1"})
	require.NoError(t, err)
	assert.Contains(t, resp.ProviderMessageID, "mock-")
	assert.Equal(t, 2, p.Calls())
	assert.Len(t, p.Templated(), 1)
	assert.Len(t, p.Sent(), 1)
}
