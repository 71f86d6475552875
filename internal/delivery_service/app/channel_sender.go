package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/delivery_service/provider"
)

// SMSMessage is one outbound SMS. Message is the locally rendered text used
// when no provider template applies.
type SMSMessage struct {
	ID         string
	To         string
	Message    string
	TemplateID string
	Variables  map[string]string
}

// SendOutcome describes a delivery. Attempts is filled on failure too.
type SendOutcome struct {
	Provider          string
	ProviderMessageID string
	Attempts          int
}

// ChannelSender routes SMS between the primary (international) and the
// secondary (domestic) gateway. A nil gateway is treated as unconfigured.
type ChannelSender struct {
	primary        provider.SMSSenderProvider
	secondary      provider.SMSSenderProvider
	primaryName    string
	secondaryName  string
	domesticPrefix string
	policy         RetryPolicy
	logger         *slog.Logger
	sleep          sleepFunc
}

func NewChannelSender(primary, secondary provider.SMSSenderProvider, domesticPrefix string, policy RetryPolicy, logger *slog.Logger) *ChannelSender {
	s := &ChannelSender{
		primary:        primary,
		secondary:      secondary,
		primaryName:    "primary",
		secondaryName:  "secondary",
		domesticPrefix: domesticPrefix,
		policy:         policy,
		logger:         logger.With("component", "sms_channel"),
		sleep:          sleepCtx,
	}
	if primary != nil {
		s.primaryName = primary.GetName()
	}
	if secondary != nil {
		s.secondaryName = secondary.GetName()
	}
	return s
}

type route struct {
	name      string
	gateway   provider.SMSSenderProvider
	recipient string
}

// Send delivers msg. Domestic numbers go to the secondary gateway only;
// others go to the primary with no fallback.
func (s *ChannelSender) Send(ctx context.Context, msg SMSMessage) (SendOutcome, error) {
	digits := digitsOnly(msg.To)
	if len(digits) < 8 {
		return SendOutcome{}, &domain.ProviderError{Provider: "router", Code: "INVALID_DESTINATION", Message: "recipient " + msg.To + " is not a phone number"}
	}

	var routes []route
	if national, ok := s.domestic(digits); ok {
		routes = append(routes, route{name: s.secondaryName, gateway: s.secondary, recipient: s.domesticPrefix + national})
	} else {
		routes = append(routes, route{name: s.primaryName, gateway: s.primary, recipient: "+" + digits})
	}

	var out SendOutcome
	var lastErr error
	for _, r := range routes {
		if r.gateway == nil {
			lastErr = domain.NewConfigMissingError(r.name)
			s.logger.WarnContext(ctx, "SMS gateway not configured", "provider", r.name, "notification_id", msg.ID)
			continue
		}
		resp, attempts, err := s.sendVia(ctx, r, msg)
		out.Attempts += attempts
		if err == nil {
			out.Provider = r.gateway.GetName()
			out.ProviderMessageID = resp.ProviderMessageID
			return out, nil
		}
		lastErr = err
		s.logger.WarnContext(ctx, "SMS gateway failed", "provider", r.name, "notification_id", msg.ID, "attempts", attempts, "error", err)
	}
	return out, lastErr
}

// sendVia tries the provider template first when both sides support it, then
// the plain text.
func (s *ChannelSender) sendVia(ctx context.Context, r route, msg SMSMessage) (*provider.SendResponseDetails, int, error) {
	attempts := 0
	if tpl, ok := r.gateway.(provider.TemplateSender); ok && msg.TemplateID != "" {
		resp, n, err := withRetry(ctx, s.policy, s.sleep, r.name, func(ctx context.Context) (*provider.SendResponseDetails, error) {
			return tpl.SendTemplate(ctx, provider.TemplateRequestDetails{
				InternalMessageID: msg.ID,
				Recipient:         r.recipient,
				TemplateID:        msg.TemplateID,
				Variables:         msg.Variables,
			})
		})
		attempts += n
		if err == nil {
			return resp, attempts, nil
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, attempts, err
		}
		s.logger.InfoContext(ctx, "Template send failed, falling back to plain text", "provider", r.name, "notification_id", msg.ID, "error", err)
	}

	resp, n, err := withRetry(ctx, s.policy, s.sleep, r.name, func(ctx context.Context) (*provider.SendResponseDetails, error) {
		return r.gateway.Send(ctx, provider.SendRequestDetails{
			InternalMessageID: msg.ID,
			Recipient:         r.recipient,
			Content:           msg.Message,
		})
	})
	return resp, attempts + n, err
}

// domestic reports whether digits is a national number, bare or with the
// domestic country code, and returns the national part.
func (s *ChannelSender) domestic(digits string) (string, bool) {
	switch {
	case len(digits) == 10:
		return digits, true
	case s.domesticPrefix != "" && len(digits) == 10+len(s.domesticPrefix) && strings.HasPrefix(digits, s.domesticPrefix):
		return digits[len(s.domesticPrefix):], true
	}
	return "", false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
