package messagebroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectStatusChanged  = "porting.status.changed"
	SubjectDeliveryFailed = "porting.delivery.failed"
)

// Publisher is the narrow interface the services depend on.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSClient wraps a NATS connection.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to NATS with infinite reconnects.
// natsURL example: "nats://localhost:4222"
func NewNATSClient(natsURL, appName string, logger *slog.Logger) (*NATSClient, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSClient{conn: nc, logger: logger}, nil
}

// Publish sends data on subject. The context is checked before the write
// since core NATS publishes are fire-and-forget.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("NATS drain failed", "error", err)
			c.conn.Close()
		}
	}
}

// NoopPublisher drops every event. Used when NATS_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }

// PublishJSON marshals event and publishes it, logging instead of failing the
// caller: events are notifications, not part of the write path.
func PublishJSON(ctx context.Context, p Publisher, logger *slog.Logger, subject string, event any) {
	if p == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
