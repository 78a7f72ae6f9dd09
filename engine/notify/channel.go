package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/pkg/natsutil"
)

// Channel hands a notification to a delivery medium.
type Channel interface {
	Deliver(ctx context.Context, ev domain.NotificationEvent) error
}

// ConsoleChannel writes notifications to the log.
type ConsoleChannel struct {
	logger *slog.Logger
}

// NewConsoleChannel creates a ConsoleChannel.
func NewConsoleChannel(logger *slog.Logger) *ConsoleChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleChannel{logger: logger}
}

func (c *ConsoleChannel) Deliver(_ context.Context, ev domain.NotificationEvent) error {
	c.logger.Info("notification",
		"id", ev.ID,
		"user_id", ev.UserID,
		"channel", ev.Channel,
		"message", ev.Message,
	)
	return nil
}

// NATSChannel publishes events to {prefix}.{channel} and falls back to
// another channel when publishing fails.
type NATSChannel struct {
	nc       *nats.Conn
	prefix   string
	fallback Channel
	logger   *slog.Logger
}

// NewNATSChannel creates a NATSChannel. fallback may be nil.
func NewNATSChannel(nc *nats.Conn, prefix string, fallback Channel, logger *slog.Logger) *NATSChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSChannel{nc: nc, prefix: prefix, fallback: fallback, logger: logger}
}

// Subject returns the subject an event is published on.
func (c *NATSChannel) Subject(ev domain.NotificationEvent) string {
	return c.prefix + "." + string(ev.Channel)
}

func (c *NATSChannel) Deliver(ctx context.Context, ev domain.NotificationEvent) error {
	err := c.publish(ctx, ev)
	if err == nil {
		return nil
	}
	if c.fallback == nil {
		return err
	}
	c.logger.Warn("notify: publish failed, using fallback channel", "subject", c.Subject(ev), "err", err)
	return c.fallback.Deliver(ctx, ev)
}

func (c *NATSChannel) publish(ctx context.Context, ev domain.NotificationEvent) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("notify: publish %s: %w", c.Subject(ev), nats.ErrConnectionClosed)
	}
	if err := natsutil.Publish(ctx, c.nc, c.Subject(ev), ev); err != nil {
		return fmt.Errorf("notify: publish %s: %w", c.Subject(ev), err)
	}
	return nil
}
