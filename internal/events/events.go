// Package events publishes plan status transitions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// StatusEvent is emitted whenever a plan changes status.
type StatusEvent struct {
	PlanID       string    `json:"plan_id"`
	OwnerID      string    `json:"owner_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers status events.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}

// Noop discards every event.
type Noop struct{}

// PublishStatus implements Publisher.
func (Noop) PublishStatus(context.Context, StatusEvent) error { return nil }

// Subject returns the subject a plan's status events are published on.
func Subject(planID string) string {
	return "tp.plans." + planID + ".status"
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes status events to NATS.
type NATSPublisher struct {
	nc conn
}

// ConnectNATS connects to the server at url.
func ConnectNATS(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("tp"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// PublishStatus implements Publisher.
func (p *NATSPublisher) PublishStatus(ctx context.Context, ev StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publishing status: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}
	if err := p.nc.Publish(Subject(ev.PlanID), data); err != nil {
		return fmt.Errorf("publishing status: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
