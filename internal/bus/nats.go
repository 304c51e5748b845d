package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn used for fan-out.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher delivers events to local subscribers and mirrors every
// broadcast to NATS as JSON on "{prefix}.{event name}", so external
// delivery services can consume the stream.
type NATSPublisher struct {
	*MessageBus
	conn   natsConn
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url and wraps local.
func NewNATSPublisher(local *MessageBus, url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	opts = append([]nats.Option{
		nats.Name("botchat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("bus: nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("bus: nats reconnected", "url", nc.ConnectedUrl())
		}),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p := newNATSPublisher(local, nc, prefix)
	p.nc = nc
	return p, nil
}

func newNATSPublisher(local *MessageBus, conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "botchat"
	}
	return &NATSPublisher{MessageBus: local, conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Broadcast delivers locally first, then publishes to NATS. A NATS failure
// is logged and never blocks local delivery.
func (p *NATSPublisher) Broadcast(event Event) {
	p.MessageBus.Broadcast(event)

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("bus: marshal event for nats", "event", event.Name, "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(event.Name), data); err != nil {
		slog.Warn("bus: nats publish failed", "event", event.Name, "error", err)
	}
}

// Subject returns the NATS subject for an event name.
func (p *NATSPublisher) Subject(name string) string {
	return p.prefix + "." + name
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
