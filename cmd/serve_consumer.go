package cmd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

const routingConsumerID = "routing-consumer"

type messageRouter interface {
	Route(ctx context.Context, msg store.MessageData) routing.Outcome
}

// routingConsumer runs one routing pass per human message.created event.
// Passes run off the broadcasting goroutine, each bounded by timeout and
// detached from the request that stored the message.
type routingConsumer struct {
	router  messageRouter
	timeout time.Duration
	wg      sync.WaitGroup
}

func newRoutingConsumer(router messageRouter, timeout time.Duration) *routingConsumer {
	return &routingConsumer{router: router, timeout: timeout}
}

func (c *routingConsumer) Start(events bus.EventPublisher) {
	events.Subscribe(routingConsumerID, c.handle)
	slog.Info("routing consumer started", "timeout", c.timeout)
}

func (c *routingConsumer) handle(event bus.Event) {
	if event.Name != protocol.EventMessageCreated {
		return
	}
	var payload protocol.MessagePayload
	switch p := event.Payload.(type) {
	case protocol.MessagePayload:
		payload = p
	case *protocol.MessagePayload:
		payload = *p
	default:
		return
	}
	if payload.SenderIsBot {
		return
	}
	msg, err := routing.MessageFromPayload(payload)
	if err != nil {
		slog.Warn("routing consumer: bad message payload", "message", payload.ID, "error", err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		out := c.router.Route(ctx, msg)
		slog.Debug("routing consumer: pass done", "message", msg.ID, "path", out.Path, "replies", len(out.Replies))
	}()
}

// Wait blocks until in-flight passes finish or ctx is done.
func (c *routingConsumer) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("routing consumer: shutdown with passes in flight")
	}
}
