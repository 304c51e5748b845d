package routing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

// Path names the branch of the decision table a message took.
type Path string

const (
	PathDMBot        Path = "dm_bot"
	PathDMHuman      Path = "dm_human"
	PathMentions     Path = "mentions"
	PathOrchestrator Path = "orchestrator"
	PathSkipped      Path = "skipped"
	PathDuplicate    Path = "duplicate"
)

// Outcome records what a routing pass did.
type Outcome struct {
	Path     Path
	Invoked  []uuid.UUID
	Replies  []store.MessageData
	Failures map[uuid.UUID]error
	Decision *Decision
}

// Decider is implemented by *Orchestrator.
type Decider interface {
	Decide(ctx context.Context, channelID uuid.UUID, newMsg ContextEntry, window []ContextEntry, roster []Bot) Decision
}

// Replier is implemented by *Generator.
type Replier interface {
	GenerateReply(ctx context.Context, botID, channelID uuid.UUID, window []ContextEntry) (*store.MessageData, error)
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	MaxParallelReplies int
	// DedupeTTL > 0 makes a repeated pass for the same message id a no-op.
	DedupeTTL time.Duration
}

// Controller applies the routing decision table to persisted human messages.
type Controller struct {
	membership   *Membership
	builder      *Builder
	orchestrator Decider
	generator    Replier
	events       bus.EventPublisher
	dedupe       *bus.DedupeCache
	maxParallel  int
	metrics      *Metrics
}

func NewController(membership *Membership, builder *Builder, orchestrator Decider, generator Replier, events bus.EventPublisher, cfg ControllerConfig, metrics *Metrics) *Controller {
	if cfg.MaxParallelReplies <= 0 {
		cfg.MaxParallelReplies = 4
	}
	var dedupe *bus.DedupeCache
	if cfg.DedupeTTL > 0 {
		dedupe = bus.NewDedupeCache(cfg.DedupeTTL, 10000)
	}
	return &Controller{
		membership:   membership,
		builder:      builder,
		orchestrator: orchestrator,
		generator:    generator,
		events:       events,
		dedupe:       dedupe,
		maxParallel:  cfg.MaxParallelReplies,
		metrics:      metrics,
	}
}

// Route runs one routing pass for msg. It never returns an error; failures
// are recorded in the outcome and logged.
func (c *Controller) Route(ctx context.Context, msg store.MessageData) Outcome {
	ctx, span := tracer.Start(ctx, "routing.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", msg.ChannelID.String()),
		attribute.String("message", msg.ID.String()),
	)

	out := c.route(ctx, msg)

	span.SetAttributes(attribute.String("path", string(out.Path)), attribute.Int("invoked", len(out.Invoked)))
	c.metrics.route(string(out.Path))
	slog.Info("routing: decision",
		"channel", msg.ChannelID,
		"message", msg.ID,
		"path", out.Path,
		"invoked", len(out.Invoked),
		"replies", len(out.Replies),
		"failures", len(out.Failures),
	)
	if out.Path != PathDuplicate {
		payload := protocol.RoutingDecisionPayload{
			ChannelID: msg.ChannelID.String(),
			MessageID: msg.ID.String(),
			Path:      string(out.Path),
			BotIDs:    idStrings(out.Invoked),
		}
		if out.Decision != nil {
			payload.Reasoning = out.Decision.Reasoning
		}
		publish(c.events, protocol.EventRoutingDecision, payload)
	}
	return out
}

func (c *Controller) route(ctx context.Context, msg store.MessageData) Outcome {
	if msg.SenderIsBot {
		return Outcome{Path: PathSkipped}
	}
	if c.dedupe.IsDuplicate(msg.ID.String()) {
		return Outcome{Path: PathDuplicate}
	}

	view, err := c.membership.ResolveChannel(ctx, msg.ChannelID)
	if err != nil {
		slog.Warn("routing: resolve channel failed", "channel", msg.ChannelID, "message", msg.ID, "error", err)
		return Outcome{Path: PathSkipped}
	}
	sender, ok := lo.Find(view.Members, func(u store.UserData) bool { return u.ID == msg.SenderID })
	if !ok || sender.IsBot {
		return Outcome{Path: PathSkipped}
	}
	if msg.SenderName == "" {
		msg.SenderName = sender.Name
	}

	if !view.Channel.IsGroup {
		other, ok := view.OtherMember(msg.SenderID)
		if !ok || !other.IsBot {
			return Outcome{Path: PathDMHuman}
		}
		window := c.builder.Build(ctx, msg.ChannelID, msg)
		return c.replyAll(ctx, PathDMBot, msg.ChannelID, []uuid.UUID{other.ID}, window)
	}

	roster := view.Bots()
	window := c.builder.Build(ctx, msg.ChannelID, msg)

	if mentioned := ExtractMentions(msg.Content, roster); len(mentioned) > 0 {
		return c.replyAll(ctx, PathMentions, msg.ChannelID, mentioned, window)
	}

	// The history given to the classifier ends with the message itself.
	decision := c.orchestrator.Decide(ctx, msg.ChannelID, EntryFromMessage(msg), window, roster)
	if !decision.ShouldRespond {
		return Outcome{Path: PathOrchestrator, Decision: &decision}
	}
	out := c.replyAll(ctx, PathOrchestrator, msg.ChannelID, []uuid.UUID{decision.BotID}, window)
	out.Decision = &decision
	return out
}

// replyAll runs one independent generation per bot, bounded by maxParallel.
func (c *Controller) replyAll(ctx context.Context, path Path, channelID uuid.UUID, botIDs []uuid.UUID, window []ContextEntry) Outcome {
	out := Outcome{Path: path, Invoked: botIDs}
	replies := make([]*store.MessageData, len(botIDs))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.maxParallel)
	for i, botID := range botIDs {
		g.Go(func() error {
			reply, err := c.generator.GenerateReply(ctx, botID, channelID, window)
			if err != nil {
				slog.Warn("routing: reply failed", "channel", channelID, "bot", botID, "path", path, "error", err)
				mu.Lock()
				if out.Failures == nil {
					out.Failures = make(map[uuid.UUID]error)
				}
				out.Failures[botID] = err
				mu.Unlock()
				return nil
			}
			replies[i] = reply
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range replies {
		if r != nil {
			out.Replies = append(out.Replies, *r)
		}
	}
	return out
}
