package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

// ModelResolver maps a model kind to a backend. Implemented by *providers.ModelRouter.
type ModelResolver interface {
	Resolve(kind providers.ModelKind) (providers.Provider, string, error)
}

// GeneratorConfig tunes bot reply calls.
type GeneratorConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{Temperature: 0.7, MaxTokens: 500, Timeout: 30 * time.Second}
}

// Generator produces and persists one bot reply per call.
type Generator struct {
	users    store.UserStore
	channels store.ChannelStore
	messages store.MessageStore
	models   ModelResolver
	events   bus.EventPublisher
	cfg      GeneratorConfig
	metrics  *Metrics
}

func NewGenerator(users store.UserStore, channels store.ChannelStore, messages store.MessageStore, models ModelResolver, events bus.EventPublisher, cfg GeneratorConfig, metrics *Metrics) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Generator{users: users, channels: channels, messages: messages, models: models, events: events, cfg: cfg, metrics: metrics}
}

// ResolveBot loads botID and checks it can be invoked.
func (g *Generator) ResolveBot(ctx context.Context, botID uuid.UUID) (*store.UserData, error) {
	u, err := g.users.GetUser(ctx, botID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !u.IsBot {
		return nil, ErrBotNotFound
	}
	if u.SystemPrompt == "" || u.Model == "" {
		return nil, ErrBotNotConfigured
	}
	if !u.Model.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, u.Model)
	}
	return u, nil
}

// GenerateReply calls the bot's model once over window and stores the
// reply. window must end with the message being answered. Nothing is
// stored when the model call fails.
func (g *Generator) GenerateReply(ctx context.Context, botID, channelID uuid.UUID, window []ContextEntry) (*store.MessageData, error) {
	ctx, span := tracer.Start(ctx, "routing.generate", trace.WithAttributes(
		attribute.String("bot", botID.String()),
		attribute.String("channel", channelID.String()),
	))
	defer span.End()

	msg, err := g.generate(ctx, botID, channelID, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return msg, nil
}

func (g *Generator) generate(ctx context.Context, botID, channelID uuid.UUID, window []ContextEntry) (*store.MessageData, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: empty context window", ErrInvalidInput)
	}
	bot, err := g.ResolveBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	member, err := g.channels.IsMember(ctx, channelID, bot.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: check membership: %v", ErrStoreUnavailable, err)
	}
	if !member {
		return nil, fmt.Errorf("%w: bot %s is not a member of channel %s", ErrUnauthorized, bot.ID, channelID)
	}
	provider, model, err := g.models.Resolve(bot.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve model: %v", ErrGenerationFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Chat(callCtx, providers.ChatRequest{
		Model:    model,
		System:   bot.SystemPrompt,
		Messages: []providers.Message{{Role: "user", Content: BuildReplyPrompt(window)}},
		Options: map[string]interface{}{
			providers.OptTemperature: g.cfg.Temperature,
			providers.OptMaxTokens:   g.cfg.MaxTokens,
		},
	})
	if err != nil {
		g.metrics.reply("error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s: %v", ErrGenerationFailed, g.cfg.Timeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	g.metrics.reply("ok", time.Since(start))

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = FallbackReply
	}

	msg := &store.MessageData{ChannelID: channelID, SenderID: bot.ID, Content: content}
	if err := g.messages.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: insert reply: %v", ErrStoreUnavailable, err)
	}
	msg.SenderName = bot.Name
	msg.SenderIsBot = true

	slog.Info("routing: bot replied", "channel", channelID, "bot", bot.ID, "message", msg.ID, "model", model)
	publish(g.events, protocol.EventMessageCreated, messagePayload(msg))
	return msg, nil
}
