package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/botchat/internal/providers"
)

// NoBotsReasoning is the reasoning returned for a channel without bots.
const NoBotsReasoning = "no AI bots in channel"

// Decision is the orchestrator's verdict for a message without mentions.
type Decision struct {
	ShouldRespond bool      `json:"shouldRespond"`
	BotName       string    `json:"botName,omitempty"`
	BotID         uuid.UUID `json:"botId"`
	Reasoning     string    `json:"reasoning,omitempty"`
}

// OrchestratorConfig tunes the classification call.
type OrchestratorConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOrchestratorConfig returns the classifier defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Model:       "openai/gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   200,
		Timeout:     15 * time.Second,
	}
}

// Orchestrator decides whether any bot should answer an unaddressed message.
type Orchestrator struct {
	provider providers.Provider
	cfg      OrchestratorConfig
	metrics  *Metrics
}

func NewOrchestrator(provider providers.Provider, cfg OrchestratorConfig, metrics *Metrics) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Orchestrator{provider: provider, cfg: cfg, metrics: metrics}
}

// Decide never fails: every error path yields ShouldRespond=false.
func (o *Orchestrator) Decide(ctx context.Context, channelID uuid.UUID, newMsg ContextEntry, window []ContextEntry, roster []Bot) Decision {
	ctx, span := tracer.Start(ctx, "routing.orchestrate", trace.WithAttributes(
		attribute.String("channel", channelID.String()),
		attribute.Int("roster", len(roster)),
	))
	defer span.End()

	if len(roster) == 0 {
		o.metrics.decision("no_bots")
		return Decision{Reasoning: NoBotsReasoning}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Model:  o.cfg.Model,
		System: classifierSystemPrompt,
		Messages: []providers.Message{
			{Role: "user", Content: BuildClassificationPrompt(newMsg, window, roster)},
		},
		Options: map[string]interface{}{
			providers.OptTemperature: o.cfg.Temperature,
			providers.OptMaxTokens:   o.cfg.MaxTokens,
		},
	})
	if err != nil {
		slog.Warn("routing: orchestrator call failed", "channel", channelID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "orchestrator call failed")
		o.metrics.decision("error")
		return Decision{Reasoning: "orchestrator unavailable"}
	}

	d, err := ParseDecision(resp.Content)
	if err != nil {
		slog.Warn("routing: orchestrator output malformed", "channel", channelID, "error", err)
		span.RecordError(err)
		o.metrics.decision("malformed")
		return Decision{Reasoning: "orchestrator output malformed"}
	}

	if !d.ShouldRespond {
		slog.Debug("routing: orchestrator declined", "channel", channelID, "reasoning", d.Reasoning)
		o.metrics.decision("decline")
		return Decision{Reasoning: d.Reasoning}
	}
	if d.BotName == "" {
		slog.Warn("routing: orchestrator chose no bot name", "channel", channelID)
		o.metrics.decision("malformed")
		return Decision{Reasoning: d.Reasoning}
	}

	bot, ok := lo.Find(roster, func(b Bot) bool { return b.Name == d.BotName })
	if !ok {
		slog.Warn("routing: orchestrator chose unknown bot", "channel", channelID, "bot", d.BotName)
		o.metrics.decision("unknown_bot")
		return Decision{Reasoning: d.Reasoning}
	}

	span.SetAttributes(attribute.String("bot", bot.ID.String()))
	o.metrics.decision("respond")
	return Decision{ShouldRespond: true, BotName: bot.Name, BotID: bot.ID, Reasoning: d.Reasoning}
}

type rawDecision struct {
	ShouldRespond  *bool   `json:"shouldRespond"`
	ShouldResponse *bool   `json:"shouldResponse"`
	BotName        *string `json:"botName"`
	Reasoning      *string `json:"reasoning"`
}

// ParseDecision extracts the decision object from raw model output. Code
// fences and surrounding prose are tolerated; the object itself must carry a
// boolean shouldRespond (or shouldResponse) and correctly typed fields.
func ParseDecision(raw string) (Decision, error) {
	obj := firstJSONObject(stripCodeFences(raw))
	if obj == "" {
		return Decision{}, fmt.Errorf("%w: no JSON object in output", ErrClassificationMalformed)
	}

	var rd rawDecision
	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	if err := dec.Decode(&rd); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrClassificationMalformed, err)
	}

	should := rd.ShouldRespond
	if should == nil {
		should = rd.ShouldResponse
	}
	if should == nil {
		return Decision{}, fmt.Errorf("%w: missing shouldRespond", ErrClassificationMalformed)
	}

	d := Decision{ShouldRespond: *should}
	if rd.BotName != nil {
		d.BotName = *rd.BotName
	}
	if rd.Reasoning != nil {
		d.Reasoning = *rd.Reasoning
	}
	return d, nil
}
