package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

// RosterSource lists a channel's bots. Implemented by *routing.Membership.
type RosterSource interface {
	BotRoster(ctx context.Context, channelID uuid.UUID) ([]routing.Bot, error)
}

// RoutingHandler exposes the orchestrator and reply generator as RPC endpoints.
type RoutingHandler struct {
	roster       RosterSource
	orchestrator routing.Decider
	generator    routing.Replier
	token        string
	windowSize   int
}

// NewRoutingHandler creates a handler. Caller windows are trimmed to
// windowSize prior entries plus the answered message.
func NewRoutingHandler(roster RosterSource, orchestrator routing.Decider, generator routing.Replier, token string, windowSize int) *RoutingHandler {
	if windowSize <= 0 {
		windowSize = routing.DefaultWindowSize
	}
	return &RoutingHandler{roster: roster, orchestrator: orchestrator, generator: generator, token: token, windowSize: windowSize}
}

// RegisterRoutes registers the routing RPC routes on the given mux.
func (h *RoutingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orchestrator", authMiddleware(h.token, h.handleOrchestrate))
	mux.HandleFunc("POST /v1/reply", authMiddleware(h.token, h.handleReply))
}

type wireMessage struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content" validate:"required"`
	IsBot      bool   `json:"is_bot"`
}

func (m wireMessage) entry() routing.ContextEntry {
	return routing.ContextEntry{SenderName: m.SenderName, Content: m.Content, IsBot: m.IsBot}
}

func entries(msgs []wireMessage) []routing.ContextEntry {
	return lo.Map(msgs, func(m wireMessage, _ int) routing.ContextEntry { return m.entry() })
}

type orchestratorRequest struct {
	ChannelID      string        `json:"channelId" validate:"required,uuid"`
	NewMessage     wireMessage   `json:"newMessage"`
	RecentMessages []wireMessage `json:"recentMessages" validate:"dive"`
}

type orchestratorResponse struct {
	ShouldRespond bool    `json:"shouldRespond"`
	BotName       *string `json:"botName"`
	BotID         *string `json:"botId"`
	Reasoning     string  `json:"reasoning,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func (h *RoutingHandler) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestratorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	channelID := uuid.MustParse(req.ChannelID)

	roster, err := h.roster.BotRoster(r.Context(), channelID)
	if err != nil {
		slog.Warn("http: orchestrator roster failed", "channel", channelID, "error", err)
		writeJSON(w, http.StatusInternalServerError, orchestratorResponse{Error: err.Error()})
		return
	}

	window := routing.TrimWindow(entries(req.RecentMessages), h.windowSize)
	d := h.orchestrator.Decide(r.Context(), channelID, req.NewMessage.entry(), window, roster)
	resp := orchestratorResponse{ShouldRespond: d.ShouldRespond, Reasoning: d.Reasoning}
	if d.ShouldRespond {
		id := d.BotID.String()
		resp.BotName = &d.BotName
		resp.BotID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

type replyRequest struct {
	BotID          string        `json:"botId" validate:"required,uuid"`
	ChannelID      string        `json:"channelId" validate:"required,uuid"`
	MessageContent string        `json:"messageContent" validate:"required"`
	RecentMessages []wireMessage `json:"recentMessages" validate:"dive"`
}

type replyResponse struct {
	Success  bool               `json:"success"`
	Message  *store.MessageData `json:"message,omitempty"`
	Response string             `json:"response,omitempty"`
}

func (h *RoutingHandler) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// The answered message is the last window entry; append it when the
	// caller's recent list does not already end with it.
	window := entries(req.RecentMessages)
	if len(window) == 0 || window[len(window)-1].Content != req.MessageContent {
		window = append(window, routing.ContextEntry{SenderName: "User", Content: req.MessageContent})
	}
	window = routing.TrimWindow(window, h.windowSize)

	msg, err := h.generator.GenerateReply(r.Context(), uuid.MustParse(req.BotID), uuid.MustParse(req.ChannelID), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Success: true, Message: msg, Response: msg.Content})
}
