package http

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/routing"
)

// ChannelsHandler serves channels, memberships and messages.
type ChannelsHandler struct {
	svc             *routing.Service
	token           string
	maxMessageChars int
	allow           func(key string) bool
}

func NewChannelsHandler(svc *routing.Service, token string, maxMessageChars int) *ChannelsHandler {
	return &ChannelsHandler{svc: svc, token: token, maxMessageChars: maxMessageChars}
}

// SetRateLimiter installs a per-sender admission check for new messages.
func (h *ChannelsHandler) SetRateLimiter(allow func(key string) bool) {
	h.allow = allow
}

// RegisterRoutes registers all channel routes on the given mux.
func (h *ChannelsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/channels", authMiddleware(h.token, h.handleListChannels))
	mux.HandleFunc("POST /v1/channels", authMiddleware(h.token, h.handleCreateGroup))
	mux.HandleFunc("POST /v1/dms", authMiddleware(h.token, h.handleOpenDirect))
	mux.HandleFunc("GET /v1/channels/{id}/members", authMiddleware(h.token, h.handleListMembers))
	mux.HandleFunc("POST /v1/channels/{id}/members", authMiddleware(h.token, h.handleAddMember))
	mux.HandleFunc("DELETE /v1/channels/{id}/members/{userID}", authMiddleware(h.token, h.handleRemoveMember))
	mux.HandleFunc("GET /v1/channels/{id}/messages", authMiddleware(h.token, h.handleListMessages))
	mux.HandleFunc("POST /v1/channels/{id}/messages", authMiddleware(h.token, h.handleSendMessage))
}

func (h *ChannelsHandler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channels, err := h.svc.ListChannels(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

type createGroupRequest struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"member_ids" validate:"dive,uuid"`
}

func (h *ChannelsHandler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	members := lo.Map(req.MemberIDs, func(s string, _ int) uuid.UUID { return uuid.MustParse(s) })
	ch, err := h.svc.CreateGroup(r.Context(), actor, req.Name, members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

type openDirectRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func (h *ChannelsHandler) handleOpenDirect(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req openDirectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ch, created, err := h.svc.OpenDirect(r.Context(), actor, uuid.MustParse(req.UserID))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ch)
}

func (h *ChannelsHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(r.Context(), actor, channelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

type addMemberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func (h *ChannelsHandler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.AddMember(r.Context(), actor, channelID, uuid.MustParse(req.UserID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *ChannelsHandler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(r.Context(), actor, channelID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *ChannelsHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	msgs, err := h.svc.ListMessages(r.Context(), actor, channelID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *ChannelsHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if h.maxMessageChars > 0 && utf8.RuneCountInString(req.Content) > h.maxMessageChars {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("message exceeds %d characters", h.maxMessageChars)})
		return
	}
	if h.allow != nil && !h.allow(actor.String()) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), actor, channelID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
