package protocol

import "time"

// ProtocolVersion is sent in the WebSocket hello frame.
const ProtocolVersion = 1

// Event names broadcast on the bus and pushed to WebSocket clients.
const (
	EventMessageCreated  = "message.created"
	EventMemberAdded     = "member.added"
	EventMemberRemoved   = "member.removed"
	EventChannelCreated  = "channel.created"
	EventBotCreated      = "bot.created"
	EventRoutingDecision = "routing.decision"
)

// ChannelScoped is implemented by payloads that belong to a single channel.
// WebSocket clients subscribed to a channel only receive matching events.
type ChannelScoped interface {
	ChannelKey() string
}

// MessagePayload carries a stored chat message.
type MessagePayload struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	SenderIsBot bool      `json:"sender_is_bot"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p MessagePayload) ChannelKey() string { return p.ChannelID }

// MemberPayload is sent for member.added and member.removed.
type MemberPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	ActorID   string `json:"actor_id,omitempty"`
}

func (p MemberPayload) ChannelKey() string { return p.ChannelID }

// ChannelPayload is sent for channel.created.
type ChannelPayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	IsGroup   bool     `json:"is_group"`
	CreatedBy string   `json:"created_by"`
	MemberIDs []string `json:"member_ids"`
}

func (p ChannelPayload) ChannelKey() string { return p.ID }

// BotPayload is sent for bot.created.
type BotPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// RoutingDecisionPayload reports which path the router took for a message.
type RoutingDecisionPayload struct {
	ChannelID string   `json:"channel_id"`
	MessageID string   `json:"message_id"`
	Path      string   `json:"path"`
	BotIDs    []string `json:"bot_ids,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

func (p RoutingDecisionPayload) ChannelKey() string { return p.ChannelID }
