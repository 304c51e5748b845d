package protocol

import "encoding/json"

// Frame types on the WebSocket connection.
const (
	FrameTypeHello = "hello"
	FrameTypeEvent = "event"
	FrameTypePing  = "ping"
	FrameTypePong  = "pong"
	FrameTypeError = "error"
)

// HelloFrame is the first frame the server sends after upgrade.
type HelloFrame struct {
	Type      string `json:"type"`
	Protocol  int    `json:"protocol"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// EventFrame wraps a bus event for delivery to a client.
type EventFrame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientFrame is what clients may send. Only ping is understood.
type ClientFrame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReplyFrame answers a ClientFrame.
type ReplyFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: name, Payload: payload}
}
