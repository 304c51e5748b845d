package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 64 * 1024
	sendQueueLen = 128
)

// Client is one WebSocket subscriber scoped to a channel, a user, or both.
type Client struct {
	id        string
	channelID string
	userID    string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, channelID, userID string) *Client {
	return &Client{
		id:        uuid.NewString(),
		channelID: channelID,
		userID:    userID,
		conn:      conn,
		send:      make(chan []byte, sendQueueLen),
		done:      make(chan struct{}),
	}
}

// Wants reports whether event is addressed to this client's channel or user.
func (c *Client) Wants(event bus.Event) bool {
	switch p := event.Payload.(type) {
	case protocol.MemberPayload:
		if c.userID != "" && p.UserID == c.userID {
			return true
		}
	case protocol.ChannelPayload:
		if c.userID != "" && slices.Contains(p.MemberIDs, c.userID) {
			return true
		}
	case protocol.BotPayload:
		return true
	}
	scoped, ok := event.Payload.(protocol.ChannelScoped)
	if !ok {
		return false
	}
	return c.channelID != "" && scoped.ChannelKey() == c.channelID
}

// SendEvent queues an event frame. A client whose queue is full is dropped.
func (c *Client) SendEvent(frame protocol.EventFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("gateway: marshal event", "event", frame.Event, "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("gateway: client send queue full, closing", "id", c.id)
		c.Close()
	}
}

// Run sends the hello frame and pumps frames until the connection closes
// or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	hello, _ := json.Marshal(protocol.HelloFrame{
		Type:      protocol.FrameTypeHello,
		Protocol:  protocol.ProtocolVersion,
		ChannelID: c.channelID,
		UserID:    c.userID,
	})
	c.enqueue(hello)

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	c.readLoop()
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway: client read error", "id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame protocol.ClientFrame
		reply := protocol.ReplyFrame{Type: protocol.FrameTypePong}
		if err := json.Unmarshal(data, &frame); err != nil {
			reply = protocol.ReplyFrame{Type: protocol.FrameTypeError, Error: "invalid frame"}
		} else if frame.Type != protocol.FrameTypePing {
			reply = protocol.ReplyFrame{Type: protocol.FrameTypeError, ID: frame.ID, Error: "unsupported frame type: " + frame.Type}
		} else {
			reply.ID = frame.ID
		}
		out, _ := json.Marshal(reply)
		c.enqueue(out)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.conn.Close()
	})
}
