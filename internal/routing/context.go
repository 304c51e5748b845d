package routing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/store"
)

// DefaultWindowSize is the number of prior messages given to a model.
const DefaultWindowSize = 10

// ContextEntry is one line of conversation shown to a model.
type ContextEntry struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	IsBot      bool   `json:"is_bot"`
}

// EntryFromMessage converts a stored message with joined sender fields.
func EntryFromMessage(m store.MessageData) ContextEntry {
	return ContextEntry{SenderName: m.SenderName, Content: m.Content, IsBot: m.SenderIsBot}
}

// Line renders the entry as "name: content", tagging bots with " (AI Bot)".
func (e ContextEntry) Line() string {
	if e.IsBot {
		return e.SenderName + " (AI Bot): " + e.Content
	}
	return e.SenderName + ": " + e.Content
}

// FormatConversation renders entries one per line.
func FormatConversation(entries []ContextEntry) string {
	return strings.Join(lo.Map(entries, func(e ContextEntry, _ int) string { return e.Line() }), "\n")
}

// BuildContext keeps the last windowSize prior entries and appends newMsg.
func BuildContext(prior []ContextEntry, newMsg ContextEntry, windowSize int) []ContextEntry {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if len(prior) > windowSize {
		prior = prior[len(prior)-windowSize:]
	}
	out := make([]ContextEntry, 0, len(prior)+1)
	out = append(out, prior...)
	return append(out, newMsg)
}

// TrimWindow bounds a caller-supplied window that already ends with the
// answered message to windowSize prior entries plus that message.
func TrimWindow(window []ContextEntry, windowSize int) []ContextEntry {
	if len(window) == 0 {
		return window
	}
	return BuildContext(window[:len(window)-1], window[len(window)-1], windowSize)
}

// Builder loads context windows from the message store.
type Builder struct {
	messages   store.MessageStore
	windowSize int
}

func NewBuilder(messages store.MessageStore, windowSize int) *Builder {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Builder{messages: messages, windowSize: windowSize}
}

// WindowSize returns the configured number of prior messages.
func (b *Builder) WindowSize() int { return b.windowSize }

// Build returns the window ending with newMsg. On store failure the window
// is just newMsg.
func (b *Builder) Build(ctx context.Context, channelID uuid.UUID, newMsg store.MessageData) []ContextEntry {
	last := EntryFromMessage(newMsg)
	prior, err := b.messages.ListRecentMessages(ctx, channelID, newMsg.ID, b.windowSize)
	if err != nil {
		slog.Warn("routing: load context failed", "channel", channelID, "message", newMsg.ID, "error", err)
		return []ContextEntry{last}
	}
	return BuildContext(lo.Map(prior, func(m store.MessageData, _ int) ContextEntry {
		return EntryFromMessage(m)
	}), last, b.windowSize)
}
