package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/providers"
)

//go:generate go run go.uber.org/mock/mockgen -source=chat_store.go -destination=../mocks/mock_store.go -package=mocks

// ErrNotFound is returned by every backend when a row does not exist.
var ErrNotFound = errors.New("not found")

// UserData is a chat participant: a human or a bot.
type UserData struct {
	ID             uuid.UUID           `json:"id"`
	Name           string              `json:"name"`
	Email          string              `json:"email"`
	ProfilePicture *string             `json:"profile_picture,omitempty"`
	IsBot          bool                `json:"is_bot"`
	SystemPrompt   string              `json:"system_prompt,omitempty"` // bots only
	Model          providers.ModelKind `json:"model,omitempty"`         // bots only
	CreatedAt      time.Time           `json:"created_at"`
}

// Configured reports whether a bot carries both a persona and a known model.
func (u *UserData) Configured() bool {
	return u.IsBot && u.SystemPrompt != "" && u.Model.Valid()
}

// ChannelData is a group chat or a 1:1 direct channel.
type ChannelData struct {
	ID        uuid.UUID `json:"id"`
	Name      *string   `json:"name"` // nil for direct channels
	IsGroup   bool      `json:"is_group"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// OtherUserName is filled by ListChannelsForUser for direct channels.
	OtherUserName string `json:"other_user_name,omitempty"`
}

// MessageData is an immutable chat message.
type MessageData struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Joined from users on read paths.
	SenderName  string `json:"sender_name,omitempty"`
	SenderIsBot bool   `json:"sender_is_bot"`
}

// UserStore manages participants.
type UserStore interface {
	CreateUser(ctx context.Context, u *UserData) error
	// UpsertUser inserts or refreshes a human's profile, keyed by ID.
	UpsertUser(ctx context.Context, u *UserData) error
	GetUser(ctx context.Context, id uuid.UUID) (*UserData, error)
	// ListUsers orders humans before bots, then by name.
	ListUsers(ctx context.Context) ([]UserData, error)
}

// ChannelStore manages channels and memberships.
type ChannelStore interface {
	// CreateChannel inserts the channel and all memberships atomically.
	CreateChannel(ctx context.Context, ch *ChannelData, memberIDs []uuid.UUID) error
	GetChannel(ctx context.Context, id uuid.UUID) (*ChannelData, error)
	// FindDirectChannel returns the non-group channel both users belong to.
	FindDirectChannel(ctx context.Context, a, b uuid.UUID) (*ChannelData, error)
	// ListChannelsForUser returns the user's channels, newest first.
	ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]ChannelData, error)
	AddMember(ctx context.Context, channelID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
	// ListMembers returns members joined with their user rows, in join order.
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]UserData, error)
}

// MessageStore is append-only.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *MessageData) error
	GetMessage(ctx context.Context, id uuid.UUID) (*MessageData, error)
	// ListRecentMessages returns up to limit messages strictly older than
	// before (uuid.Nil = no bound), oldest first, with sender fields joined.
	ListRecentMessages(ctx context.Context, channelID, before uuid.UUID, limit int) ([]MessageData, error)
}
