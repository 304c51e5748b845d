package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

// Bot is a bot member as seen by routing.
type Bot struct {
	ID           uuid.UUID
	Name         string
	SystemPrompt string
	Model        providers.ModelKind
}

// ChannelView is a channel together with its members.
type ChannelView struct {
	Channel *store.ChannelData
	Members []store.UserData
}

// Bots returns the bot members in member order.
func (v *ChannelView) Bots() []Bot {
	return botsOf(v.Members)
}

// OtherMember returns the first member that is not userID.
func (v *ChannelView) OtherMember(userID uuid.UUID) (store.UserData, bool) {
	return lo.Find(v.Members, func(u store.UserData) bool { return u.ID != userID })
}

func botsOf(members []store.UserData) []Bot {
	return lo.FilterMap(members, func(u store.UserData, _ int) (Bot, bool) {
		if !u.IsBot {
			return Bot{}, false
		}
		return Bot{ID: u.ID, Name: u.Name, SystemPrompt: u.SystemPrompt, Model: u.Model}, true
	})
}

// Membership resolves channel rosters.
type Membership struct {
	channels store.ChannelStore
}

func NewMembership(channels store.ChannelStore) *Membership {
	return &Membership{channels: channels}
}

// ListBotMembers returns the channel's bots. Store failures yield an empty list.
func (m *Membership) ListBotMembers(ctx context.Context, channelID uuid.UUID) []Bot {
	bots, err := m.BotRoster(ctx, channelID)
	if err != nil {
		slog.Warn("routing: list members failed", "channel", channelID, "error", err)
		return nil
	}
	return bots
}

// BotRoster is ListBotMembers for callers that must report store failures.
func (m *Membership) BotRoster(ctx context.Context, channelID uuid.UUID) ([]Bot, error) {
	members, err := m.channels.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", storeErr(err))
	}
	return botsOf(members), nil
}

// ResolveChannel loads the channel and all of its members.
func (m *Membership) ResolveChannel(ctx context.Context, channelID uuid.UUID) (*ChannelView, error) {
	ch, err := m.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", storeErr(err))
	}
	members, err := m.channels.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", storeErr(err))
	}
	return &ChannelView{Channel: ch, Members: members}, nil
}

// storeErr keeps ErrNotFound visible and marks everything else unavailable.
func storeErr(err error) error {
	if err == nil || isNotFound(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
