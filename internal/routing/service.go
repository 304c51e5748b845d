package routing

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

// DefaultHistoryLimit bounds ListMessages when no limit is given.
const DefaultHistoryLimit = 50

var whitespaceRun = regexp.MustCompile(`\s+`)

// Service implements the chat operations around routing: sending messages,
// bots, users, channels and memberships. Every mutation publishes an event.
type Service struct {
	users    store.UserStore
	channels store.ChannelStore
	messages store.MessageStore
	events   bus.EventPublisher
	now      func() time.Time
}

func NewService(stores *store.Stores, events bus.EventPublisher) *Service {
	return &Service{
		users:    stores.Users,
		channels: stores.Channels,
		messages: stores.Messages,
		events:   events,
		now:      time.Now,
	}
}

func (s *Service) requireMember(ctx context.Context, channelID, userID uuid.UUID) error {
	ok, err := s.channels.IsMember(ctx, channelID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", storeErr(err))
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// SendMessage stores a message from a channel member and publishes
// message.created. Non-members are refused before anything is written.
func (s *Service) SendMessage(ctx context.Context, senderID, channelID uuid.UUID, content string) (*store.MessageData, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if err := s.requireMember(ctx, channelID, senderID); err != nil {
		return nil, err
	}
	sender, err := s.users.GetUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", storeErr(err))
	}

	msg := &store.MessageData{ChannelID: channelID, SenderID: senderID, Content: content}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", storeErr(err))
	}
	msg.SenderName = sender.Name
	msg.SenderIsBot = sender.IsBot

	publish(s.events, protocol.EventMessageCreated, messagePayload(msg))
	return msg, nil
}

// ListMessages returns up to limit of the newest messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, actorID, channelID uuid.UUID, limit int) ([]store.MessageData, error) {
	if err := s.requireMember(ctx, channelID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := s.messages.ListRecentMessages(ctx, channelID, uuid.Nil, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", storeErr(err))
	}
	return msgs, nil
}

// CreateBotParams describes a new bot.
type CreateBotParams struct {
	Name           string
	Persona        string
	Model          string
	ProfilePicture *string
}

// CreateBot stores a bot whose system prompt is the persona followed by
// BrevityInstruction. An empty model means DefaultModelKind.
func (s *Service) CreateBot(ctx context.Context, p CreateBotParams) (*store.UserData, error) {
	name := strings.TrimSpace(p.Name)
	persona := strings.TrimSpace(p.Persona)
	if name == "" || persona == "" {
		return nil, fmt.Errorf("%w: name and persona are required", ErrInvalidInput)
	}
	kind := providers.DefaultModelKind
	if p.Model != "" {
		k, err := providers.ParseModelKind(p.Model)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		kind = k
	}

	bot := &store.UserData{
		Name:           name,
		Email:          BotEmail(name, s.now()),
		ProfilePicture: p.ProfilePicture,
		IsBot:          true,
		SystemPrompt:   persona + BrevityInstruction,
		Model:          kind,
	}
	if err := s.users.CreateUser(ctx, bot); err != nil {
		return nil, fmt.Errorf("create bot: %w", storeErr(err))
	}
	slog.Info("routing: bot created", "bot", bot.ID, "name", bot.Name, "model", kind)
	publish(s.events, protocol.EventBotCreated, protocol.BotPayload{ID: bot.ID.String(), Name: bot.Name, Model: string(kind)})
	return bot, nil
}

// BotEmail builds the synthetic address for a bot account.
func BotEmail(name string, at time.Time) string {
	slug := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return fmt.Sprintf("%s_%d@ai.bot", slug, at.UnixMilli())
}

// UpsertUser syncs a human profile after sign-in. An empty name falls back
// to the local part of email.
func (s *Service) UpsertUser(ctx context.Context, id uuid.UUID, email, name string, picture *string) (*store.UserData, error) {
	email = strings.TrimSpace(email)
	if id == uuid.Nil || email == "" {
		return nil, fmt.Errorf("%w: id and email are required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u := &store.UserData{ID: id, Name: name, Email: email, ProfilePicture: picture}
	if err := s.users.UpsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("upsert user: %w", storeErr(err))
	}
	return s.users.GetUser(ctx, id)
}

// ListUsers returns humans before bots, then by name.
func (s *Service) ListUsers(ctx context.Context, humansOnly bool) ([]store.UserData, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", storeErr(err))
	}
	if humansOnly {
		users = lo.Reject(users, func(u store.UserData, _ int) bool { return u.IsBot })
	}
	return users, nil
}

// ListBots returns every bot account.
func (s *Service) ListBots(ctx context.Context) ([]store.UserData, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", storeErr(err))
	}
	return lo.Filter(users, func(u store.UserData, _ int) bool { return u.IsBot }), nil
}

func (s *Service) requireUsers(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := s.users.GetUser(ctx, id); err != nil {
			return fmt.Errorf("member %s: %w", id, storeErr(err))
		}
	}
	return nil
}

// CreateGroup creates a named group containing the creator and memberIDs.
func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*store.ChannelData, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	others := lo.Uniq(lo.Reject(memberIDs, func(id uuid.UUID, _ int) bool {
		return id == creatorID || id == uuid.Nil
	}))
	if len(others) == 0 {
		return nil, fmt.Errorf("%w: a group needs at least one other member", ErrInvalidInput)
	}
	members := append([]uuid.UUID{creatorID}, others...)
	if err := s.requireUsers(ctx, members); err != nil {
		return nil, err
	}

	ch := &store.ChannelData{Name: &name, IsGroup: true, CreatedBy: creatorID}
	if err := s.channels.CreateChannel(ctx, ch, members); err != nil {
		return nil, fmt.Errorf("create channel: %w", storeErr(err))
	}
	s.publishChannel(ch, members)
	return ch, nil
}

// OpenDirect returns the direct channel between actorID and otherID,
// creating it when none exists. created reports which happened.
func (s *Service) OpenDirect(ctx context.Context, actorID, otherID uuid.UUID) (ch *store.ChannelData, created bool, err error) {
	if actorID == otherID {
		return nil, false, fmt.Errorf("%w: cannot open a direct channel with yourself", ErrInvalidInput)
	}
	if err := s.requireUsers(ctx, []uuid.UUID{actorID, otherID}); err != nil {
		return nil, false, err
	}

	existing, err := s.channels.FindDirectChannel(ctx, actorID, otherID)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, fmt.Errorf("find direct channel: %w", storeErr(err))
	}

	members := []uuid.UUID{actorID, otherID}
	ch = &store.ChannelData{IsGroup: false, CreatedBy: actorID}
	if err := s.channels.CreateChannel(ctx, ch, members); err != nil {
		return nil, false, fmt.Errorf("create channel: %w", storeErr(err))
	}
	s.publishChannel(ch, members)
	return ch, true, nil
}

func (s *Service) publishChannel(ch *store.ChannelData, members []uuid.UUID) {
	p := protocol.ChannelPayload{
		ID:        ch.ID.String(),
		IsGroup:   ch.IsGroup,
		CreatedBy: ch.CreatedBy.String(),
		MemberIDs: idStrings(members),
	}
	if ch.Name != nil {
		p.Name = *ch.Name
	}
	publish(s.events, protocol.EventChannelCreated, p)
}

func (s *Service) groupChannel(ctx context.Context, channelID uuid.UUID) error {
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", storeErr(err))
	}
	if !ch.IsGroup {
		return fmt.Errorf("%w: direct channel membership is fixed", ErrInvalidInput)
	}
	return nil
}

// AddMember adds userID to a group. Adding an existing member is a no-op.
func (s *Service) AddMember(ctx context.Context, actorID, channelID, userID uuid.UUID) error {
	if err := s.requireMember(ctx, channelID, actorID); err != nil {
		return err
	}
	if err := s.groupChannel(ctx, channelID); err != nil {
		return err
	}
	if err := s.requireUsers(ctx, []uuid.UUID{userID}); err != nil {
		return err
	}
	already, err := s.channels.IsMember(ctx, channelID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", storeErr(err))
	}
	if already {
		return nil
	}
	if err := s.channels.AddMember(ctx, channelID, userID); err != nil {
		return fmt.Errorf("add member: %w", storeErr(err))
	}
	publish(s.events, protocol.EventMemberAdded, protocol.MemberPayload{
		ChannelID: channelID.String(), UserID: userID.String(), ActorID: actorID.String(),
	})
	return nil
}

// RemoveMember removes userID from a group. Members cannot remove themselves.
func (s *Service) RemoveMember(ctx context.Context, actorID, channelID, userID uuid.UUID) error {
	if actorID == userID {
		return ErrSelfRemoval
	}
	if err := s.requireMember(ctx, channelID, actorID); err != nil {
		return err
	}
	if err := s.groupChannel(ctx, channelID); err != nil {
		return err
	}
	if err := s.channels.RemoveMember(ctx, channelID, userID); err != nil {
		return fmt.Errorf("remove member: %w", storeErr(err))
	}
	publish(s.events, protocol.EventMemberRemoved, protocol.MemberPayload{
		ChannelID: channelID.String(), UserID: userID.String(), ActorID: actorID.String(),
	})
	return nil
}

// ListChannels returns userID's channels, newest first.
func (s *Service) ListChannels(ctx context.Context, userID uuid.UUID) ([]store.ChannelData, error) {
	chs, err := s.channels.ListChannelsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", storeErr(err))
	}
	return chs, nil
}

// ListMembers returns a channel's members with user details.
func (s *Service) ListMembers(ctx context.Context, actorID, channelID uuid.UUID) ([]store.UserData, error) {
	if err := s.requireMember(ctx, channelID, actorID); err != nil {
		return nil, err
	}
	members, err := s.channels.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", storeErr(err))
	}
	return members, nil
}
