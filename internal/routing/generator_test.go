package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/mocks"
	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

type staticResolver struct {
	provider providers.Provider
}

func (r staticResolver) Resolve(kind providers.ModelKind) (providers.Provider, string, error) {
	if !kind.Valid() {
		return nil, "", errors.New("unknown kind")
	}
	return r.provider, kind.GatewayModel(), nil
}

type generatorFixture struct {
	users    *mocks.MockUserStore
	channels *mocks.MockChannelStore
	messages *mocks.MockMessageStore
	member   bool
	provider *mocks.MockProvider
	events   []bus.Event
	gen      *Generator
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	ctrl := gomock.NewController(t)
	f := &generatorFixture{
		users:    mocks.NewMockUserStore(ctrl),
		channels: mocks.NewMockChannelStore(ctrl),
		messages: mocks.NewMockMessageStore(ctrl),
		provider: mocks.NewMockProvider(ctrl),
		member:   true,
	}
	f.channels.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return f.member, nil }).AnyTimes()
	b := bus.New()
	b.Subscribe("test", func(e bus.Event) { f.events = append(f.events, e) })
	f.gen = NewGenerator(f.users, f.channels, f.messages, staticResolver{f.provider}, b, DefaultGeneratorConfig(), nil)
	return f
}

func novaUser() *store.UserData {
	return &store.UserData{
		ID:           uuid.New(),
		Name:         "Nova",
		IsBot:        true,
		SystemPrompt: "You are Nova.",
		Model:        providers.ModelGPT,
	}
}

var sampleWindow = []ContextEntry{
	{SenderName: "Ben", Content: "morning"},
	{SenderName: "Ana", Content: "hey @Nova can you help?"},
}

func TestGenerator_ResolveErrors(t *testing.T) {
	tests := []struct {
		name  string
		user  *store.UserData
		err   error
		wantE error
	}{
		{"not found", nil, store.ErrNotFound, ErrBotNotFound},
		{"store down", nil, errors.New("db closed"), ErrStoreUnavailable},
		{"human", &store.UserData{ID: uuid.New(), Name: "Ana"}, nil, ErrBotNotFound},
		{"no prompt", &store.UserData{ID: uuid.New(), IsBot: true, Model: providers.ModelGPT}, nil, ErrBotNotConfigured},
		{"no model", &store.UserData{ID: uuid.New(), IsBot: true, SystemPrompt: "p"}, nil, ErrBotNotConfigured},
		{"unknown model", &store.UserData{ID: uuid.New(), IsBot: true, SystemPrompt: "p", Model: "llama"}, nil, ErrInvalidModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGeneratorFixture(t)
			f.users.EXPECT().GetUser(gomock.Any(), gomock.Any()).Return(tt.user, tt.err)

			msg, err := f.gen.GenerateReply(context.Background(), uuid.New(), uuid.New(), sampleWindow)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.wantE)
			assert.Empty(t, f.events)
		})
	}
}

func TestGenerator_Success(t *testing.T) {
	f := newGeneratorFixture(t)
	bot := novaUser()
	channelID := uuid.New()

	f.users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil)
	f.provider.EXPECT().Chat(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
			assert.Equal(t, "openai/gpt-4-turbo", req.Model)
			assert.Equal(t, "You are Nova.", req.System)
			assert.Equal(t, 0.7, req.Options[providers.OptTemperature])
			assert.Equal(t, 500, req.Options[providers.OptMaxTokens])
			require.Len(t, req.Messages, 1)
			assert.Equal(t,
				"Recent conversation:\nBen: morning\nAna: hey @Nova can you help?\n\nUser message: hey @Nova can you help?\n\nRespond naturally as part of this conversation.",
				req.Messages[0].Content)
			return reply("  Happy to help!  "), nil
		})
	f.messages.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m *store.MessageData) error {
			m.ID = uuid.New()
			return nil
		})

	msg, err := f.gen.GenerateReply(context.Background(), bot.ID, channelID, sampleWindow)
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", msg.Content)
	assert.Equal(t, bot.ID, msg.SenderID)
	assert.Equal(t, channelID, msg.ChannelID)
	assert.True(t, msg.SenderIsBot)

	require.Len(t, f.events, 1)
	assert.Equal(t, protocol.EventMessageCreated, f.events[0].Name)
	payload := f.events[0].Payload.(protocol.MessagePayload)
	assert.Equal(t, msg.ID.String(), payload.ID)
	assert.Equal(t, "Nova", payload.SenderName)
}

func TestGenerator_EmptyCompletionFallback(t *testing.T) {
	f := newGeneratorFixture(t)
	bot := novaUser()
	f.users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil)
	f.provider.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply(" \n"), nil)

	var stored string
	f.messages.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m *store.MessageData) error {
			stored = m.Content
			return nil
		})

	_, err := f.gen.GenerateReply(context.Background(), bot.ID, uuid.New(), sampleWindow)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I could not generate a response.", stored)
}

// TestGenerator_ModelFailureInsertsNothing relies on the message store mock
// having no InsertMessage expectation.
func TestGenerator_ModelFailureInsertsNothing(t *testing.T) {
	f := newGeneratorFixture(t)
	bot := novaUser()
	f.users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil)
	f.provider.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(nil, &providers.HTTPError{Status: 503, Body: "overloaded"})

	msg, err := f.gen.GenerateReply(context.Background(), bot.ID, uuid.New(), sampleWindow)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Empty(t, f.events)
}

func TestGenerator_TwoCallsTwoMessages(t *testing.T) {
	f := newGeneratorFixture(t)
	bot := novaUser()
	channelID := uuid.New()

	f.users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil).Times(2)
	f.provider.EXPECT().Chat(gomock.Any(), gomock.Any()).Return(reply("same answer"), nil).Times(2)
	f.messages.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, m *store.MessageData) error {
			m.ID = uuid.New()
			return nil
		})

	first, err := f.gen.GenerateReply(context.Background(), bot.ID, channelID, sampleWindow)
	require.NoError(t, err)
	second, err := f.gen.GenerateReply(context.Background(), bot.ID, channelID, sampleWindow)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.events, 2)
}

func TestGenerator_EmptyWindow(t *testing.T) {
	f := newGeneratorFixture(t)
	_, err := f.gen.GenerateReply(context.Background(), uuid.New(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// TestGenerator_NonMemberRefused relies on the provider and message store
// mocks having no expectations.
func TestGenerator_NonMemberRefused(t *testing.T) {
	f := newGeneratorFixture(t)
	f.member = false
	bot := novaUser()
	f.users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil)

	msg, err := f.gen.GenerateReply(context.Background(), bot.ID, uuid.New(), sampleWindow)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.events)
}

func TestGenerator_MembershipStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	channels := mocks.NewMockChannelStore(ctrl)
	bot := novaUser()
	users.EXPECT().GetUser(gomock.Any(), bot.ID).Return(bot, nil)
	channels.EXPECT().IsMember(gomock.Any(), gomock.Any(), bot.ID).Return(false, errors.New("db closed"))

	gen := NewGenerator(users, channels, mocks.NewMockMessageStore(ctrl), staticResolver{mocks.NewMockProvider(ctrl)}, nil, DefaultGeneratorConfig(), nil)
	_, err := gen.GenerateReply(context.Background(), bot.ID, uuid.New(), sampleWindow)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGenerator_OutsiderBotCannotPost(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana, ben := f.human(t, "Ana"), f.human(t, "Ben")
	outsider := f.bot(t, "Outsider", "You are Outsider.")
	ch := f.group(t, ana, ben)
	f.send(t, ana, ch, "hi Ben")

	_, err := f.gen.GenerateReply(context.Background(), outsider.ID, ch, []ContextEntry{{SenderName: "Ana", Content: "hi Ben"}})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, f.messageCount(t, ch))
}

func TestBuildReplyPrompt_PlainBotLines(t *testing.T) {
	prompt := BuildReplyPrompt([]ContextEntry{
		{SenderName: "Nova", Content: "ready", IsBot: true},
		{SenderName: "Ana", Content: "go on"},
	})
	assert.Equal(t,
		"Recent conversation:\nNova: ready\nAna: go on\n\nUser message: go on\n\nRespond naturally as part of this conversation.",
		prompt)
}
