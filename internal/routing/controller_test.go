package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

const (
	novaPersona = "You are Nova, a space expert."
	echoPersona = "You are Echo, a music nerd."
)

func TestRoute_MentionGoesOnlyToMentionedBot(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	echo := f.bot(t, "Echo", echoPersona)
	ch := f.group(t, ana, nova, echo)

	f.provider.EXPECT().Chat(gomock.Any(), replyFor(novaPersona)).Return(reply("Of course!"), nil).Times(1)

	out := f.controller.Route(context.Background(), f.send(t, ana, ch, "hey @Nova can you help?"))

	assert.Equal(t, PathMentions, out.Path)
	assert.Equal(t, []uuid.UUID{nova.ID}, out.Invoked)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, nova.ID, out.Replies[0].SenderID)
	assert.Empty(t, out.Failures)
	assert.Nil(t, out.Decision)
	assert.NotContains(t, out.Invoked, echo.ID)
	assert.Equal(t, 2, f.messageCount(t, ch))
}

func TestRoute_BanterWithoutMentionIsDeclined(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	ch := f.group(t, ana, nova)

	f.provider.EXPECT().Chat(gomock.Any(), classification()).
		Return(reply(`{"shouldRespond": false, "botName": null, "reasoning": "casual banter"}`), nil).Times(1)

	out := f.controller.Route(context.Background(), f.send(t, ana, ch, "lol nice"))

	assert.Equal(t, PathOrchestrator, out.Path)
	require.NotNil(t, out.Decision)
	assert.False(t, out.Decision.ShouldRespond)
	assert.Empty(t, out.Invoked)
	assert.Equal(t, 1, f.messageCount(t, ch))
}

func TestRoute_OrchestratorSelectsBot(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	echo := f.bot(t, "Echo", echoPersona)
	ch := f.group(t, ana, nova, echo)

	gomock.InOrder(
		f.provider.EXPECT().Chat(gomock.Any(), classification()).
			Return(reply("```json\n{\"shouldRespond\": true, \"botName\": \"Echo\", \"reasoning\": \"music question\"}\n```"), nil),
		f.provider.EXPECT().Chat(gomock.Any(), replyFor(echoPersona)).Return(reply("Bohemian Rhapsody."), nil),
	)

	out := f.controller.Route(context.Background(), f.send(t, ana, ch, "what's the best song ever?"))

	assert.Equal(t, PathOrchestrator, out.Path)
	require.NotNil(t, out.Decision)
	assert.Equal(t, echo.ID, out.Decision.BotID)
	assert.Equal(t, []uuid.UUID{echo.ID}, out.Invoked)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "Bohemian Rhapsody.", out.Replies[0].Content)
}

func TestRoute_ClassifierHistoryEndsWithMessage(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	ch := f.group(t, ana, f.human(t, "Ben"), nova)

	var prompt string
	f.provider.EXPECT().Chat(gomock.Any(), classification()).DoAndReturn(
		func(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
			prompt = req.Messages[0].Content
			return reply(`{"shouldRespond": false, "botName": null, "reasoning": "banter"}`), nil
		})

	f.send(t, ana, ch, "morning all")
	f.controller.Route(context.Background(), f.send(t, ana, ch, "coffee anyone?"))

	assert.Contains(t, prompt, "Recent conversation history:\nAna: morning all\nAna: coffee anyone?\n")
	assert.Contains(t, prompt, "Latest message:\nAna said: coffee anyone?")
}

func TestRoute_GroupWithoutBotsSkipsModel(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	ben := f.human(t, "Ben")
	ch := f.group(t, ana, ben)

	out := f.controller.Route(context.Background(), f.send(t, ana, ch, "anyone around?"))

	assert.Equal(t, PathOrchestrator, out.Path)
	require.NotNil(t, out.Decision)
	assert.Equal(t, NoBotsReasoning, out.Decision.Reasoning)
}

func TestRoute_DirectWithBotAlwaysReplies(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	dm, created, err := f.svc.OpenDirect(context.Background(), ana.ID, nova.ID)
	require.NoError(t, err)
	require.True(t, created)

	// Exactly one generation and no classification call.
	f.provider.EXPECT().Chat(gomock.Any(), replyFor(novaPersona)).Return(reply("hi!"), nil).Times(1)

	out := f.controller.Route(context.Background(), f.send(t, ana, dm.ID, "ok"))

	assert.Equal(t, PathDMBot, out.Path)
	assert.Equal(t, []uuid.UUID{nova.ID}, out.Invoked)
	assert.Nil(t, out.Decision)
	assert.Equal(t, 2, f.messageCount(t, dm.ID))
}

func TestRoute_DirectBetweenHumansDoesNothing(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	ben := f.human(t, "Ben")
	dm, _, err := f.svc.OpenDirect(context.Background(), ana.ID, ben.ID)
	require.NoError(t, err)

	out := f.controller.Route(context.Background(), f.send(t, ana, dm.ID, "@Nova are you there?"))

	assert.Equal(t, PathDMHuman, out.Path)
	assert.Empty(t, out.Invoked)
}

func TestRoute_BotMessagesAreNotRouted(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	echo := f.bot(t, "Echo", echoPersona)
	ch := f.group(t, ana, nova, echo)

	msg := f.send(t, nova, ch, "@Echo what do you think?")
	assert.Equal(t, PathSkipped, f.controller.Route(context.Background(), msg).Path)

	// A bot sender is detected from membership even if the flag is missing.
	msg.SenderIsBot = false
	assert.Equal(t, PathSkipped, f.controller.Route(context.Background(), msg).Path)
}

func TestRoute_OneFailureDoesNotBlockOthers(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{MaxParallelReplies: 2})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	echo := f.bot(t, "Echo", echoPersona)
	ch := f.group(t, ana, nova, echo)

	f.provider.EXPECT().Chat(gomock.Any(), replyFor(novaPersona)).Return(nil, &providers.HTTPError{Status: 500, Body: "boom"})
	f.provider.EXPECT().Chat(gomock.Any(), replyFor(echoPersona)).Return(reply("here!"), nil)

	out := f.controller.Route(context.Background(), f.send(t, ana, ch, "@Nova @Echo roll call"))

	assert.Equal(t, PathMentions, out.Path)
	assert.ElementsMatch(t, []uuid.UUID{nova.ID, echo.ID}, out.Invoked)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, echo.ID, out.Replies[0].SenderID)
	require.Contains(t, out.Failures, nova.ID)
	assert.True(t, errors.Is(out.Failures[nova.ID], ErrGenerationFailed))
	assert.Equal(t, 2, f.messageCount(t, ch))
}

func TestRoute_DuplicatePassIsNoop(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{DedupeTTL: time.Minute})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	ch := f.group(t, ana, nova)

	f.provider.EXPECT().Chat(gomock.Any(), replyFor(novaPersona)).Return(reply("once"), nil).Times(1)

	msg := f.send(t, ana, ch, "@Nova ping")
	first := f.controller.Route(context.Background(), msg)
	second := f.controller.Route(context.Background(), msg)

	assert.Equal(t, PathMentions, first.Path)
	assert.Equal(t, PathDuplicate, second.Path)
	assert.Equal(t, 2, f.messageCount(t, ch))
}

func TestRoute_WithoutDedupeEveryPassRuns(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	nova := f.bot(t, "Nova", novaPersona)
	ch := f.group(t, ana, nova)

	f.provider.EXPECT().Chat(gomock.Any(), replyFor(novaPersona)).Return(reply("again"), nil).Times(2)

	msg := f.send(t, ana, ch, "@Nova ping")
	f.controller.Route(context.Background(), msg)
	f.controller.Route(context.Background(), msg)

	assert.Equal(t, 3, f.messageCount(t, ch))
}

func TestRoute_PublishesDecision(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	ana := f.human(t, "Ana")
	ben := f.human(t, "Ben")
	dm, _, err := f.svc.OpenDirect(context.Background(), ana.ID, ben.ID)
	require.NoError(t, err)

	f.controller.Route(context.Background(), f.send(t, ana, dm.ID, "hello"))

	names := f.eventNames()
	require.NotEmpty(t, names)
	assert.Equal(t, protocol.EventRoutingDecision, names[len(names)-1])
}

func TestRoute_UnknownChannelIsSkipped(t *testing.T) {
	f := newChatFixture(t, ControllerConfig{})
	out := f.controller.Route(context.Background(), store.MessageData{ID: uuid.New(), ChannelID: uuid.New(), SenderID: uuid.New()})
	assert.Equal(t, PathSkipped, out.Path)
}
