package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/mocks"
	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/internal/store/sqlite"
)

// chatFixture wires the real routing stack over SQLite with a mocked model backend.
type chatFixture struct {
	stores     *store.Stores
	provider   *mocks.MockProvider
	bus        *bus.MessageBus
	svc        *Service
	gen        *Generator
	controller *Controller

	mu     sync.Mutex
	events []bus.Event
}

func newChatFixture(t *testing.T, cfg ControllerConfig) *chatFixture {
	t.Helper()
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	ctrl := gomock.NewController(t)
	p := mocks.NewMockProvider(ctrl)
	p.EXPECT().Name().Return("openrouter").AnyTimes()

	reg := providers.NewRegistry()
	reg.Register(p)
	router := providers.NewModelRouter(reg, "openrouter")

	f := &chatFixture{stores: stores, provider: p, bus: bus.New()}
	f.bus.Subscribe("test", func(e bus.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})

	gen := NewGenerator(stores.Users, stores.Channels, stores.Messages, router, f.bus, DefaultGeneratorConfig(), nil)
	orch := NewOrchestrator(p, DefaultOrchestratorConfig(), nil)
	f.gen = gen
	f.svc = NewService(stores, f.bus)
	f.controller = NewController(NewMembership(stores.Channels), NewBuilder(stores.Messages, 10), orch, gen, f.bus, cfg, nil)
	return f
}

func (f *chatFixture) human(t *testing.T, name string) *store.UserData {
	t.Helper()
	u, err := f.svc.UpsertUser(context.Background(), uuid.New(), strings.ToLower(name)+"@example.com", name, nil)
	require.NoError(t, err)
	return u
}

func (f *chatFixture) bot(t *testing.T, name, persona string) *store.UserData {
	t.Helper()
	b, err := f.svc.CreateBot(context.Background(), CreateBotParams{Name: name, Persona: persona, Model: "claude"})
	require.NoError(t, err)
	return b
}

func (f *chatFixture) group(t *testing.T, creator *store.UserData, members ...*store.UserData) uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	ch, err := f.svc.CreateGroup(context.Background(), creator.ID, "general", ids)
	require.NoError(t, err)
	return ch.ID
}

func (f *chatFixture) send(t *testing.T, sender *store.UserData, channelID uuid.UUID, text string) store.MessageData {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), sender.ID, channelID, text)
	require.NoError(t, err)
	return *msg
}

func (f *chatFixture) messageCount(t *testing.T, channelID uuid.UUID) int {
	t.Helper()
	msgs, err := f.stores.Messages.ListRecentMessages(context.Background(), channelID, uuid.Nil, 100)
	require.NoError(t, err)
	return len(msgs)
}

func (f *chatFixture) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.events))
	for _, e := range f.events {
		names = append(names, e.Name)
	}
	return names
}

// requestMatcher matches ChatRequests on model and system prompt prefix.
type requestMatcher struct {
	model        string
	systemPrefix string
}

func (m requestMatcher) Matches(x any) bool {
	req, ok := x.(providers.ChatRequest)
	if !ok {
		return false
	}
	if m.model != "" && req.Model != m.model {
		return false
	}
	return strings.HasPrefix(req.System, m.systemPrefix)
}

func (m requestMatcher) String() string {
	return fmt.Sprintf("chat request model=%q system prefix=%q", m.model, m.systemPrefix)
}

// replyFor matches a generation call for the bot whose persona starts with persona.
func replyFor(persona string) gomock.Matcher {
	return requestMatcher{model: providers.ModelClaude.GatewayModel(), systemPrefix: persona}
}

// classification matches an orchestrator call.
func classification() gomock.Matcher {
	return requestMatcher{model: DefaultOrchestratorConfig().Model, systemPrefix: classifierSystemPrompt}
}
