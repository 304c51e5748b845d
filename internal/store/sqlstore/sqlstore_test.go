package sqlstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/internal/store/sqlite"
)

func newStores(t *testing.T) *store.Stores {
	t.Helper()
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func mustUser(t *testing.T, s *store.Stores, name string, bot bool) *store.UserData {
	t.Helper()
	u := &store.UserData{Name: name, Email: name + "@example.com", IsBot: bot}
	if bot {
		u.SystemPrompt = "You are " + name
		u.Model = providers.ModelClaude
	}
	require.NoError(t, s.Users.CreateUser(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }

func TestUsers_CreateGetList(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	nova := mustUser(t, s, "Nova", true)
	bob := mustUser(t, s, "bob", false)
	alice := mustUser(t, s, "alice", false)

	got, err := s.Users.GetUser(ctx, nova.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBot)
	assert.Equal(t, "You are Nova", got.SystemPrompt)
	assert.Equal(t, providers.ModelClaude, got.Model)
	assert.True(t, got.Configured())

	_, err = s.Users.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	users, err := s.Users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	// humans first, then by name
	assert.Equal(t, []uuid.UUID{alice.ID, bob.ID, nova.ID}, []uuid.UUID{users[0].ID, users[1].ID, users[2].ID})
}

func TestUsers_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	id := uuid.New()
	require.NoError(t, s.Users.UpsertUser(ctx, &store.UserData{ID: id, Name: "old", Email: "a@example.com"}))
	require.NoError(t, s.Users.UpsertUser(ctx, &store.UserData{ID: id, Name: "new", Email: "b@example.com", ProfilePicture: strPtr("http://pic")}))

	got, err := s.Users.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, "b@example.com", got.Email)
	require.NotNil(t, got.ProfilePicture)
	assert.Equal(t, "http://pic", *got.ProfilePicture)
	assert.False(t, got.IsBot)
}

func TestChannels_MembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	u := mustUser(t, s, "u", false)
	v := mustUser(t, s, "v", false)
	nova := mustUser(t, s, "Nova", true)

	ch := &store.ChannelData{Name: strPtr("general"), IsGroup: true, CreatedBy: u.ID}
	require.NoError(t, s.Channels.CreateChannel(ctx, ch, []uuid.UUID{u.ID, nova.ID, u.ID}))

	members, err := s.Channels.ListMembers(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, members, 2, "duplicate member ids collapse")
	assert.Equal(t, u.ID, members[0].ID)
	assert.Equal(t, nova.ID, members[1].ID)

	ok, err := s.Channels.IsMember(ctx, ch.ID, v.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Channels.AddMember(ctx, ch.ID, v.ID))
	require.NoError(t, s.Channels.AddMember(ctx, ch.ID, v.ID), "re-adding is a no-op")
	ok, err = s.Channels.IsMember(ctx, ch.ID, v.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Channels.RemoveMember(ctx, ch.ID, v.ID))
	err = s.Channels.RemoveMember(ctx, ch.ID, v.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	got, err := s.Channels.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "general", *got.Name)
	assert.True(t, got.IsGroup)

	_, err = s.Channels.GetChannel(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChannels_FindDirectAndList(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	u := mustUser(t, s, "u", false)
	b := mustUser(t, s, "Echo", true)
	w := mustUser(t, s, "w", false)

	group := &store.ChannelData{Name: strPtr("team"), IsGroup: true, CreatedBy: u.ID}
	require.NoError(t, s.Channels.CreateChannel(ctx, group, []uuid.UUID{u.ID, b.ID}))

	_, err := s.Channels.FindDirectChannel(ctx, u.ID, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "group channels are not DMs")

	dm := &store.ChannelData{IsGroup: false, CreatedBy: u.ID}
	require.NoError(t, s.Channels.CreateChannel(ctx, dm, []uuid.UUID{u.ID, b.ID}))

	found, err := s.Channels.FindDirectChannel(ctx, b.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, dm.ID, found.ID)
	assert.Nil(t, found.Name)

	_, err = s.Channels.FindDirectChannel(ctx, u.ID, w.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.Channels.ListChannelsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dm.ID, list[0].ID, "newest first")
	assert.Equal(t, "Echo", list[0].OtherUserName)
	assert.Equal(t, group.ID, list[1].ID)
	assert.Empty(t, list[1].OtherUserName)

	list, err = s.Channels.ListChannelsForUser(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMessages_RecentWindow(t *testing.T) {
	ctx := context.Background()
	s := newStores(t)

	u := mustUser(t, s, "u", false)
	nova := mustUser(t, s, "Nova", true)
	ch := &store.ChannelData{Name: strPtr("g"), IsGroup: true, CreatedBy: u.ID}
	require.NoError(t, s.Channels.CreateChannel(ctx, ch, []uuid.UUID{u.ID, nova.ID}))

	var ids []uuid.UUID
	for i, content := range []string{"one", "two", "three", "four", "five"} {
		sender := u.ID
		if i == 2 {
			sender = nova.ID
		}
		m := &store.MessageData{ChannelID: ch.ID, SenderID: sender, Content: content}
		require.NoError(t, s.Messages.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	all, err := s.Messages.ListRecentMessages(ctx, ch.ID, uuid.Nil, 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"three", "four", "five"}, []string{all[0].Content, all[1].Content, all[2].Content})
	assert.True(t, all[0].SenderIsBot)
	assert.Equal(t, "Nova", all[0].SenderName)

	before, err := s.Messages.ListRecentMessages(ctx, ch.ID, ids[4], 10)
	require.NoError(t, err)
	require.Len(t, before, 4, "pivot message is excluded")
	assert.Equal(t, "one", before[0].Content)
	assert.Equal(t, "four", before[3].Content)

	none, err := s.Messages.ListRecentMessages(ctx, ch.ID, ids[0], 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.Messages.ListRecentMessages(ctx, ch.ID, uuid.New(), 10)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Messages.GetMessage(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)
	assert.Equal(t, u.ID, got.SenderID)
}
