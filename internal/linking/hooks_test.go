// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildgate/guildgate/internal/bus"
	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/directory/directorytest"
	"github.com/guildgate/guildgate/internal/session"
)

// recordingDispatcher captures dispatched console commands.
type recordingDispatcher struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, command)
	return d.err
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// recordingSyncer captures nickname sync requests.
type recordingSyncer struct {
	mu      sync.Mutex
	players []uuid.UUID
}

func (s *recordingSyncer) Sync(_ context.Context, playerID uuid.UUID, _ *directory.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = append(s.players, playerID)
}

func (s *recordingSyncer) synced() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.players...)
}

// recordingNotifier captures unlink notices.
type recordingNotifier struct {
	mu      sync.Mutex
	noticed []uuid.UUID
}

func (n *recordingNotifier) NoticeUnlinked(playerID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.noticed = append(n.noticed, playerID)
}

func (n *recordingNotifier) notices() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.noticed...)
}

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guildgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	return cfg
}

func TestHooks_AfterLink_CommandPlaceholders(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-commands:
    - "broadcast {player-name}/{display-name} linked {session-id} to {external-id} ({external-name}, {external-display-name})"
`)
	dir := directorytest.New("guild-1")
	dir.AddMember("guild-1", &directory.Member{
		User: directory.User{ID: "chat-1", Name: "chatuser", DisplayName: "Chat User"},
	})
	dispatcher := &recordingDispatcher{}
	sessions := session.NewRegistry()
	playerID := uuid.New()
	require.NoError(t, sessions.Register(session.Session{
		PlayerID:    playerID,
		Name:        "Hero",
		DisplayName: "The Hero",
		ConnectedAt: time.Now(),
	}, nil))

	hooks := NewHooks(HooksConfig{
		Config:     cfg,
		Directory:  dir,
		Dispatcher: dispatcher,
		Bus:        bus.New(),
		Sessions:   sessions,
	})
	hooks.AfterLink(context.Background(), playerID, "chat-1")

	got := dispatcher.dispatched()
	require.Len(t, got, 1)
	assert.Equal(t,
		"broadcast Hero/The Hero linked "+playerID.String()+" to chat-1 (chatuser, Chat User)",
		got[0])
}

func TestHooks_AfterLink_OfflinePlayerFallbacks(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-commands:
    - "note {player-name} {external-name}"
`)
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(HooksConfig{
		Config:     cfg,
		Directory:  directorytest.New("guild-1"),
		Dispatcher: dispatcher,
		Bus:        bus.New(),
		Sessions:   session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), uuid.New(), "unknown-chat")

	got := dispatcher.dispatched()
	require.Len(t, got, 1)
	assert.Equal(t, "note [Unknown Player] ", got[0])
}

func TestHooks_AfterLink_BlankCommandSkipped(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-commands:
    - "{external-name}"
    - "still runs"
`)
	dispatcher := &recordingDispatcher{}
	hooks := NewHooks(HooksConfig{
		Config:     cfg,
		Directory:  directorytest.New("guild-1"),
		Dispatcher: dispatcher,
		Bus:        bus.New(),
		Sessions:   session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), uuid.New(), "unknown-chat")

	assert.Equal(t, []string{"still runs"}, dispatcher.dispatched())
}

func TestHooks_AfterLink_DispatchFailureIsolated(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-commands:
    - "first"
    - "second"
`)
	dispatcher := &recordingDispatcher{err: assert.AnError}
	hooks := NewHooks(HooksConfig{
		Config:     cfg,
		Directory:  directorytest.New("guild-1"),
		Dispatcher: dispatcher,
		Bus:        bus.New(),
		Sessions:   session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), uuid.New(), "chat-1")

	assert.Equal(t, []string{"first", "second"}, dispatcher.dispatched(),
		"a failed dispatch must not stop later commands")
}

func TestHooks_AfterLink_GrantsLinkedRole(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-role-name: Linked
`)
	dir := directorytest.New("guild-1")
	dir.AddRole(&directory.Role{ID: "role-1", GuildID: "guild-1", Name: "Linked"})
	dir.AddMember("guild-1", &directory.Member{
		User: directory.User{ID: "chat-1", Name: "chatuser"},
	})

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), uuid.New(), "chat-1")

	require.Len(t, dir.Granted, 1)
	assert.Equal(t, directorytest.RoleChange{
		GuildID: "guild-1", UserID: "chat-1", RoleID: "role-1",
	}, dir.Granted[0])
}

func TestHooks_AfterLink_MissingRoleIsQuiet(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-role-name: Linked
`)
	dir := directorytest.New("guild-1")

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), uuid.New(), "chat-1")

	assert.Empty(t, dir.Granted)
}

func TestHooks_AfterLink_NicknameSync(t *testing.T) {
	cfg := testConfig(t, `
linking:
  nickname-sync: true
`)
	dir := directorytest.New("guild-1")
	dir.AddMember("guild-1", &directory.Member{
		User: directory.User{ID: "chat-1", Name: "chatuser"},
	})
	syncer := &recordingSyncer{}
	playerID := uuid.New()

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
		Nicknames: syncer,
	})
	hooks.AfterLink(context.Background(), playerID, "chat-1")

	assert.Equal(t, []uuid.UUID{playerID}, syncer.synced())
}

func TestHooks_AfterLink_NicknameSyncDisabled(t *testing.T) {
	cfg := testConfig(t, `
linking:
  nickname-sync: false
`)
	dir := directorytest.New("guild-1")
	dir.AddMember("guild-1", &directory.Member{
		User: directory.User{ID: "chat-1", Name: "chatuser"},
	})
	syncer := &recordingSyncer{}

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
		Nicknames: syncer,
	})
	hooks.AfterLink(context.Background(), uuid.New(), "chat-1")

	assert.Empty(t, syncer.synced())
}

func TestHooks_BeforeUnlink_RevokesLinkedRole(t *testing.T) {
	cfg := testConfig(t, `
linking:
  linked-role-name: Linked
`)
	dir := directorytest.New("guild-1")
	dir.AddRole(&directory.Role{ID: "role-1", GuildID: "guild-1", Name: "Linked"})
	dir.AddMember("guild-1", &directory.Member{
		User:    directory.User{ID: "chat-1", Name: "chatuser"},
		RoleIDs: []string{"role-1"},
	})

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.BeforeUnlink(context.Background(), uuid.New(), "chat-1")

	require.Len(t, dir.Revoked, 1)
	assert.Equal(t, "role-1", dir.Revoked[0].RoleID)
}

func TestHooks_AfterUnlink_ClearsNickname(t *testing.T) {
	cfg := testConfig(t, "linking: {}\n")
	dir := directorytest.New("guild-1")
	dir.AddMember("guild-1", &directory.Member{
		User:           directory.User{ID: "chat-1", Name: "chatuser"},
		Nickname:       "Hero",
		BotCanInteract: true,
	})

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.AfterUnlink(context.Background(), uuid.New(), "chat-1")

	require.Len(t, dir.Nicknames, 1)
	assert.Equal(t, directorytest.NicknameChange{
		GuildID: "guild-1", UserID: "chat-1", Nickname: "",
	}, dir.Nicknames[0])
}

func TestHooks_AfterUnlink_NicknameSkippedWhenOutranked(t *testing.T) {
	cfg := testConfig(t, "linking: {}\n")
	dir := directorytest.New("guild-1")
	dir.AddMember("guild-1", &directory.Member{
		User:           directory.User{ID: "chat-1", Name: "chatuser"},
		Nickname:       "Hero",
		BotCanInteract: false,
	})

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.AfterUnlink(context.Background(), uuid.New(), "chat-1")

	assert.Empty(t, dir.Nicknames)
}

func TestHooks_AfterUnlink_NotifiesActiveSession(t *testing.T) {
	cfg := testConfig(t, "linking: {}\n")
	sessions := session.NewRegistry()
	notifier := &recordingNotifier{}
	playerID := uuid.New()
	require.NoError(t, sessions.Register(session.Session{
		PlayerID: playerID,
		Name:     "Hero",
	}, nil))

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: directorytest.New("guild-1"),
		Bus:       bus.New(),
		Sessions:  sessions,
	})
	hooks.SetUnlinkNotifier(notifier)
	hooks.AfterUnlink(context.Background(), playerID, "chat-1")

	assert.Equal(t, []uuid.UUID{playerID}, notifier.notices())
}

func TestHooks_AfterUnlink_NoNoticeWithoutSession(t *testing.T) {
	cfg := testConfig(t, "linking: {}\n")
	notifier := &recordingNotifier{}

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: directorytest.New("guild-1"),
		Bus:       bus.New(),
		Sessions:  session.NewRegistry(),
	})
	hooks.SetUnlinkNotifier(notifier)
	hooks.AfterUnlink(context.Background(), uuid.New(), "chat-1")

	assert.Empty(t, notifier.notices())
}

func TestHooks_EmitsBusEvents(t *testing.T) {
	cfg := testConfig(t, "linking: {}\n")
	b := bus.New()
	linked := b.Subscribe(bus.EventTypeLinked)
	unlinked := b.Subscribe(bus.EventTypeUnlinked)
	playerID := uuid.New()

	hooks := NewHooks(HooksConfig{
		Config:    cfg,
		Directory: directorytest.New("guild-1"),
		Bus:       b,
		Sessions:  session.NewRegistry(),
	})
	hooks.AfterLink(context.Background(), playerID, "chat-1")
	hooks.AfterUnlink(context.Background(), playerID, "chat-1")

	select {
	case event := <-linked:
		assert.Equal(t, playerID, event.PlayerID)
		assert.Equal(t, "chat-1", event.ChatID)
	default:
		t.Fatal("no linked event emitted")
	}
	select {
	case event := <-unlinked:
		assert.Equal(t, playerID, event.PlayerID)
	default:
		t.Fatal("no unlinked event emitted")
	}
}
