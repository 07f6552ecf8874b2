// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/guildgate/guildgate/internal/bus"
	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/logging"
	"github.com/guildgate/guildgate/internal/session"
	"github.com/guildgate/guildgate/pkg/errutil"
)

// unknownPlayerName substitutes for {player-name}/{display-name} when the
// player has no active session at hook time.
const unknownPlayerName = "[Unknown Player]"

// CommandDispatcher runs a console command on the game server. The
// implementation lives outside this module.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, command string) error
}

// NicknameSyncer pushes a linked member's identity into the nickname
// synchronization machinery. The background updater itself is an
// external collaborator.
type NicknameSyncer interface {
	Sync(ctx context.Context, playerID uuid.UUID, member *directory.Member)
}

// UnlinkNotifier is told when an active player's link was destroyed.
// Implemented by the admission gate.
type UnlinkNotifier interface {
	NoticeUnlinked(playerID uuid.UUID)
}

// HooksConfig wires the collaborators a hook pipeline needs. Nicknames
// and Logger are optional.
type HooksConfig struct {
	Config     *config.Config
	Directory  directory.Client
	Dispatcher CommandDispatcher
	Bus        *bus.Bus
	Sessions   *session.Registry
	Nicknames  NicknameSyncer
	Logger     *slog.Logger
}

// Hooks is the side-effect pipeline fired around link creation and
// destruction. Every side effect is best-effort and isolated: a failing
// step is logged and the rest still run, and nothing here can roll back
// the link or unlink that triggered it.
type Hooks struct {
	cfg        *config.Config
	dir        directory.Client
	dispatcher CommandDispatcher
	bus        *bus.Bus
	sessions   *session.Registry
	nicknames  NicknameSyncer
	logger     *slog.Logger

	notifierMu sync.RWMutex
	notifier   UnlinkNotifier
}

var _ Lifecycle = (*Hooks)(nil)

// NewHooks creates the hook pipeline.
func NewHooks(cfg HooksConfig) *Hooks {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		cfg:        cfg.Config,
		dir:        cfg.Directory,
		dispatcher: cfg.Dispatcher,
		bus:        cfg.Bus,
		sessions:   cfg.Sessions,
		nicknames:  cfg.Nicknames,
		logger:     logger,
	}
}

// SetUnlinkNotifier attaches the admission gate after construction; the
// gate depends on the link service, so it cannot exist yet when the
// hooks are built.
func (h *Hooks) SetUnlinkNotifier(n UnlinkNotifier) {
	h.notifierMu.Lock()
	h.notifier = n
	h.notifierMu.Unlock()
}

// AfterLink runs the post-link side effects: domain event, configured
// console commands, linked-role grant, nickname sync.
func (h *Hooks) AfterLink(ctx context.Context, playerID uuid.UUID, chatID string) {
	h.bus.Emit(bus.NewLinkedEvent(playerID, chatID))

	h.runCommands(ctx, h.cfg.Strings(config.KeyLinkCommands), playerID, chatID)

	member := h.grantLinkedRole(ctx, playerID, chatID)

	if h.cfg.Bool(config.KeyNicknameSync) && h.nicknames != nil {
		if member == nil {
			member = h.primaryMember(ctx, chatID)
		}
		if member != nil {
			h.nicknames.Sync(ctx, playerID, member)
		}
	}
}

// BeforeUnlink revokes the linked role while the mapping still resolves.
// Best-effort: failures are logged only.
func (h *Hooks) BeforeUnlink(ctx context.Context, playerID uuid.UUID, chatID string) {
	roleName := h.cfg.String(config.KeyLinkedRoleName)
	if roleName == "" {
		return
	}

	role, err := h.dir.RoleByName(ctx, roleName)
	if err != nil {
		h.logger.Debug("linked role not found for revocation",
			"role_name", roleName,
			logging.PlayerID(playerID),
		)
		return
	}
	if _, err := h.dir.Member(ctx, role.GuildID, chatID); err != nil {
		h.logger.Debug("member not found for linked role revocation",
			logging.ChatID(chatID),
			"guild_id", role.GuildID,
		)
		return
	}
	if err := h.dir.RevokeRole(ctx, role.GuildID, chatID, role.ID); err != nil {
		errutil.LogWarn(h.logger, "failed to revoke linked role", err)
	}
}

// AfterUnlink runs the post-unlink side effects: domain event, configured
// console commands, nickname clear, and disconnection of an active
// session via the unlink notifier.
func (h *Hooks) AfterUnlink(ctx context.Context, playerID uuid.UUID, chatID string) {
	h.bus.Emit(bus.NewUnlinkedEvent(playerID, chatID))

	h.runCommands(ctx, h.cfg.Strings(config.KeyUnlinkCommands), playerID, chatID)

	if member := h.primaryMember(ctx, chatID); member != nil {
		if member.BotCanInteract {
			if err := h.dir.SetNickname(ctx, member.GuildID, chatID, ""); err != nil {
				errutil.LogWarn(h.logger, "failed to clear synced nickname", err)
			}
		} else {
			h.logger.Debug("cannot clear nickname, service is lower in role hierarchy",
				logging.ChatID(chatID),
			)
		}
	}

	h.notifierMu.RLock()
	notifier := h.notifier
	h.notifierMu.RUnlock()
	if notifier != nil && h.sessions.Active(playerID) {
		notifier.NoticeUnlinked(playerID)
	}
}

// runCommands substitutes placeholders into each configured command and
// dispatches it. Commands that are blank after substitution are skipped.
func (h *Hooks) runCommands(ctx context.Context, commands []string, playerID uuid.UUID, chatID string) {
	if len(commands) == 0 || h.dispatcher == nil {
		return
	}

	replacer := h.placeholders(ctx, playerID, chatID)
	for _, command := range commands {
		command = replacer.Replace(command)
		if strings.TrimSpace(command) == "" {
			h.logger.Debug("command blank after substitution, skipping")
			continue
		}
		if err := h.dispatcher.Dispatch(ctx, command); err != nil {
			errutil.LogWarn(h.logger, "lifecycle command dispatch failed", err)
		}
	}
}

// placeholders resolves the substitution values for lifecycle commands.
// Unresolvable identities degrade to placeholders' documented fallbacks
// rather than failing the command run.
func (h *Hooks) placeholders(ctx context.Context, playerID uuid.UUID, chatID string) *strings.Replacer {
	playerName := unknownPlayerName
	displayName := unknownPlayerName
	if sess, ok := h.sessions.Lookup(playerID); ok {
		playerName = sess.Name
		displayName = sess.EffectiveName()
	}

	var externalName, externalDisplayName string
	if user, err := h.dir.User(ctx, chatID); err == nil {
		externalName = user.Name
		externalDisplayName = user.DisplayName
	}

	return strings.NewReplacer(
		"{player-name}", playerName,
		"{display-name}", displayName,
		"{session-id}", playerID.String(),
		"{external-id}", chatID,
		"{external-name}", externalName,
		"{external-display-name}", externalDisplayName,
	)
}

// grantLinkedRole grants the configured "linked" role, returning the
// resolved member for reuse by the nickname sync step.
func (h *Hooks) grantLinkedRole(ctx context.Context, playerID uuid.UUID, chatID string) *directory.Member {
	roleName := h.cfg.String(config.KeyLinkedRoleName)
	if roleName == "" {
		return nil
	}

	role, err := h.dir.RoleByName(ctx, roleName)
	if err != nil {
		h.logger.Debug("linked role not found",
			"role_name", roleName,
			logging.PlayerID(playerID),
		)
		return nil
	}
	member, err := h.dir.Member(ctx, role.GuildID, chatID)
	if err != nil {
		h.logger.Debug("member not found for linked role grant",
			logging.ChatID(chatID),
			"guild_id", role.GuildID,
		)
		return nil
	}
	if err := h.dir.GrantRole(ctx, role.GuildID, chatID, role.ID); err != nil {
		errutil.LogWarn(h.logger, "failed to grant linked role", err)
	}
	return member
}

// primaryMember resolves the chat identity's member in the primary guild,
// or nil if unresolvable.
func (h *Hooks) primaryMember(ctx context.Context, chatID string) *directory.Member {
	guild, err := h.dir.PrimaryGuild(ctx)
	if err != nil {
		return nil
	}
	member, err := h.dir.Member(ctx, guild.ID, chatID)
	if err != nil {
		return nil
	}
	return member
}
