// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package admission

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/internal/logging"
	"github.com/guildgate/guildgate/internal/observability"
	"github.com/guildgate/guildgate/internal/session"
	"github.com/guildgate/guildgate/pkg/errutil"
)

var tracer = otel.Tracer("guildgate/admission")

// lookupCaller tags the gate's bypass-cache reads for the link service's
// once-per-caller blocking diagnostic.
const lookupCaller = "admission-gate"

// Default delay between an unlink notice and the disconnect it causes,
// leaving the unlink transaction time to finish.
const defaultDisconnectDelay = 50 * time.Millisecond

// Fallback denial messages for templates the operator left unset.
const (
	defaultMsgStarting      = "The server is still starting, try again shortly."
	defaultMsgNotLinked     = "You must link your account to join. Message {bot} the code {code}. {invite}"
	defaultMsgNotInGuild    = "You must join our server to play. {invite}"
	defaultMsgRoleRequired  = "You must be a subscriber to join."
	defaultMsgRoleMisconfig = "Failed to check your account, contact an administrator."
	defaultMsgUnlinkedKick  = "Your account has been unlinked."
	defaultMsgCheckFailed   = "Failed to check your account, try again later."
)

// Decision is the outcome of one admission check. Reason is the
// player-facing denial text, already templated.
type Decision struct {
	Allow  bool
	Reason string
}

// GateConfig wires the gate's collaborators. Ready reports whether the
// service has finished starting; nil means always ready.
// DisconnectDelay of zero selects the default.
type GateConfig struct {
	Config          *config.Config
	Links           *linking.Service
	Sessions        *session.Registry
	Directory       directory.Client
	Logger          *slog.Logger
	Ready           func() bool
	DisconnectDelay time.Duration
}

// Gate decides whether a player may hold a session, based on the account
// link and the configured guild and role conditions. Every evaluation
// fails closed: an internal error or panic denies with a generic
// message, never allows.
type Gate struct {
	cfg      *config.Config
	links    *linking.Service
	sessions *session.Registry
	dir      directory.Client
	logger   *slog.Logger
	ready    func() bool
	delay    time.Duration
}

// NewGate creates the admission gate.
func NewGate(cfg GateConfig) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.DisconnectDelay
	if delay == 0 {
		delay = defaultDisconnectDelay
	}
	return &Gate{
		cfg:      cfg.Config,
		links:    cfg.Links,
		sessions: cfg.Sessions,
		dir:      cfg.Directory,
		logger:   logger,
		ready:    cfg.Ready,
		delay:    delay,
	}
}

// Register hooks the gate into the pipeline at the configured listener
// priority. Nothing is registered when require-link is disabled. An
// unknown priority name falls back to normal with a warning.
func (g *Gate) Register(pipeline *Pipeline) {
	if !g.cfg.Bool(config.KeyEnabled) {
		g.logger.Info("require-link disabled, admission gate not registered")
		return
	}

	priority := Normal
	if name := g.cfg.String(config.KeyListenerPriority); name != "" {
		parsed, err := ParsePriority(name)
		if err != nil {
			errutil.LogWarn(g.logger, "invalid listener priority, using normal", err)
		} else {
			priority = parsed
		}
	}

	pipeline.Register(priority, func(ctx context.Context, attempt *Attempt) {
		decision := g.Check(ctx, attempt.PlayerName, attempt.PlayerID)
		if !decision.Allow {
			attempt.Deny(decision.Reason)
		}
	})
	g.logger.Info("admission gate registered", "priority", priority.String())
}

// Check evaluates the admission conditions for one login attempt. Safe
// to call directly, independent of pipeline dispatch.
func (g *Gate) Check(ctx context.Context, playerName string, playerID uuid.UUID) (decision Decision) {
	ctx, span := tracer.Start(ctx, "admission.check",
		trace.WithAttributes(
			attribute.String("player.name", playerName),
			attribute.String("player.id", playerID.String()),
		),
	)
	reason := "allow"
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("admission check panicked",
				"player_name", playerName,
				logging.PlayerID(playerID),
				"panic", r,
			)
			decision = Decision{Reason: g.message(config.KeyMsgCheckFailed, defaultMsgCheckFailed)}
			reason = "check_failed"
		}
		outcome := "deny"
		if decision.Allow {
			outcome = "allow"
		}
		observability.RecordAdmissionDecision(outcome, reason)
		span.SetAttributes(
			attribute.Bool("admission.allow", decision.Allow),
			attribute.String("admission.reason", reason),
		)
		span.End()
	}()

	if g.bypassed(playerName) {
		reason = "bypass"
		return Decision{Allow: true}
	}

	if g.ready != nil && !g.ready() {
		reason = "starting"
		return Decision{Reason: g.message(config.KeyMsgStarting, defaultMsgStarting)}
	}

	chatID, err := g.links.ChatIDBypassCache(ctx, lookupCaller, playerID)
	if errors.Is(err, linking.ErrNotFound) {
		reason = "not_linked"
		return Decision{Reason: g.notLinkedMessage(ctx, playerID)}
	}
	if err != nil {
		errutil.LogError(g.logger, "link lookup failed during admission", err)
		reason = "check_failed"
		return Decision{Reason: g.message(config.KeyMsgCheckFailed, defaultMsgCheckFailed)}
	}

	if decision, denied := g.checkGuildPresence(ctx, chatID); denied {
		reason = "not_in_guild"
		return decision
	}

	if decision, deniedReason := g.checkSubscriberRoles(ctx, chatID); deniedReason != "" {
		reason = deniedReason
		return decision
	}

	return Decision{Allow: true}
}

// NoticeUnlinked disconnects the player's active session after a short
// delay, unless the policy is disabled or the player is bypassed.
// Invoked by the lifecycle hooks when a link is destroyed.
func (g *Gate) NoticeUnlinked(playerID uuid.UUID) {
	if !g.cfg.Bool(config.KeyEnabled) {
		return
	}
	sess, ok := g.sessions.Lookup(playerID)
	if !ok {
		return
	}
	if g.bypassed(sess.Name) {
		return
	}

	message := g.message(config.KeyMsgUnlinkedKick, defaultMsgUnlinkedKick)
	time.AfterFunc(g.delay, func() {
		if g.sessions.Disconnect(playerID, message) {
			g.logger.Info("disconnected unlinked player",
				"player_name", sess.Name,
				logging.PlayerID(playerID),
			)
		}
	})
}

// bypassed reports whether the player name is on the bypass list.
// Matching is exact and case-sensitive.
func (g *Gate) bypassed(playerName string) bool {
	for _, name := range g.cfg.Strings(config.KeyBypassNames) {
		if name == playerName {
			return true
		}
	}
	return false
}

// notLinkedMessage issues a fresh pairing code, invalidating any prior
// one, and templates the not-linked denial.
func (g *Gate) notLinkedMessage(ctx context.Context, playerID uuid.UUID) string {
	code := g.links.IssueCode(playerID)

	botName := ""
	if self, err := g.dir.Identity(ctx); err == nil {
		botName = self.EffectiveName()
	}

	return strings.NewReplacer(
		"{bot}", botName,
		"{code}", code,
		"{invite}", g.cfg.String(config.KeyInviteLink),
	).Replace(g.message(config.KeyMsgNotLinked, defaultMsgNotLinked))
}

// checkGuildPresence evaluates the must-be-in-guild condition. A bare
// true requires presence in the primary guild; an unresolvable primary
// guild denies, since presence cannot be confirmed. A guild list
// requires presence in every resolvable listed guild; unresolvable
// listed IDs are logged and skipped.
func (g *Gate) checkGuildPresence(ctx context.Context, chatID string) (Decision, bool) {
	required, guildIDs := g.cfg.GuildRequirement()
	if !required {
		return Decision{}, false
	}

	denial := strings.NewReplacer(
		"{invite}", g.cfg.String(config.KeyInviteLink),
	).Replace(g.message(config.KeyMsgNotInGuild, defaultMsgNotInGuild))

	if len(guildIDs) == 0 {
		guild, err := g.dir.PrimaryGuild(ctx)
		if err != nil {
			errutil.LogWarn(g.logger, "primary guild unresolvable, denying presence check", err)
			return Decision{Reason: denial}, true
		}
		if !g.memberOf(ctx, guild.ID, chatID) {
			return Decision{Reason: denial}, true
		}
		return Decision{}, false
	}

	for _, guildID := range guildIDs {
		guild, err := g.dir.Guild(ctx, guildID)
		if err != nil {
			g.logger.Warn("configured guild unresolvable, skipping",
				"guild_id", guildID,
			)
			continue
		}
		if !g.memberOf(ctx, guild.ID, chatID) {
			return Decision{Reason: denial}, true
		}
	}
	return Decision{}, false
}

// checkSubscriberRoles evaluates the subscriber-role condition. Returns
// a non-empty reason tag on denial. Every configured role failing to
// resolve is a misconfiguration and denies loudly.
func (g *Gate) checkSubscriberRoles(ctx context.Context, chatID string) (Decision, string) {
	if !g.cfg.Bool(config.KeySubRoleRequired) {
		return Decision{}, ""
	}
	roleIDs := g.cfg.Strings(config.KeySubRoles)
	if len(roleIDs) == 0 {
		return Decision{}, ""
	}

	members := make(map[string]*directory.Member)
	resolvable := 0
	held := 0
	for _, roleID := range roleIDs {
		role, err := g.dir.Role(ctx, roleID)
		if err != nil {
			g.logger.Warn("configured subscriber role unresolvable",
				"role_id", roleID,
			)
			continue
		}
		resolvable++

		member, ok := members[role.GuildID]
		if !ok {
			member, err = g.dir.Member(ctx, role.GuildID, chatID)
			if err != nil {
				member = nil
			}
			members[role.GuildID] = member
		}
		if member != nil && member.HasRole(role.ID) {
			held++
		}
	}

	if resolvable == 0 {
		g.logger.Error("no configured subscriber role resolved, denying",
			"role_ids", roleIDs,
		)
		return Decision{Reason: g.message(config.KeyMsgRoleMisconfig, defaultMsgRoleMisconfig)}, "role_misconfigured"
	}

	if g.cfg.Bool(config.KeySubRolesAll) {
		if held < resolvable {
			return Decision{Reason: g.message(config.KeyMsgRoleRequired, defaultMsgRoleRequired)}, "role_required"
		}
	} else if held == 0 {
		return Decision{Reason: g.message(config.KeyMsgRoleRequired, defaultMsgRoleRequired)}, "role_required"
	}
	return Decision{}, ""
}

func (g *Gate) memberOf(ctx context.Context, guildID, chatID string) bool {
	_, err := g.dir.Member(ctx, guildID, chatID)
	return err == nil
}

// message returns the configured template, or fallback when unset.
func (g *Gate) message(key, fallback string) string {
	if msg := g.cfg.String(key); msg != "" {
		return msg
	}
	return fallback
}
