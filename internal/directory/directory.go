// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package directory defines the boundary to the remote chat-platform
// directory: guild, member, and role lookups plus the role and nickname
// mutations the link lifecycle needs. The real network client lives
// outside this module; everything here is specified at the interface.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a guild, member, user, or role does not
// exist or is not visible to the service.
var ErrNotFound = errors.New("not found")

// Guild is a chat-platform server the service is a member of.
type Guild struct {
	ID   string
	Name string
}

// User is a chat-platform account.
type User struct {
	ID          string
	Name        string
	DisplayName string
}

// Member is a user's membership in a particular guild.
type Member struct {
	User     User
	GuildID  string
	Nickname string
	RoleIDs  []string

	// BotCanInteract reports whether the service's own member outranks
	// this member in the guild's role hierarchy. Nickname mutation is
	// only possible when true.
	BotCanInteract bool
}

// EffectiveName returns the guild nickname, falling back to the user's
// display name and then account name.
func (m *Member) EffectiveName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	if m.User.DisplayName != "" {
		return m.User.DisplayName
	}
	return m.User.Name
}

// HasRole reports whether the member currently holds the given role.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Role is a grantable role within a guild.
type Role struct {
	ID      string
	GuildID string
	Name    string
}

// Client is the remote directory service. All calls may block on network
// I/O; callers that must not wait schedule them onto another goroutine.
type Client interface {
	// Guild resolves a guild by ID.
	Guild(ctx context.Context, guildID string) (*Guild, error)
	// PrimaryGuild returns the service's main guild.
	PrimaryGuild(ctx context.Context) (*Guild, error)
	// Member resolves a user's membership in a guild.
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	// User resolves a chat-platform account by ID.
	User(ctx context.Context, userID string) (*User, error)
	// Role resolves a role by ID across all guilds the service can see.
	Role(ctx context.Context, roleID string) (*Role, error)
	// RoleByName returns the first role matching name (case-insensitive).
	RoleByName(ctx context.Context, name string) (*Role, error)
	// Identity returns the service's own member in the primary guild.
	Identity(ctx context.Context) (*Member, error)

	// GrantRole adds a role to a member.
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	// RevokeRole removes a role from a member.
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error
	// SetNickname changes a member's guild nickname. An empty nickname
	// clears it.
	SetNickname(ctx context.Context, guildID, userID, nickname string) error
}
