// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package directorytest provides an in-memory directory.Client for tests.
package directorytest

import (
	"context"
	"strings"
	"sync"

	"github.com/guildgate/guildgate/internal/directory"
)

// RoleChange records a role grant or revocation.
type RoleChange struct {
	GuildID string
	UserID  string
	RoleID  string
}

// NicknameChange records a nickname mutation.
type NicknameChange struct {
	GuildID  string
	UserID   string
	Nickname string
}

// Fake is an in-memory directory.Client. Zero-value maps are created by
// New; mutate the exported fields to stage directory state, and inspect
// the recorded changes after exercising code under test.
type Fake struct {
	mu sync.Mutex

	PrimaryGuildID string
	Guilds         map[string]*directory.Guild
	Users          map[string]*directory.User
	Members        map[string]map[string]*directory.Member // guildID -> userID
	Roles          map[string]*directory.Role
	Self           *directory.Member

	// Error injection. When set, the corresponding call fails.
	GuildErr    error
	MemberErr   error
	RoleErr     error
	IdentityErr error
	GrantErr    error
	RevokeErr   error
	NickErr     error

	Granted   []RoleChange
	Revoked   []RoleChange
	Nicknames []NicknameChange
}

var _ directory.Client = (*Fake)(nil)

// New creates a Fake with a primary guild and a service identity member.
func New(primaryGuildID string) *Fake {
	f := &Fake{
		PrimaryGuildID: primaryGuildID,
		Guilds:         make(map[string]*directory.Guild),
		Users:          make(map[string]*directory.User),
		Members:        make(map[string]map[string]*directory.Member),
		Roles:          make(map[string]*directory.Role),
	}
	f.Guilds[primaryGuildID] = &directory.Guild{ID: primaryGuildID, Name: "primary"}
	f.Self = &directory.Member{
		User:    directory.User{ID: "bot", Name: "GuildGate", DisplayName: "GuildGate"},
		GuildID: primaryGuildID,
	}
	return f
}

// AddMember stages a member (and its user) in a guild.
func (f *Fake) AddMember(guildID string, m *directory.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.GuildID = guildID
	if f.Members[guildID] == nil {
		f.Members[guildID] = make(map[string]*directory.Member)
	}
	f.Members[guildID][m.User.ID] = m
	f.Users[m.User.ID] = &m.User
}

// AddRole stages a role.
func (f *Fake) AddRole(r *directory.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Roles[r.ID] = r
}

// RemoveMember unstages a member, as if they left the guild.
func (f *Fake) RemoveMember(guildID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Members[guildID], userID)
}

// GrantedSnapshot copies the recorded role grants. Safe to call while
// hooks are still running in the background.
func (f *Fake) GrantedSnapshot() []RoleChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleChange(nil), f.Granted...)
}

func (f *Fake) Guild(_ context.Context, guildID string) (*directory.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GuildErr != nil {
		return nil, f.GuildErr
	}
	g, ok := f.Guilds[guildID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return g, nil
}

func (f *Fake) PrimaryGuild(ctx context.Context) (*directory.Guild, error) {
	return f.Guild(ctx, f.PrimaryGuildID)
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (*directory.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MemberErr != nil {
		return nil, f.MemberErr
	}
	m, ok := f.Members[guildID][userID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return m, nil
}

func (f *Fake) User(_ context.Context, userID string) (*directory.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[userID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

func (f *Fake) Role(_ context.Context, roleID string) (*directory.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return nil, f.RoleErr
	}
	r, ok := f.Roles[roleID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return r, nil
}

func (f *Fake) RoleByName(_ context.Context, name string) (*directory.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return nil, f.RoleErr
	}
	for _, r := range f.Roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (f *Fake) Identity(_ context.Context) (*directory.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IdentityErr != nil {
		return nil, f.IdentityErr
	}
	return f.Self, nil
}

func (f *Fake) GrantRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GrantErr != nil {
		return f.GrantErr
	}
	f.Granted = append(f.Granted, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID})
	if m, ok := f.Members[guildID][userID]; ok && !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

func (f *Fake) RevokeRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevokeErr != nil {
		return f.RevokeErr
	}
	f.Revoked = append(f.Revoked, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID})
	if m, ok := f.Members[guildID][userID]; ok {
		for i, id := range m.RoleIDs {
			if id == roleID {
				m.RoleIDs = append(m.RoleIDs[:i], m.RoleIDs[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *Fake) SetNickname(_ context.Context, guildID, userID, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NickErr != nil {
		return f.NickErr
	}
	f.Nicknames = append(f.Nicknames, NicknameChange{GuildID: guildID, UserID: userID, Nickname: nickname})
	if m, ok := f.Members[guildID][userID]; ok {
		m.Nickname = nickname
	}
	return nil
}
