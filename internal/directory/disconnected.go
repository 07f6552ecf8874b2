// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package directory

import "context"

// Disconnected is a null Client used when no chat-platform connection is
// wired in. Every lookup reports ErrNotFound and every mutation fails,
// which degrades the callers the same way a lost connection would:
// membership checks skip or deny, side effects log and move on.
type Disconnected struct{}

var _ Client = Disconnected{}

func (Disconnected) Guild(context.Context, string) (*Guild, error)     { return nil, ErrNotFound }
func (Disconnected) PrimaryGuild(context.Context) (*Guild, error)      { return nil, ErrNotFound }
func (Disconnected) Member(context.Context, string, string) (*Member, error) {
	return nil, ErrNotFound
}
func (Disconnected) User(context.Context, string) (*User, error)       { return nil, ErrNotFound }
func (Disconnected) Role(context.Context, string) (*Role, error)       { return nil, ErrNotFound }
func (Disconnected) RoleByName(context.Context, string) (*Role, error) { return nil, ErrNotFound }
func (Disconnected) Identity(context.Context) (*Member, error)         { return nil, ErrNotFound }

func (Disconnected) GrantRole(context.Context, string, string, string) error  { return ErrNotFound }
func (Disconnected) RevokeRole(context.Context, string, string, string) error { return ErrNotFound }
func (Disconnected) SetNickname(context.Context, string, string, string) error {
	return ErrNotFound
}
