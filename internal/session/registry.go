// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package session tracks active game sessions and exposes the
// disconnect-with-message primitive used by the admission gate.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/guildgate/guildgate/internal/logging"
)

// Session represents a player's ongoing presence on the game server.
type Session struct {
	PlayerID    uuid.UUID
	Name        string // login name, as presented at connect time
	DisplayName string // possibly decorated name; falls back to Name
	ConnectedAt time.Time
}

// EffectiveName returns the display name, or the login name if none is set.
func (s Session) EffectiveName() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// DisconnectFunc tears down a session's connection, showing the player the
// given message. Supplied by the transport layer at registration time.
type DisconnectFunc func(message string)

type entry struct {
	session    Session
	disconnect DisconnectFunc
}

// Registry manages active sessions. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
}

// NewRegistry creates a new session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*entry),
	}
}

// Register records an active session. Returns an error if the player
// already has one; admission runs before registration, so a duplicate
// means the transport layer skipped the gate.
func (r *Registry) Register(s Session, disconnect DisconnectFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.PlayerID]; exists {
		return oops.Code("SESSION_DUPLICATE").
			With("player_id", s.PlayerID.String()).
			Errorf("player %s already has an active session", s.PlayerID)
	}
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now()
	}
	r.sessions[s.PlayerID] = &entry{session: s, disconnect: disconnect}
	return nil
}

// Remove drops a session without calling its disconnect function.
// Used when the player disconnects on their own.
func (r *Registry) Remove(playerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[playerID]; !exists {
		slog.Debug("remove called for non-existent session",
			logging.PlayerID(playerID),
		)
		return
	}
	delete(r.sessions, playerID)
}

// Lookup returns a copy of a player's session.
func (r *Registry) Lookup(playerID uuid.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.sessions[playerID]
	if !exists {
		return Session{}, false
	}
	return e.session, true
}

// Active reports whether the player currently has a session.
func (r *Registry) Active(playerID uuid.UUID) bool {
	_, ok := r.Lookup(playerID)
	return ok
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Disconnect removes the player's session and invokes its disconnect
// function with the given message. Returns false if no session existed.
// The disconnect function runs outside the registry lock.
func (r *Registry) Disconnect(playerID uuid.UUID, message string) bool {
	r.mu.Lock()
	e, exists := r.sessions[playerID]
	if exists {
		delete(r.sessions, playerID)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	if e.disconnect != nil {
		e.disconnect(message)
	}
	return true
}
