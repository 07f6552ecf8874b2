// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the player ↔ chat-identity mapping. Implementations
// must be safe for concurrent use. Lookups return ErrNotFound when no
// link exists; Store returns ErrAlreadyLinked when either identity is
// already part of another link.
type Repository interface {
	// ChatID returns the chat identity linked to the player.
	ChatID(ctx context.Context, playerID uuid.UUID) (string, error)
	// PlayerID returns the player linked to the chat identity.
	PlayerID(ctx context.Context, chatID string) (uuid.UUID, error)
	// Store persists a new link.
	Store(ctx context.Context, playerID uuid.UUID, chatID string) error
	// Delete removes a player's link. Deleting a non-existent link
	// returns ErrNotFound.
	Delete(ctx context.Context, playerID uuid.UUID) error
	// Save flushes in-memory state to durable storage. A no-op for
	// backends that persist on every write.
	Save(ctx context.Context) error
	// Close releases backend resources.
	Close()

	// Blocking reports whether reads and writes may block on I/O.
	// Drives the once-per-caller nag when latency-sensitive callers use
	// blocking read paths.
	Blocking() bool
}
