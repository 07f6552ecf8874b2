// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package flatfile implements the link repository over a JSON file. All
// state lives in memory; Save serializes it as a single object mapping
// player UUID to chat identity.
package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/pkg/errutil"
)

// Repository is a flat-file link repository. Safe for concurrent use.
type Repository struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	byPlayer map[uuid.UUID]string
	byChat   map[string]uuid.UUID
	dirty    bool
}

var _ linking.Repository = (*Repository)(nil)

// New creates a repository backed by the JSON file at path, loading any
// existing links. A missing file is an empty store, not an error.
func New(path string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		path:     path,
		logger:   logger,
		byPlayer: make(map[uuid.UUID]string),
		byChat:   make(map[string]uuid.UUID),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("LINK_FILE_READ_FAILED").With("path", r.path).Wrap(err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.Code("LINK_FILE_CORRUPT").With("path", r.path).Wrap(err)
	}
	for player, chatID := range raw {
		playerID, err := uuid.Parse(player)
		if err != nil {
			return oops.Code("LINK_FILE_CORRUPT").
				With("path", r.path).
				With("player_id", player).
				Wrap(err)
		}
		r.byPlayer[playerID] = chatID
		r.byChat[chatID] = playerID
	}
	return nil
}

// ChatID returns the chat identity linked to the player.
func (r *Repository) ChatID(_ context.Context, playerID uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chatID, ok := r.byPlayer[playerID]
	if !ok {
		return "", linking.ErrNotFound
	}
	return chatID, nil
}

// PlayerID returns the player linked to the chat identity.
func (r *Repository) PlayerID(_ context.Context, chatID string) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	playerID, ok := r.byChat[chatID]
	if !ok {
		return uuid.Nil, linking.ErrNotFound
	}
	return playerID, nil
}

// Store persists a new link. Either identity already being linked
// rejects the write and leaves the existing link untouched.
func (r *Repository) Store(_ context.Context, playerID uuid.UUID, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPlayer[playerID]; exists {
		return linking.ErrAlreadyLinked
	}
	if _, exists := r.byChat[chatID]; exists {
		return linking.ErrAlreadyLinked
	}
	r.byPlayer[playerID] = chatID
	r.byChat[chatID] = playerID
	r.dirty = true
	return nil
}

// Delete removes a player's link.
func (r *Repository) Delete(_ context.Context, playerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chatID, ok := r.byPlayer[playerID]
	if !ok {
		return linking.ErrNotFound
	}
	delete(r.byPlayer, playerID)
	delete(r.byChat, chatID)
	r.dirty = true
	return nil
}

// Save serializes the links to disk via a temp file rename. A clean
// store is a no-op.
func (r *Repository) Save(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return nil
	}

	raw := make(map[string]string, len(r.byPlayer))
	for playerID, chatID := range r.byPlayer {
		raw[playerID.String()] = chatID
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return oops.Code("LINK_FILE_ENCODE_FAILED").Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return oops.Code("LINK_FILE_WRITE_FAILED").With("path", r.path).Wrap(err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return oops.Code("LINK_FILE_WRITE_FAILED").With("path", tmp).Wrap(err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return oops.Code("LINK_FILE_WRITE_FAILED").With("path", r.path).Wrap(err)
	}
	r.dirty = false
	return nil
}

// Close flushes any unsaved state. Flush failures are logged; there is
// nowhere left to propagate them during teardown.
func (r *Repository) Close() {
	if err := r.Save(context.Background()); err != nil {
		errutil.LogError(r.logger, "failed to save links on close", err)
	}
}

// Blocking reports false: all reads and writes are in-memory.
func (r *Repository) Blocking() bool {
	return false
}

// Len returns the number of stored links.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer)
}
