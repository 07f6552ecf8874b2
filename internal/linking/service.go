// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/guildgate/guildgate/internal/observability"
)

// Lifecycle receives link/unlink side-effect callbacks. Implementations
// log their own failures; nothing they do can fail the triggering
// link or unlink.
type Lifecycle interface {
	AfterLink(ctx context.Context, playerID uuid.UUID, chatID string)
	BeforeUnlink(ctx context.Context, playerID uuid.UUID, chatID string)
	AfterUnlink(ctx context.Context, playerID uuid.UUID, chatID string)
}

// Service is the single source of truth for account links. It fronts a
// Repository with a read-through cache: cached reads may lag, bypass
// reads always hit the backend and never return stale state.
type Service struct {
	repo      Repository
	codes     *CodeStore
	lifecycle Lifecycle
	logger    *slog.Logger

	mu       sync.RWMutex
	byPlayer map[uuid.UUID]string
	byChat   map[string]uuid.UUID

	nagMu  sync.Mutex
	nagged map[string]struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLifecycle attaches the side-effect pipeline fired on link/unlink.
func WithLifecycle(l Lifecycle) ServiceOption {
	return func(s *Service) { s.lifecycle = l }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a link service over the given repository.
func NewService(repo Repository, codes *CodeStore, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		codes:    codes,
		logger:   slog.Default(),
		byPlayer: make(map[uuid.UUID]string),
		byChat:   make(map[string]uuid.UUID),
		nagged:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueCode invalidates the player's outstanding codes and issues a fresh
// one. One active code claim per player: an older code can no longer be
// presented once a new one exists.
func (s *Service) IssueCode(playerID uuid.UUID) string {
	s.codes.InvalidateAllFor(playerID)
	return s.codes.Issue(playerID)
}

// ChatID returns the chat identity linked to the player, serving from
// cache when possible. A cache miss falls through to the repository.
func (s *Service) ChatID(ctx context.Context, playerID uuid.UUID) (string, error) {
	s.mu.RLock()
	chatID, ok := s.byPlayer[playerID]
	s.mu.RUnlock()
	if ok {
		return chatID, nil
	}
	return s.freshChatID(ctx, playerID)
}

// ChatIDBypassCache returns the chat identity linked to the player with a
// guaranteed-fresh repository read. caller identifies the component for
// the once-per-caller blocking-read warning.
func (s *Service) ChatIDBypassCache(ctx context.Context, caller string, playerID uuid.UUID) (string, error) {
	s.nagBlocking(caller)
	return s.freshChatID(ctx, playerID)
}

// PlayerID returns the player linked to the chat identity, serving from
// cache when possible.
func (s *Service) PlayerID(ctx context.Context, chatID string) (uuid.UUID, error) {
	s.mu.RLock()
	playerID, ok := s.byChat[chatID]
	s.mu.RUnlock()
	if ok {
		return playerID, nil
	}
	return s.freshPlayerID(ctx, chatID)
}

// PlayerIDBypassCache returns the player linked to the chat identity with
// a guaranteed-fresh repository read.
func (s *Service) PlayerIDBypassCache(ctx context.Context, caller string, chatID string) (uuid.UUID, error) {
	s.nagBlocking(caller)
	return s.freshPlayerID(ctx, chatID)
}

func (s *Service) freshChatID(ctx context.Context, playerID uuid.UUID) (string, error) {
	chatID, err := s.repo.ChatID(ctx, playerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.dropCached(playerID)
		}
		return "", err
	}
	s.cache(playerID, chatID)
	return chatID, nil
}

func (s *Service) freshPlayerID(ctx context.Context, chatID string) (uuid.UUID, error) {
	playerID, err := s.repo.PlayerID(ctx, chatID)
	if err != nil {
		return uuid.Nil, err
	}
	s.cache(playerID, chatID)
	return playerID, nil
}

// Link consumes a pairing code and creates the durable link. The 1:1
// invariant is checked against fresh repository reads; an existing link
// on either side rejects the attempt without mutation. On success the
// cache is updated before returning, so bypass reads of either identity
// immediately observe the pair, and the AfterLink side effects fire
// asynchronously.
func (s *Service) Link(ctx context.Context, code, chatID string) (uuid.UUID, error) {
	playerID, ok := s.codes.Consume(code)
	if !ok {
		return uuid.Nil, oops.Code("LINK_CODE_INVALID").
			With("chat_id", chatID).
			Wrap(ErrCodeNotFound)
	}

	s.mu.Lock()
	if err := s.checkUnlinkedLocked(ctx, playerID, chatID); err != nil {
		s.mu.Unlock()
		return uuid.Nil, err
	}

	if err := s.repo.Store(ctx, playerID, chatID); err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrAlreadyLinked) {
			return uuid.Nil, err
		}
		return uuid.Nil, oops.Code("LINK_STORE_FAILED").
			With("player_id", playerID.String()).
			With("chat_id", chatID).
			Wrap(err)
	}
	s.byPlayer[playerID] = chatID
	s.byChat[chatID] = playerID
	s.mu.Unlock()

	observability.RecordLinkOperation("link")
	s.fireAsync(ctx, "after_link", func(hookCtx context.Context) {
		s.lifecycle.AfterLink(hookCtx, playerID, chatID)
	})
	return playerID, nil
}

// checkUnlinkedLocked verifies neither identity is already linked, using
// fresh repository reads. Caller holds s.mu.
func (s *Service) checkUnlinkedLocked(ctx context.Context, playerID uuid.UUID, chatID string) error {
	existing, err := s.repo.ChatID(ctx, playerID)
	switch {
	case err == nil:
		return oops.Code("LINK_CONFLICT").
			With("player_id", playerID.String()).
			With("linked_chat_id", existing).
			Wrap(ErrAlreadyLinked)
	case !errors.Is(err, ErrNotFound):
		return oops.Code("LINK_LOOKUP_FAILED").
			With("player_id", playerID.String()).
			Wrap(err)
	}

	existingPlayer, err := s.repo.PlayerID(ctx, chatID)
	switch {
	case err == nil:
		return oops.Code("LINK_CONFLICT").
			With("chat_id", chatID).
			With("linked_player_id", existingPlayer.String()).
			Wrap(ErrAlreadyLinked)
	case !errors.Is(err, ErrNotFound):
		return oops.Code("LINK_LOOKUP_FAILED").
			With("chat_id", chatID).
			Wrap(err)
	}
	return nil
}

// Unlink destroys the player's link. BeforeUnlink runs synchronously
// while the mapping still resolves; AfterUnlink fires asynchronously
// once the pair is gone.
func (s *Service) Unlink(ctx context.Context, playerID uuid.UUID) error {
	chatID, err := s.repo.ChatID(ctx, playerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("UNLINK_NOT_LINKED").
				With("player_id", playerID.String()).
				Wrap(ErrNotFound)
		}
		return oops.Code("UNLINK_LOOKUP_FAILED").
			With("player_id", playerID.String()).
			Wrap(err)
	}

	if s.lifecycle != nil {
		s.lifecycle.BeforeUnlink(ctx, playerID, chatID)
	}

	s.mu.Lock()
	err = s.repo.Delete(ctx, playerID)
	if err == nil || errors.Is(err, ErrNotFound) {
		delete(s.byPlayer, playerID)
		delete(s.byChat, chatID)
	}
	s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("UNLINK_DELETE_FAILED").
			With("player_id", playerID.String()).
			Wrap(err)
	}

	observability.RecordLinkOperation("unlink")
	s.fireAsync(ctx, "after_unlink", func(hookCtx context.Context) {
		s.lifecycle.AfterUnlink(hookCtx, playerID, chatID)
	})
	return nil
}

// Save flushes the repository. Called on controlled shutdown.
func (s *Service) Save(ctx context.Context) error {
	if err := s.repo.Save(ctx); err != nil {
		return oops.Code("LINK_SAVE_FAILED").Wrap(err)
	}
	return nil
}

// Close releases repository resources.
func (s *Service) Close() {
	s.repo.Close()
}

// Outstanding returns the number of live pairing codes.
func (s *Service) Outstanding() int {
	return s.codes.Outstanding()
}

func (s *Service) cache(playerID uuid.UUID, chatID string) {
	s.mu.Lock()
	s.byPlayer[playerID] = chatID
	s.byChat[chatID] = playerID
	s.mu.Unlock()
}

func (s *Service) dropCached(playerID uuid.UUID) {
	s.mu.Lock()
	if chatID, ok := s.byPlayer[playerID]; ok {
		delete(s.byPlayer, playerID)
		delete(s.byChat, chatID)
	}
	s.mu.Unlock()
}

// fireAsync runs a lifecycle callback on its own goroutine, detached
// from the caller's cancellation. The link/unlink is already committed;
// a panicking hook must not take the process down with it.
func (s *Service) fireAsync(ctx context.Context, name string, fn func(context.Context)) {
	if s.lifecycle == nil {
		return
	}
	hookCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("lifecycle hook panicked",
					"hook", name,
					"panic", r,
				)
			}
		}()
		fn(hookCtx)
	}()
}

// nagBlocking warns, at most once per caller tag, that a blocking read
// path is in use while the backend may block on I/O. Diagnostic only;
// nothing is prevented.
func (s *Service) nagBlocking(caller string) {
	if !s.repo.Blocking() {
		return
	}
	s.nagMu.Lock()
	defer s.nagMu.Unlock()
	if _, seen := s.nagged[caller]; seen {
		return
	}
	s.nagged[caller] = struct{}{}
	s.logger.Warn("blocking link lookup requested; backend may stall the caller",
		"caller", caller,
		"backend", "blocking",
	)
}
