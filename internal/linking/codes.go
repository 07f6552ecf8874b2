// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// issuedCode is an outstanding pairing code bound to a player.
type issuedCode struct {
	playerID uuid.UUID
	issuedAt time.Time
}

// CodeStore holds outstanding pairing codes. Codes are 4-digit zero-padded
// numeric strings; a code maps to exactly one player and is never
// reassigned while outstanding. Codes live in memory only and do not
// survive a restart.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]issuedCode
	ttl   time.Duration // 0 disables expiry

	now  func() time.Time
	intn func(n int) int
}

// NewCodeStore creates a code store. Codes older than ttl are treated as
// expired; pass 0 to disable expiry.
func NewCodeStore(ttl time.Duration) *CodeStore {
	return &CodeStore{
		codes: make(map[string]issuedCode),
		ttl:   ttl,
		now:   time.Now,
		intn:  rand.IntN,
	}
}

// Issue generates a fresh code for the player. Generation retries until
// an unused code is found; with 10,000 possible codes this can spin when
// the keyspace is saturated, but it never hands out a duplicate. A player
// may hold several outstanding codes; callers wanting a single-claim
// policy invalidate prior codes first.
func (s *CodeStore) Issue(playerID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	for {
		code := fmt.Sprintf("%04d", s.intn(10000))
		if _, taken := s.codes[code]; taken {
			continue
		}
		s.codes[code] = issuedCode{playerID: playerID, issuedAt: s.now()}
		return code
	}
}

// Consume atomically removes the code and returns the player it was
// issued to. At-most-once: a second consumption of the same code fails.
// Expired codes fail as if they never existed.
func (s *CodeStore) Consume(code string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		return uuid.Nil, false
	}
	delete(s.codes, code)
	if s.expired(entry) {
		return uuid.Nil, false
	}
	return entry.playerID, true
}

// InvalidateAllFor clears every outstanding code issued to the player.
// Called before issuing a fresh code so an older code cannot be presented
// to claim a link twice.
func (s *CodeStore) InvalidateAllFor(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, entry := range s.codes {
		if entry.playerID == playerID {
			delete(s.codes, code)
		}
	}
}

// Outstanding returns the number of live codes.
func (s *CodeStore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.codes {
		if !s.expired(entry) {
			n++
		}
	}
	return n
}

func (s *CodeStore) expired(entry issuedCode) bool {
	return s.ttl > 0 && s.now().Sub(entry.issuedAt) > s.ttl
}

// sweepLocked drops expired codes. Called with the lock held; no
// background janitor, expiry is enforced lazily on access.
func (s *CodeStore) sweepLocked() {
	if s.ttl == 0 {
		return
	}
	for code, entry := range s.codes {
		if s.expired(entry) {
			delete(s.codes, code)
		}
	}
}
