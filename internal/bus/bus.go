// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package bus provides the in-process event bus for account link events.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventTypeLinked   EventType = "linked"
	EventTypeUnlinked EventType = "unlinked"
)

// Event records a change to an account link.
type Event struct {
	ID        ulid.ULID
	Type      EventType
	Timestamp time.Time
	PlayerID  uuid.UUID // game-session identity
	ChatID    string    // chat-platform identity
}

// NewLinkedEvent creates an event for a freshly created link.
func NewLinkedEvent(playerID uuid.UUID, chatID string) Event {
	return Event{
		ID:        ulid.Make(),
		Type:      EventTypeLinked,
		Timestamp: time.Now().UTC(),
		PlayerID:  playerID,
		ChatID:    chatID,
	}
}

// NewUnlinkedEvent creates an event for a destroyed link.
func NewUnlinkedEvent(playerID uuid.UUID, chatID string) Event {
	return Event{
		ID:        ulid.Make(),
		Type:      EventTypeUnlinked,
		Timestamp: time.Now().UTC(),
		PlayerID:  playerID,
		ChatID:    chatID,
	}
}

// Bus distributes link events to subscribers. Emit never blocks the
// emitter; subscribers with a full buffer miss the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[EventType][]chan Event),
	}
}

// Subscribe creates a channel for receiving events of the given type.
func (b *Bus) Subscribe(t EventType) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs[t] = append(b.subs[t], ch)
	return ch
}

// Unsubscribe removes a channel and closes it.
func (b *Bus) Unsubscribe(t EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[t]
	for i, sub := range subs {
		if sub == ch {
			b.subs[t] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Emit sends an event to all subscribers of its type. Fire-and-forget:
// the emitter never learns whether anyone received it.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Type] {
		select {
		case ch <- event:
		default:
			slog.Warn("link event dropped: subscriber buffer full",
				"event_id", event.ID.String(),
				"event_type", event.Type,
				"player_id", event.PlayerID.String(),
			)
		}
	}
}
