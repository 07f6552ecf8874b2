// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package bus_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildgate/guildgate/internal/bus"
)

func TestBus_EmitAndSubscribe(t *testing.T) {
	b := bus.New()
	playerID := uuid.New()

	linked := b.Subscribe(bus.EventTypeLinked)
	defer b.Unsubscribe(bus.EventTypeLinked, linked)

	b.Emit(bus.NewLinkedEvent(playerID, "chat-123"))

	select {
	case ev := <-linked:
		assert.Equal(t, bus.EventTypeLinked, ev.Type)
		assert.Equal(t, playerID, ev.PlayerID)
		assert.Equal(t, "chat-123", ev.ChatID)
		assert.False(t, ev.Timestamp.IsZero())
	default:
		t.Fatal("expected linked event to be delivered")
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	b := bus.New()

	unlinked := b.Subscribe(bus.EventTypeUnlinked)
	defer b.Unsubscribe(bus.EventTypeUnlinked, unlinked)

	b.Emit(bus.NewLinkedEvent(uuid.New(), "chat-123"))

	select {
	case <-unlinked:
		t.Fatal("unlinked subscriber must not see linked events")
	default:
	}
}

func TestBus_EmitDoesNotBlockOnFullBuffer(t *testing.T) {
	b := bus.New()
	ch := b.Subscribe(bus.EventTypeLinked)
	defer b.Unsubscribe(bus.EventTypeLinked, ch)

	// Overfill the subscriber buffer; Emit must never block.
	for range 40 {
		b.Emit(bus.NewLinkedEvent(uuid.New(), "chat-123"))
	}

	// Drain what was delivered; the rest were dropped.
	delivered := 0
	for {
		select {
		case <-ch:
			delivered++
			continue
		default:
		}
		break
	}
	require.Greater(t, delivered, 0)
	assert.LessOrEqual(t, delivered, 16)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := bus.New()
	ch := b.Subscribe(bus.EventTypeLinked)
	b.Unsubscribe(bus.EventTypeLinked, ch)

	_, open := <-ch
	assert.False(t, open, "unsubscribed channel should be closed")

	// Emitting after unsubscribe must not panic.
	b.Emit(bus.NewLinkedEvent(uuid.New(), "chat-123"))
}
