// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package admission gates session admission on the account link and the
// configured membership and role conditions.
package admission

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Priority orders login handlers. Handlers at a lower priority observe
// an attempt before handlers at a higher one.
type Priority int

const (
	Lowest Priority = iota
	Low
	Normal
	High
	Highest

	numPriorities = int(Highest) + 1
)

var priorityNames = [...]string{"lowest", "low", "normal", "high", "highest"}

func (p Priority) String() string {
	if p < Lowest || p > Highest {
		return "unknown"
	}
	return priorityNames[p]
}

// ParsePriority parses a configured priority name.
func ParsePriority(name string) (Priority, error) {
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return Normal, oops.Code("PRIORITY_INVALID").
		With("priority", name).
		Errorf("unknown listener priority %q", name)
}

// Attempt is one login attempt flowing through the pipeline. A denied
// attempt carries the templated reason shown to the player.
type Attempt struct {
	PlayerName string
	PlayerID   uuid.UUID

	denied bool
	reason string
}

// Deny marks the attempt rejected. The first denial wins; later calls
// are ignored.
func (a *Attempt) Deny(reason string) {
	if a.denied {
		return
	}
	a.denied = true
	a.reason = reason
}

// Denied reports whether the attempt has been rejected.
func (a *Attempt) Denied() bool { return a.denied }

// Reason returns the denial reason, empty while the attempt is allowed.
func (a *Attempt) Reason() string { return a.reason }

// Handler inspects an attempt at one priority tier.
type Handler func(ctx context.Context, attempt *Attempt)

// Pipeline dispatches a login attempt through handlers in priority
// order. Not safe for concurrent registration; register everything
// before serving logins.
type Pipeline struct {
	handlers [numPriorities][]Handler
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Register adds a handler at the given priority.
func (p *Pipeline) Register(priority Priority, h Handler) {
	p.handlers[priority] = append(p.handlers[priority], h)
}

// Run evaluates the attempt tier by tier, lowest first. A denial
// short-circuits every later handler, so the attempt is inspected at
// most once past the denying tier.
func (p *Pipeline) Run(ctx context.Context, attempt *Attempt) {
	for priority := range numPriorities {
		for _, h := range p.handlers[priority] {
			if attempt.Denied() {
				return
			}
			h(ctx, attempt)
		}
	}
}
