// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package linking

import "errors"

var (
	// ErrNotFound is returned when no link exists for the queried identity.
	ErrNotFound = errors.New("link not found")

	// ErrCodeNotFound is returned when a pairing code does not exist,
	// was already consumed, or has expired.
	ErrCodeNotFound = errors.New("pairing code not found")

	// ErrAlreadyLinked is returned when either identity in a link attempt
	// is already linked to something else. The existing link is untouched.
	ErrAlreadyLinked = errors.New("identity already linked")
)
