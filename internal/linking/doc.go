// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package linking maintains the durable 1:1 mapping between game-session
// identities (player UUIDs) and chat-platform identities, issues the
// short-lived pairing codes that prove control of both, and runs the
// lifecycle side effects fired when a link is created or destroyed.
package linking
