// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package errutil provides structured logging helpers for oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// attrs extracts structured attributes from an oops error, or falls back
// to the plain error string.
func attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	out := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		out = append(out, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}

// LogError logs an error with structured context if it's an oops error.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, attrs(err)...)
}

// LogWarn logs an error at warning level. Used for best-effort side
// effects whose failure must not escalate past the log.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, attrs(err)...)
}
