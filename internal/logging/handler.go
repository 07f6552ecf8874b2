// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and the canonical attribute keys for link identities.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Canonical attribute keys. Log records that mention either side of an
// account link use these, so the pair stays greppable across packages.
const (
	KeyPlayerID = "player_id"
	KeyChatID   = "chat_id"
)

// PlayerID is the canonical attribute for a game-session identity.
func PlayerID(id uuid.UUID) slog.Attr {
	return slog.String(KeyPlayerID, id.String())
}

// ChatID is the canonical attribute for a chat-platform identity.
func ChatID(id string) slog.Attr {
	return slog.String(KeyChatID, id)
}

// traceHandler wraps a slog.Handler to stamp every record with the
// service identity and, when present, the active trace/span IDs.
type traceHandler struct {
	handler  slog.Handler
	identity []slog.Attr
}

// Handle adds service identity and trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.identity...)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{
		handler:  h.handler.WithAttrs(attrs),
		identity: h.identity,
	}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{
		handler:  h.handler.WithGroup(name),
		identity: h.identity,
	}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	if format == "text" {
		baseHandler = slog.NewTextHandler(w, opts)
	} else {
		baseHandler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&traceHandler{
		handler: baseHandler,
		identity: []slog.Attr{
			slog.String("service", service),
			slog.String("version", version),
		},
	})
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	slog.SetDefault(Setup(service, version, format, nil))
}
