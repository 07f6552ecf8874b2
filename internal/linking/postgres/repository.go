// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package postgres implements the link repository over PostgreSQL. The
// 1:1 link invariant is enforced by the schema: player_id is the primary
// key and chat_id carries a unique constraint.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/guildgate/guildgate/internal/linking"
)

// db is the subset of pgxpool.Pool the repository uses. pgxmock
// implements it for tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements linking.Repository using PostgreSQL.
type Repository struct {
	db    db
	close func()
}

var _ linking.Repository = (*Repository)(nil)

// Connect opens a pool for the DSN and probes connectivity with bounded
// exponential backoff. The probe keeps a briefly unavailable database
// from forcing a flat-file downgrade at startup.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("PG_CONFIG_INVALID").Wrap(err)
	}

	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("PG_CONNECT_FAILED").Wrap(err)
	}
	return pool, nil
}

// NewRepository creates a repository over a connected pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, close: pool.Close}
}

// newRepositoryForTest wires an arbitrary db implementation (pgxmock).
func newRepositoryForTest(d db) *Repository {
	return &Repository{db: d, close: func() {}}
}

// ChatID returns the chat identity linked to the player.
func (r *Repository) ChatID(ctx context.Context, playerID uuid.UUID) (string, error) {
	var chatID string
	err := r.db.QueryRow(ctx,
		`SELECT chat_id FROM account_links WHERE player_id = $1`,
		playerID.String(),
	).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", linking.ErrNotFound
	}
	if err != nil {
		return "", oops.Code("LINK_QUERY_FAILED").
			With("operation", "get chat id").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return chatID, nil
}

// PlayerID returns the player linked to the chat identity.
func (r *Repository) PlayerID(ctx context.Context, chatID string) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRow(ctx,
		`SELECT player_id FROM account_links WHERE chat_id = $1`,
		chatID,
	).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, linking.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, oops.Code("LINK_QUERY_FAILED").
			With("operation", "get player id").
			With("chat_id", chatID).
			Wrap(err)
	}

	playerID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, oops.Code("LINK_ROW_CORRUPT").
			With("chat_id", chatID).
			With("player_id", idStr).
			Wrap(err)
	}
	return playerID, nil
}

// Store persists a new link. A unique violation on either column maps to
// linking.ErrAlreadyLinked.
func (r *Repository) Store(ctx context.Context, playerID uuid.UUID, chatID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO account_links (player_id, chat_id, created_at) VALUES ($1, $2, $3)`,
		playerID.String(), chatID, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return linking.ErrAlreadyLinked
		}
		return oops.Code("LINK_INSERT_FAILED").
			With("player_id", playerID.String()).
			With("chat_id", chatID).
			Wrap(err)
	}
	return nil
}

// Delete removes a player's link.
func (r *Repository) Delete(ctx context.Context, playerID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM account_links WHERE player_id = $1`,
		playerID.String(),
	)
	if err != nil {
		return oops.Code("LINK_DELETE_FAILED").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return linking.ErrNotFound
	}
	return nil
}

// Save is a no-op: every write is already durable.
func (r *Repository) Save(_ context.Context) error {
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.close()
}

// Blocking reports true: every call is a network round trip.
func (r *Repository) Blocking() bool {
	return true
}
