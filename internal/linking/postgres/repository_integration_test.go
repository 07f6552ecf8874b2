// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/internal/linking/postgres"
)

// setupPostgresContainer starts a PostgreSQL container, migrates the
// schema, and returns a connected repository.
func setupPostgresContainer() (*postgres.Repository, func(), error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("guildgate_test"),
		tcpostgres.WithUsername("guildgate"),
		tcpostgres.WithPassword("guildgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := postgres.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := postgres.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewRepository(pool)

	cleanup := func() {
		repo.Close()
		_ = container.Terminate(ctx)
	}

	return repo, cleanup, nil
}

var _ = Describe("Repository", func() {
	var repo *postgres.Repository
	var cleanup func()

	BeforeEach(func() {
		var err error
		repo, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("Store", func() {
		It("persists a link readable in both directions", func() {
			ctx := context.Background()
			playerID := uuid.New()

			err := repo.Store(ctx, playerID, "100200300")
			Expect(err).NotTo(HaveOccurred())

			chatID, err := repo.ChatID(ctx, playerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(chatID).To(Equal("100200300"))

			gotPlayer, err := repo.PlayerID(ctx, "100200300")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotPlayer).To(Equal(playerID))
		})

		It("rejects a second link for the same player", func() {
			ctx := context.Background()
			playerID := uuid.New()

			Expect(repo.Store(ctx, playerID, "111")).To(Succeed())
			err := repo.Store(ctx, playerID, "222")
			Expect(err).To(MatchError(linking.ErrAlreadyLinked))
		})

		It("rejects a second link for the same chat identity", func() {
			ctx := context.Background()

			Expect(repo.Store(ctx, uuid.New(), "333")).To(Succeed())
			err := repo.Store(ctx, uuid.New(), "333")
			Expect(err).To(MatchError(linking.ErrAlreadyLinked))
		})
	})

	Describe("Delete", func() {
		It("removes an existing link", func() {
			ctx := context.Background()
			playerID := uuid.New()

			Expect(repo.Store(ctx, playerID, "444")).To(Succeed())
			Expect(repo.Delete(ctx, playerID)).To(Succeed())

			_, err := repo.ChatID(ctx, playerID)
			Expect(err).To(MatchError(linking.ErrNotFound))
			_, err = repo.PlayerID(ctx, "444")
			Expect(err).To(MatchError(linking.ErrNotFound))
		})

		It("reports not found for an unlinked player", func() {
			err := repo.Delete(context.Background(), uuid.New())
			Expect(err).To(MatchError(linking.ErrNotFound))
		})
	})

	Describe("Lookups", func() {
		It("reports not found for unknown identities", func() {
			ctx := context.Background()

			_, err := repo.ChatID(ctx, uuid.New())
			Expect(err).To(MatchError(linking.ErrNotFound))

			_, err = repo.PlayerID(ctx, "no-such-chat-id")
			Expect(err).To(MatchError(linking.ErrNotFound))
		})
	})
})
