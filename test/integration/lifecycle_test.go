// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

//go:build integration

package integration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/guildgate/guildgate/internal/admission"
	"github.com/guildgate/guildgate/internal/bus"
	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/directory/directorytest"
	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/internal/linking/flatfile"
	"github.com/guildgate/guildgate/internal/session"
)

const lifecycleConfig = `invite-link: https://chat.example/invite
storage:
  backend: file
linking:
  linked-role-name: Linked
require-link:
  enabled: true
  bypass-names: [Architect]
  must-be-in-guild: true
  messages:
    not-linked: "code={code}"
    not-in-guild: "join the guild first"
    unlinked-kick: "link lost"
`

// env assembles the full service stack against the flat-file backend
// and an in-memory directory, the way the serve command wires it.
type env struct {
	cfg       *config.Config
	dir       *directorytest.Fake
	repo      *flatfile.Repository
	linksPath string
	links     *linking.Service
	gate      *admission.Gate
	sessions  *session.Registry
	events    chan bus.Event
}

func newEnv() *env {
	tmpDir, err := os.MkdirTemp("", "guildgate-e2e-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = os.RemoveAll(tmpDir) })

	configPath := filepath.Join(tmpDir, "guildgate.yaml")
	Expect(os.WriteFile(configPath, []byte(lifecycleConfig), 0o600)).To(Succeed())

	cfg, err := config.Load(configPath, nil)
	Expect(err).NotTo(HaveOccurred())

	linksPath := filepath.Join(tmpDir, "links.json")
	repo, err := flatfile.New(linksPath, slog.Default())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(repo.Close)

	dir := directorytest.New("guild-1")
	dir.AddRole(&directory.Role{ID: "role-linked", GuildID: "guild-1", Name: "Linked"})

	eventBus := bus.New()
	events := eventBus.Subscribe(bus.EventTypeLinked)
	DeferCleanup(func() { eventBus.Unsubscribe(bus.EventTypeLinked, events) })

	sessions := session.NewRegistry()
	hooks := linking.NewHooks(linking.HooksConfig{
		Config:    cfg,
		Directory: dir,
		Bus:       eventBus,
		Sessions:  sessions,
	})
	links := linking.NewService(repo, linking.NewCodeStore(config.DefaultCodeTTL),
		linking.WithLifecycle(hooks))
	DeferCleanup(links.Close)

	gate := admission.NewGate(admission.GateConfig{
		Config:          cfg,
		Links:           links,
		Sessions:        sessions,
		Directory:       dir,
		DisconnectDelay: time.Millisecond,
	})
	hooks.SetUnlinkNotifier(gate)

	return &env{
		cfg:       cfg,
		dir:       dir,
		repo:      repo,
		linksPath: linksPath,
		links:     links,
		gate:      gate,
		sessions:  sessions,
		events:    events,
	}
}

// joinGuild stages chat user chatID as a member of the primary guild.
func (e *env) joinGuild(chatID string) {
	e.dir.AddMember("guild-1", &directory.Member{
		User:    directory.User{ID: chatID, Name: "chatuser"},
		GuildID: "guild-1",
	})
}

// pairingCode runs an admission check for an unlinked player and pulls
// the fresh code out of the denial message.
func pairingCode(decision admission.Decision) string {
	code, found := strings.CutPrefix(decision.Reason, "code=")
	Expect(found).To(BeTrue(), "denial message %q should carry a code", decision.Reason)
	return code
}

var _ = Describe("Link lifecycle", func() {
	var (
		ctx      context.Context
		e        *env
		playerID uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = newEnv()
		playerID = uuid.New()
	})

	It("walks a player from denial through linking to admission and back", func() {
		By("denying the unlinked player with a pairing code")
		first := e.gate.Check(ctx, "Hero", playerID)
		Expect(first.Allow).To(BeFalse())
		code := pairingCode(first)
		Expect(code).To(HaveLen(4))

		By("completing the link from the chat side")
		e.joinGuild("chat-1")
		linked, err := e.links.Link(ctx, code, "chat-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(linked).To(Equal(playerID))

		By("emitting a linked event")
		Eventually(e.events).Should(Receive(SatisfyAll(
			HaveField("Type", bus.EventTypeLinked),
			HaveField("PlayerID", playerID),
			HaveField("ChatID", "chat-1"),
		)))

		By("granting the linked role in the guild")
		Eventually(e.dir.GrantedSnapshot).Should(ContainElement(directorytest.RoleChange{
			GuildID: "guild-1", UserID: "chat-1", RoleID: "role-linked",
		}))

		By("admitting the linked player")
		Expect(e.gate.Check(ctx, "Hero", playerID).Allow).To(BeTrue())

		By("denying again after unlink")
		Expect(e.links.Unlink(ctx, playerID)).To(Succeed())
		after := e.gate.Check(ctx, "Hero", playerID)
		Expect(after.Allow).To(BeFalse())
		Expect(pairingCode(after)).To(HaveLen(4))
	})

	It("persists links across a flat-file reopen", func() {
		e.joinGuild("chat-2")
		denied := e.gate.Check(ctx, "Hero", playerID)
		_, err := e.links.Link(ctx, pairingCode(denied), "chat-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.links.Save(ctx)).To(Succeed())

		reopened, err := flatfile.New(e.linksPath, slog.Default())
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		chatID, err := reopened.ChatID(ctx, playerID)
		Expect(err).NotTo(HaveOccurred())
		Expect(chatID).To(Equal("chat-2"))
	})

	It("rejects a linked player who left the guild", func() {
		e.joinGuild("chat-3")
		denied := e.gate.Check(ctx, "Hero", playerID)
		_, err := e.links.Link(ctx, pairingCode(denied), "chat-3")
		Expect(err).NotTo(HaveOccurred())

		// Wait for the after-link hook to finish touching the directory
		// before mutating it.
		Eventually(e.dir.GrantedSnapshot).ShouldNot(BeEmpty())
		e.dir.RemoveMember("guild-1", "chat-3")

		decision := e.gate.Check(ctx, "Hero", playerID)
		Expect(decision.Allow).To(BeFalse())
		Expect(decision.Reason).To(Equal("join the guild first"))
	})

	It("admits bypass names without any link", func() {
		Expect(e.gate.Check(ctx, "Architect", uuid.New()).Allow).To(BeTrue())
	})

	It("kicks an active session when its link is destroyed", func() {
		e.joinGuild("chat-4")
		denied := e.gate.Check(ctx, "Hero", playerID)
		_, err := e.links.Link(ctx, pairingCode(denied), "chat-4")
		Expect(err).NotTo(HaveOccurred())

		kicked := make(chan string, 1)
		Expect(e.sessions.Register(session.Session{
			PlayerID: playerID,
			Name:     "Hero",
		}, func(message string) {
			kicked <- message
		})).To(Succeed())

		Expect(e.links.Unlink(ctx, playerID)).To(Succeed())
		Eventually(kicked).Should(Receive(Equal("link lost")))
	})
})
