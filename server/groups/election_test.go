package groups

import (
	"context"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sardaralii/music-assistant/core/players"
	"github.com/sardaralii/music-assistant/model"
)

// syncMirrorController records commands like fakeController and additionally
// mirrors the resulting sync topology into the registry, the way a real
// provider reports it back after a join.
type syncMirrorController struct {
	*fakeController
	registry *players.Registry
}

func (c *syncMirrorController) SyncMany(ctx context.Context, leaderID string, memberIDs []string) error {
	if err := c.fakeController.SyncMany(ctx, leaderID, memberIDs); err != nil {
		return err
	}
	leader, _ := c.registry.Get(leaderID)
	for _, memberID := range memberIDs {
		if member, ok := c.registry.Get(memberID); ok {
			member.SyncedTo = leaderID
		}
		if leader != nil && !slices.Contains(leader.GroupChilds, memberID) {
			leader.GroupChilds = append(leader.GroupChilds, memberID)
		}
	}
	return nil
}

func (c *syncMirrorController) Unsync(ctx context.Context, playerID string) error {
	if err := c.fakeController.Unsync(ctx, playerID); err != nil {
		return err
	}
	if member, ok := c.registry.Get(playerID); ok {
		member.SyncedTo = ""
	}
	return nil
}

var _ = Describe("Sync leader election", func() {
	var env *testEnv
	var ctx context.Context
	var group *model.Player

	BeforeEach(func() {
		env = newTestEnv()
		ctx = context.Background()
		env.addPlayer("spk1", model.FeatureSync)
		env.addPlayer("spk2", model.FeatureSync)
		env.addPlayer("spk3", model.FeatureSync)

		var err error
		group, err = env.provider.CreateGroup(ctx, testProvider, "Trio", []string{"spk1", "spk2", "spk3"})
		Expect(err).ToNot(HaveOccurred())
	})

	member := func(playerID string) *model.Player {
		player, ok := env.registry.Get(playerID)
		Expect(ok).To(BeTrue())
		return player
	}

	Describe("syncLeader", func() {
		It("returns nil when no member is leading", func() {
			Expect(env.provider.syncLeader(group)).To(BeNil())
		})

		It("returns the member that has group childs", func() {
			member("spk2").GroupChilds = []string{"spk1", "spk3"}
			leader := env.provider.syncLeader(group)
			Expect(leader).ToNot(BeNil())
			Expect(leader.ID).To(Equal("spk2"))
		})
	})

	Describe("selectSyncLeader", func() {
		It("keeps the current leader", func() {
			member("spk3").GroupChilds = []string{"spk1"}
			leader, err := env.provider.selectSyncLeader(group)
			Expect(err).ToNot(HaveOccurred())
			Expect(leader.ID).To(Equal("spk3"))
		})

		It("prefers the first active member not claimed elsewhere", func() {
			member("spk1").ActiveGroup = "syncgroup_other"
			member("spk2").ActiveGroup = group.ID
			member("spk3").ActiveGroup = group.ID
			leader, err := env.provider.selectSyncLeader(group)
			Expect(err).ToNot(HaveOccurred())
			Expect(leader.ID).To(Equal("spk2"))
		})

		It("skips active members playing a different source", func() {
			member("spk1").ActiveGroup = group.ID
			member("spk1").ActiveSource = "spotify"
			member("spk2").ActiveGroup = group.ID
			member("spk2").ActiveSource = group.ActiveSource
			leader, err := env.provider.selectSyncLeader(group)
			Expect(err).ToNot(HaveOccurred())
			Expect(leader.ID).To(Equal("spk2"))
		})

		It("falls back to the first member when none is active", func() {
			leader, err := env.provider.selectSyncLeader(group)
			Expect(err).ToNot(HaveOccurred())
			Expect(leader.ID).To(Equal("spk1"))
		})

		It("errors when no member resolves", func() {
			env.registry.Remove("spk1")
			env.registry.Remove("spk2")
			env.registry.Remove("spk3")
			_, err := env.provider.selectSyncLeader(group)
			Expect(err).To(MatchError(ErrNoGroupMembers))
		})
	})

	Describe("resyncGroup", func() {
		BeforeEach(func() {
			for _, playerID := range []string{"spk1", "spk2", "spk3"} {
				member(playerID).ActiveGroup = group.ID
			}
		})

		It("joins all pending members in one batch", func() {
			Expect(env.provider.resyncGroup(ctx, group)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{
				"sync_many:spk1:[spk2 spk3]",
			}))
		})

		It("does nothing when every member already follows the leader", func() {
			member("spk1").GroupChilds = []string{"spk2", "spk3"}
			member("spk2").SyncedTo = "spk1"
			member("spk3").SyncedTo = "spk1"
			Expect(env.provider.resyncGroup(ctx, group)).To(Succeed())
			Expect(env.controller.recorded()).To(BeEmpty())
		})

		It("issues no further calls when run twice in a row", func() {
			mirror := &syncMirrorController{fakeController: env.controller, registry: env.registry}
			env.registry.RegisterProvider(
				&model.ProviderInfo{Domain: testProvider, Name: "Cast", SupportsSync: true},
				mirror,
			)

			Expect(env.provider.resyncGroup(ctx, group)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{
				"sync_many:spk1:[spk2 spk3]",
			}))

			Expect(env.provider.resyncGroup(ctx, group)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{
				"sync_many:spk1:[spk2 spk3]",
			}))
		})

		It("unsyncs members following a different leader first", func() {
			member("spk1").GroupChilds = []string{"spk2"}
			member("spk2").SyncedTo = "spk1"
			member("spk3").SyncedTo = "outsider"
			Expect(env.provider.resyncGroup(ctx, group)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{
				"unsync:spk3",
				"sync_many:spk1:[spk3]",
			}))
		})
	})

	Describe("groupMembers", func() {
		It("skips unavailable members and preserves member order", func() {
			member("spk2").Available = false
			members := env.provider.groupMembers(group, memberFilter{})
			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			Expect(ids).To(Equal([]string{"spk1", "spk3"}))
		})

		It("treats paused members as playing for the playing filter", func() {
			member("spk1").State = model.PlayerStatePaused
			member("spk1").ActiveGroup = group.ID
			member("spk2").ActiveGroup = group.ID
			members := env.provider.groupMembers(group, memberFilter{activeOnly: true, onlyPlaying: true})
			Expect(members).To(HaveLen(1))
			Expect(members[0].ID).To(Equal("spk1"))
		})

		It("applies the powered filter", func() {
			member("spk3").Powered = true
			members := env.provider.groupMembers(group, memberFilter{onlyPowered: true})
			Expect(members).To(HaveLen(1))
			Expect(members[0].ID).To(Equal("spk3"))
		})
	})
})
