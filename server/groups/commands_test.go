package groups

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sardaralii/music-assistant/model"
)

// fakeSources resolves announcement and queue flow audio from canned data
type fakeSources struct {
	mu            sync.Mutex
	announcements []string
	flows         []string
}

func (f *fakeSources) AnnouncementStream(_ context.Context, url string, _ model.AudioFormat, _ bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcements = append(f.announcements, url)
	return io.NopCloser(strings.NewReader("announcement audio")), nil
}

func (f *fakeSources) FlowStream(_ context.Context, queueID, queueItemID string, _ model.AudioFormat) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows = append(f.flows, queueID+"/"+queueItemID)
	return io.NopCloser(strings.NewReader("flow audio")), nil
}

var _ = Describe("Group commands", func() {
	var env *testEnv
	var ctx context.Context

	BeforeEach(func() {
		env = newTestEnv()
		ctx = context.Background()
		env.addPlayer("spk1", model.FeaturePause, model.FeatureSync)
		env.addPlayer("spk2", model.FeaturePause, model.FeatureSync)
	})

	member := func(playerID string) *model.Player {
		player, ok := env.registry.Get(playerID)
		Expect(ok).To(BeTrue())
		return player
	}

	Context("universal group", func() {
		var group *model.Player

		BeforeEach(func() {
			var err error
			group, err = env.provider.CreateGroup(ctx, GroupTypeUniversal, "Whole Home", []string{"spk1", "spk2"})
			Expect(err).ToNot(HaveOccurred())
		})

		Describe("CmdPower", func() {
			It("claims every member on power on", func() {
				Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())
				Expect(group.Powered).To(BeTrue())
				Expect(member("spk1").ActiveGroup).To(Equal(group.ID))
				Expect(member("spk1").ActiveSource).To(Equal(group.ActiveSource))
				Expect(env.controller.recorded()).To(ContainElements(
					"power:spk1:true", "power:spk2:true",
				))
			})

			It("stops a member playing foreign content before powering it on", func() {
				member("spk1").State = model.PlayerStatePlaying
				member("spk1").ActiveSource = "spotify"
				Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())
				Expect(env.controller.recorded()).To(ContainElement("stop:spk1"))
			})

			It("releases and powers off active members on power off", func() {
				Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())
				member("spk1").Powered = true
				member("spk2").Powered = true

				Expect(env.provider.CmdPower(ctx, group.ID, false)).To(Succeed())
				Expect(group.Powered).To(BeFalse())
				Expect(member("spk1").ActiveGroup).To(BeEmpty())
				Expect(member("spk1").ActiveSource).To(BeEmpty())
				Expect(env.controller.recorded()).To(ContainElements(
					"power:spk1:false", "power:spk2:false",
				))
			})

			It("stops playback before powering off a playing group", func() {
				Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())
				member("spk1").Powered = true
				member("spk1").State = model.PlayerStatePlaying
				group.State = model.PlayerStatePlaying

				Expect(env.provider.CmdPower(ctx, group.ID, false)).To(Succeed())
				Expect(env.controller.recorded()).To(ContainElement("stop:spk1"))
				Expect(group.State).To(Equal(model.PlayerStateIdle))
			})
		})

		Describe("PlayMedia", func() {
			var media model.PlayerMedia

			BeforeEach(func() {
				media = model.PlayerMedia{
					URI:       "http://radio.example/live.mp3",
					MediaType: model.MediaTypeRadio,
					Title:     "Live Radio",
				}
			})

			It("powers the group on and marks it playing", func() {
				Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())
				Expect(group.Powered).To(BeTrue())
				Expect(group.State).To(Equal(model.PlayerStatePlaying))
				Expect(group.CurrentMedia).ToNot(BeNil())
				Expect(group.CurrentMedia.URI).To(Equal(media.URI))
				Expect(group.ElapsedTime).To(BeZero())
			})

			It("starts a broadcast stream for the group", func() {
				Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())
				Expect(env.provider.getStream(group.ID)).ToNot(BeNil())
			})

			It("points every active member at its own stream url", func() {
				member("spk1").Powered = true
				member("spk2").Powered = true
				Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())

				for _, playerID := range []string{"spk1", "spk2"} {
					sent := env.controller.mediaFor(playerID)
					Expect(sent.URI).To(ContainSubstring(fmt.Sprintf("/ugp/%s.aac", group.ID)))
					Expect(sent.URI).To(HaveSuffix("player_id=" + playerID))
					Expect(sent.MediaType).To(Equal(model.MediaTypeFlowStream))
					Expect(sent.Title).To(Equal("Whole Home"))
					Expect(sent.QueueID).To(Equal(group.ID))
				}
			})

			It("replaces a stream still in flight", func() {
				Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())
				first := env.provider.getStream(group.ID)

				Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())
				second := env.provider.getStream(group.ID)
				Expect(second).ToNot(BeIdenticalTo(first))
			})

			It("resolves announcements through the stream sources", func() {
				sources := &fakeSources{}
				env.provider.SetStreamSources(sources)
				announcement := model.PlayerMedia{
					MediaType:       model.MediaTypeAnnouncement,
					AnnouncementURL: "http://tts.example/doorbell.mp3",
				}
				Expect(env.provider.PlayMedia(ctx, group.ID, announcement)).To(Succeed())
				Expect(sources.announcements).To(Equal([]string{"http://tts.example/doorbell.mp3"}))
			})

			It("fails announcements when no stream sources are wired", func() {
				announcement := model.PlayerMedia{
					MediaType:       model.MediaTypeAnnouncement,
					AnnouncementURL: "http://tts.example/doorbell.mp3",
				}
				Expect(env.provider.PlayMedia(ctx, group.ID, announcement)).
					To(MatchError(ErrProviderUnavailable))
			})
		})

		Describe("CmdStop", func() {
			It("stops playing members and drops the stream", func() {
				member("spk1").Powered = true
				Expect(env.provider.PlayMedia(ctx, group.ID, model.PlayerMedia{URI: "http://radio.example/live.mp3"})).
					To(Succeed())
				member("spk1").State = model.PlayerStatePlaying

				Expect(env.provider.CmdStop(ctx, group.ID)).To(Succeed())
				Expect(group.State).To(Equal(model.PlayerStateIdle))
				Expect(env.provider.getStream(group.ID)).To(BeNil())
				Expect(env.controller.recorded()).To(ContainElement("stop:spk1"))
			})
		})

		It("rejects play, pause and enqueue", func() {
			Expect(env.provider.CmdPlay(ctx, group.ID)).To(MatchError(ErrUnsupportedOperation))
			Expect(env.provider.CmdPause(ctx, group.ID)).To(MatchError(ErrUnsupportedOperation))
			Expect(env.provider.EnqueueNextMedia(ctx, group.ID, model.PlayerMedia{})).
				To(MatchError(ErrUnsupportedOperation))
		})

		It("treats volume set as handled elsewhere", func() {
			Expect(env.provider.CmdVolumeSet(ctx, group.ID, 30)).To(Succeed())
			Expect(env.controller.recorded()).To(BeEmpty())
		})
	})

	Context("sync group", func() {
		var group *model.Player

		BeforeEach(func() {
			var err error
			group, err = env.provider.CreateGroup(ctx, testProvider, "Kitchen Pair", []string{"spk1", "spk2"})
			Expect(err).ToNot(HaveOccurred())
			member("spk1").GroupChilds = []string{"spk2"}
			member("spk2").SyncedTo = "spk1"
		})

		It("forwards transport commands to the sync leader", func() {
			Expect(env.provider.CmdPlay(ctx, group.ID)).To(Succeed())
			Expect(env.provider.CmdPause(ctx, group.ID)).To(Succeed())
			Expect(env.provider.CmdStop(ctx, group.ID)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{
				"play:spk1", "pause:spk1", "stop:spk1",
			}))
		})

		It("sends media to the leader only", func() {
			member("spk1").ActiveGroup = group.ID
			member("spk2").ActiveGroup = group.ID
			group.Powered = true

			media := model.PlayerMedia{URI: "http://radio.example/live.mp3"}
			Expect(env.provider.PlayMedia(ctx, group.ID, media)).To(Succeed())
			Expect(env.controller.recorded()).To(ContainElement("play_media:spk1"))
			Expect(env.controller.recorded()).ToNot(ContainElement("play_media:spk2"))
			Expect(env.controller.mediaFor("spk1").URI).To(Equal(media.URI))
		})

		It("enqueues the next item on the leader", func() {
			media := model.PlayerMedia{URI: "http://music.example/next.flac"}
			Expect(env.provider.EnqueueNextMedia(ctx, group.ID, media)).To(Succeed())
			Expect(env.controller.recorded()).To(Equal([]string{"enqueue_next_media:spk1"}))
		})

		It("resyncs the members when powered on", func() {
			member("spk1").GroupChilds = nil
			member("spk2").SyncedTo = ""
			Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())
			Expect(env.controller.recorded()).To(ContainElement("sync_many:spk1:[spk2]"))
		})
	})
})
