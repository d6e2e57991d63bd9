package groups

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sardaralii/music-assistant/model"
)

var _ = Describe("HTTP API", func() {
	var env *testEnv
	var ctx context.Context
	var router http.Handler

	BeforeEach(func() {
		env = newTestEnv()
		ctx = context.Background()
		env.addPlayer("spk1", model.FeaturePause, model.FeatureSync)
		env.addPlayer("spk2", model.FeaturePause, model.FeatureSync)
		router = env.provider.Router()
	})

	Describe("POST /groups", func() {
		It("creates a group and returns the new player", func() {
			body := `{"groupType":"universal","name":"Whole Home","members":["spk1","spk2"]}`
			req := httptest.NewRequest("POST", "/groups", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusCreated))
			var player model.Player
			Expect(json.Unmarshal(w.Body.Bytes(), &player)).To(Succeed())
			Expect(player.ID).To(HavePrefix(UniversalPrefix))
			Expect(player.Name).To(Equal("Whole Home"))
			Expect(player.GroupChilds).To(Equal([]string{"spk1", "spk2"}))
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest("POST", "/groups", strings.NewReader("{"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps an unknown provider to 404", func() {
			body := `{"groupType":"sonos","name":"Nope","members":["spk1"]}`
			req := httptest.NewRequest("POST", "/groups", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("maps unresolvable members to 404", func() {
			body := `{"groupType":"universal","name":"Ghost","members":["missing"]}`
			req := httptest.NewRequest("POST", "/groups", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("PUT /groups/{groupID}", func() {
		var group *model.Player

		BeforeEach(func() {
			var err error
			group, err = env.provider.CreateGroup(ctx, GroupTypeUniversal, "Whole Home", []string{"spk1", "spk2"})
			Expect(err).ToNot(HaveOccurred())
		})

		It("updates the configuration and returns the stored entry", func() {
			body := `{"name":"Everywhere","members":["spk1","missing"]}`
			req := httptest.NewRequest("PUT", "/groups/"+group.ID, strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var cfg GroupConfig
			Expect(json.Unmarshal(w.Body.Bytes(), &cfg)).To(Succeed())
			Expect(cfg.Name).To(Equal("Everywhere"))
			Expect(cfg.Members).To(Equal([]string{"spk1"}))

			updated, _ := env.registry.Get(group.ID)
			Expect(updated.Name).To(Equal("Everywhere"))
			Expect(updated.GroupChilds).To(Equal([]string{"spk1"}))
		})

		It("powers the group off when disabled", func() {
			Expect(env.provider.CmdPower(ctx, group.ID, true)).To(Succeed())

			req := httptest.NewRequest("PUT", "/groups/"+group.ID, strings.NewReader(`{"enabled":false}`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			registered, _ := env.registry.Get(group.ID)
			Expect(registered.Powered).To(BeFalse())
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest("PUT", "/groups/"+group.ID, strings.NewReader("{"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps an unknown group to 404", func() {
			req := httptest.NewRequest("PUT", "/groups/ugp_gone0000", strings.NewReader(`{"name":"x"}`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /groups/{groupID}", func() {
		var group *model.Player

		BeforeEach(func() {
			var err error
			group, err = env.provider.CreateGroup(ctx, GroupTypeUniversal, "Whole Home", []string{"spk1", "spk2"})
			Expect(err).ToNot(HaveOccurred())
		})

		It("removes the group and its configuration", func() {
			req := httptest.NewRequest("DELETE", "/groups/"+group.ID, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			_, ok := env.registry.Get(group.ID)
			Expect(ok).To(BeFalse())
			configs, err := env.store.GroupConfigs()
			Expect(err).ToNot(HaveOccurred())
			Expect(configs).To(BeEmpty())
		})

		It("tears down the group's stream endpoint", func() {
			req := httptest.NewRequest("DELETE", "/groups/"+group.ID, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNoContent))

			req = httptest.NewRequest("GET", "/ugp/"+group.ID+".aac", nil)
			w = httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("maps an unknown group to 404", func() {
			req := httptest.NewRequest("DELETE", "/groups/ugp_gone0000", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /ugp/{groupID}.aac", func() {
		var group *model.Player

		BeforeEach(func() {
			var err error
			group, err = env.provider.CreateGroup(ctx, GroupTypeUniversal, "Whole Home", []string{"spk1", "spk2"})
			Expect(err).ToNot(HaveOccurred())
		})

		It("refuses groups that were never registered", func() {
			req := httptest.NewRequest("GET", "/ugp/ugp_nope0000.aac", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("refuses a registered group without an active stream", func() {
			req := httptest.NewRequest("GET", "/ugp/"+group.ID+".aac", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		Context("with a live stream", func() {
			BeforeEach(func() {
				Expect(env.provider.PlayMedia(ctx, group.ID, model.PlayerMedia{
					URI: "http://radio.example/live.mp3",
				})).To(Succeed())
			})

			It("relays the broadcast audio with streaming headers", func() {
				req := httptest.NewRequest("GET", "/ugp/"+group.ID+".aac", nil)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				Expect(w.Code).To(Equal(http.StatusOK))
				Expect(w.Header().Get("Content-Type")).To(Equal("audio/aac"))
				Expect(w.Header().Get("Accept-Ranges")).To(Equal("none"))
				Expect(w.Header().Get("Cache-Control")).To(Equal("no-cache,must-revalidate"))
				Expect(w.Header().Get("Content-Length")).To(BeEmpty())
				Expect(w.Body.String()).To(Equal("audio"))
			})

			It("forces a content length for players that require one", func() {
				spk1, _ := env.registry.Get("spk1")
				spk1.HTTPProfile = HTTPProfileForcedLength

				req := httptest.NewRequest("GET", "/ugp/"+group.ID+".aac?player_id=spk1", nil)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				Expect(w.Code).To(Equal(http.StatusOK))
				Expect(w.Header().Get("Content-Length")).To(Equal("4294967296"))
			})

			It("stops serving once the group is removed", func() {
				env.provider.OnGroupConfigRemoved(ctx, group.ID)
				req := httptest.NewRequest("GET", "/ugp/"+group.ID+".aac", nil)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
				Expect(w.Code).To(Equal(http.StatusNotFound))
			})
		})
	})
})
