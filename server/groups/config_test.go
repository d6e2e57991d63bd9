package groups

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FileConfigStore", func() {
	var store *FileConfigStore

	BeforeEach(func() {
		store = NewFileConfigStore(GinkgoT().TempDir())
	})

	It("returns no configs for a fresh data folder", func() {
		configs, err := store.GroupConfigs()
		Expect(err).ToNot(HaveOccurred())
		Expect(configs).To(BeEmpty())
	})

	It("persists configs across store instances", func() {
		cfg := GroupConfig{
			GroupID:   "ugp_aaaa1111",
			GroupType: GroupTypeUniversal,
			Name:      "Whole Home",
			Members:   []string{"spk1", "spk2"},
			Enabled:   true,
		}
		Expect(store.SaveGroupConfig(cfg)).To(Succeed())

		reopened := &FileConfigStore{path: store.path}
		configs, err := reopened.GroupConfigs()
		Expect(err).ToNot(HaveOccurred())
		Expect(configs).To(Equal([]GroupConfig{cfg}))
	})

	It("updates an existing entry in place", func() {
		cfg := GroupConfig{GroupID: "ugp_aaaa1111", GroupType: GroupTypeUniversal, Name: "Old", Enabled: true}
		Expect(store.SaveGroupConfig(cfg)).To(Succeed())
		cfg.Name = "New"
		Expect(store.SaveGroupConfig(cfg)).To(Succeed())

		configs, err := store.GroupConfigs()
		Expect(err).ToNot(HaveOccurred())
		Expect(configs).To(HaveLen(1))
		Expect(configs[0].Name).To(Equal("New"))
	})

	It("removes entries", func() {
		Expect(store.SaveGroupConfig(GroupConfig{GroupID: "ugp_aaaa1111", Enabled: true})).To(Succeed())
		Expect(store.SaveGroupConfig(GroupConfig{GroupID: "ugp_bbbb2222", Enabled: true})).To(Succeed())
		Expect(store.RemoveGroupConfig("ugp_aaaa1111")).To(Succeed())

		configs, err := store.GroupConfigs()
		Expect(err).ToNot(HaveOccurred())
		Expect(configs).To(HaveLen(1))
		Expect(configs[0].GroupID).To(Equal("ugp_bbbb2222"))
	})
})
