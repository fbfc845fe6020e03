package tanahelpercmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	tanahelpercmder "github.com/papercomputeco/tana-helper/cmd/tanahelper"
)

var _ = Describe("NewTanaHelperCmd", func() {
	It("registers the subcommands", func() {
		cmd := tanahelpercmder.NewTanaHelperCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "config", "version"))
	})

	It("has global debug and config-dir flags", func() {
		cmd := tanahelpercmder.NewTanaHelperCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	Describe("serve", func() {
		BeforeEach(func() {
			for _, name := range []string{
				"OPENAI_API_KEY",
				"PINECONE_API_KEY",
				"TANA_HELPER_EMBEDDING_API_KEY",
				"TANA_HELPER_VECTOR_STORE_API_KEY",
				"TANA_HELPER_EMBEDDING_PROVIDER",
				"TANA_HELPER_VECTOR_STORE_PROVIDER",
			} {
				GinkgoT().Setenv(name, "")
			}
		})

		It("registers flags with config defaults", func() {
			cmd := tanahelpercmder.NewTanaHelperCmd()
			serve, _, err := cmd.Find([]string{"serve"})
			Expect(err).NotTo(HaveOccurred())
			Expect(serve.Flags().Lookup("port").DefValue).To(Equal("4000"))
			Expect(serve.Flags().Lookup("vector-store-provider").DefValue).To(Equal("pinecone"))
			Expect(serve.Flags().Lookup("local-service").DefValue).To(Equal("true"))
		})

		It("refuses to start with missing credentials", func() {
			var out bytes.Buffer
			cmd := tanahelpercmder.NewTanaHelperCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"serve", "--config-dir", GinkgoT().TempDir()})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("missing required configuration"))
			Expect(err.Error()).To(ContainSubstring("embedding.api_key"))
			Expect(err.Error()).To(ContainSubstring("vector_store.api_key"))
		})

		It("refuses an unknown vector store before listening", func() {
			cmd := tanahelpercmder.NewTanaHelperCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{
				"serve",
				"--config-dir", GinkgoT().TempDir(),
				"--embedding-provider", "ollama",
				"--vector-store-provider", "faiss",
			})

			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})
})
