package embeddingutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tana-helper/pkg/embeddings/ollama"
	"github.com/papercomputeco/tana-helper/pkg/embeddings/openai"
	embeddingutils "github.com/papercomputeco/tana-helper/pkg/embeddings/utils"
)

var _ = Describe("NewEmbedder", func() {
	It("builds an openai embedder with the configured model", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: embeddingutils.ProviderOpenAI,
			APIKey:       "sk-test",
			Model:        "text-embedding-3-small",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.(*openai.Embedder).Model()).To(Equal("text-embedding-3-small"))
	})

	It("builds an ollama embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: embeddingutils.ProviderOllama,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&ollama.Embedder{}))
	})

	It("rejects unknown providers", func() {
		_, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{ProviderType: "cohere"})
		Expect(err).To(MatchError("unsupported embedding provider: cohere"))
	})
})
