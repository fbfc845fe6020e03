// Package embeddingutils builds embedders by provider name.
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/tana-helper/pkg/embeddings"
	"github.com/papercomputeco/tana-helper/pkg/embeddings/ollama"
	"github.com/papercomputeco/tana-helper/pkg/embeddings/openai"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case ProviderOpenAI:
		return openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:  o.APIKey,
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case ProviderOllama:
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
