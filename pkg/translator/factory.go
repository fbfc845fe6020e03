package translator

import (
	"context"

	"github.com/papercomputeco/tana-helper/pkg/credentials"
	"github.com/papercomputeco/tana-helper/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/tana-helper/pkg/embeddings/utils"
	"github.com/papercomputeco/tana-helper/pkg/vector"
	vectorutils "github.com/papercomputeco/tana-helper/pkg/vector/utils"
)

// ProviderFactory builds request-scoped clients from the configured provider
// options, substituting the request's credentials.
type ProviderFactory struct {
	Embedding embeddingutils.NewEmbedderOpts
	Vector    vectorutils.NewVectorDriverOpts
}

// NewEmbedder builds an embedder authenticated with creds.
func (f *ProviderFactory) NewEmbedder(creds credentials.Set) (embeddings.Embedder, error) {
	opts := f.Embedding
	opts.APIKey = creds.OpenAIKey
	opts.Model = creds.EmbeddingModel
	return embeddingutils.NewEmbedder(&opts)
}

// NewDriver builds a driver for the index and credentials in creds.
// Only pinecone is addressed by environment and index; qdrant takes the key.
func (f *ProviderFactory) NewDriver(ctx context.Context, creds credentials.Set) (vector.Driver, error) {
	opts := f.Vector
	switch opts.ProviderType {
	case vectorutils.ProviderPinecone:
		if creds.Index != opts.Index {
			// A configured host points at the default index.
			opts.TargetURL = ""
		}
		opts.APIKey = creds.PineconeKey
		opts.Environment = creds.Environment
		opts.Index = creds.Index
	case vectorutils.ProviderQdrant:
		opts.APIKey = creds.PineconeKey
	}
	return vectorutils.NewVectorDriver(ctx, &opts)
}

// DriverDiffers reports whether creds change a field the configured
// provider reads. Local stores ignore request credentials, so they always
// share the process driver.
func (f *ProviderFactory) DriverDiffers(creds, base credentials.Set) bool {
	switch f.Vector.ProviderType {
	case vectorutils.ProviderPinecone:
		return creds.StoreDiffers(base)
	case vectorutils.ProviderQdrant:
		return creds.PineconeKey != base.PineconeKey
	default:
		return false
	}
}

var _ ClientFactory = (*ProviderFactory)(nil)
