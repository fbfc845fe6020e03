// Package credentials holds the upstream credential set a request runs with:
// the process defaults, optionally overridden per request by Tana.
package credentials

// Set is the credential and target selection for one embed-and-store call.
type Set struct {
	// OpenAIKey authenticates embedding requests.
	OpenAIKey string

	// EmbeddingModel names the embedding model.
	EmbeddingModel string

	// PineconeKey authenticates vector store requests.
	PineconeKey string

	// Environment is the vector store environment (Pinecone legacy controller).
	Environment string

	// Index is the vector store index.
	Index string
}

// Merge returns defaults with every non-empty field of overrides applied.
// Neither argument is modified.
func Merge(defaults, overrides Set) Set {
	out := defaults
	if overrides.OpenAIKey != "" {
		out.OpenAIKey = overrides.OpenAIKey
	}
	if overrides.EmbeddingModel != "" {
		out.EmbeddingModel = overrides.EmbeddingModel
	}
	if overrides.PineconeKey != "" {
		out.PineconeKey = overrides.PineconeKey
	}
	if overrides.Environment != "" {
		out.Environment = overrides.Environment
	}
	if overrides.Index != "" {
		out.Index = overrides.Index
	}
	return out
}

// EmbedderDiffers reports whether s needs a different embedder than base.
func (s Set) EmbedderDiffers(base Set) bool {
	return s.OpenAIKey != base.OpenAIKey || s.EmbeddingModel != base.EmbeddingModel
}

// StoreDiffers reports whether s needs a different vector store driver than base.
func (s Set) StoreDiffers(base Set) bool {
	return s.PineconeKey != base.PineconeKey ||
		s.Environment != base.Environment ||
		s.Index != base.Index
}

// IsZero reports whether no field is set.
func (s Set) IsZero() bool {
	return s == Set{}
}
