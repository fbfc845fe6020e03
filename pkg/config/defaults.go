package config

const (
	defaultHost       = "localhost"
	defaultPort       = 4000
	defaultCORSOrigin = "https://app.tana.inc"

	defaultEmbeddingProvider = "openai"
	defaultEmbeddingModel    = "text-embedding-ada-002"

	defaultVectorProvider    = "pinecone"
	defaultVectorEnvironment = "asia-southeast1-gcp"
	defaultVectorIndex       = "tana-helper"
	defaultVectorNamespace   = "tana-namespace"
	defaultVectorCategory    = "tana_node"
	defaultVectorDimensions  = 1536
	defaultSQLitePath        = "tana-helper.db"

	defaultScore = 0.80
	defaultTop   = 10

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "tana-helper.records"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Host:         defaultHost,
			Port:         defaultPort,
			LocalService: true,
			CORSOrigin:   defaultCORSOrigin,
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
			Model:    defaultEmbeddingModel,
		},
		VectorStore: VectorStoreConfig{
			Provider:    defaultVectorProvider,
			Environment: defaultVectorEnvironment,
			Index:       defaultVectorIndex,
			Namespace:   defaultVectorNamespace,
			Category:    defaultVectorCategory,
			Dimensions:  defaultVectorDimensions,
			SQLitePath:  defaultSQLitePath,
		},
		Translator: TranslatorConfig{
			DefaultScore:    defaultScore,
			DefaultTop:      defaultTop,
			EnableTagFilter: true,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
