package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/tana-helper/pkg/vector"
	"github.com/papercomputeco/tana-helper/pkg/vector/chroma"
	"github.com/papercomputeco/tana-helper/pkg/vector/inmemory"
	"github.com/papercomputeco/tana-helper/pkg/vector/pinecone"
	"github.com/papercomputeco/tana-helper/pkg/vector/qdrant"
	"github.com/papercomputeco/tana-helper/pkg/vector/sqlitevec"
)

// Provider names accepted by NewVectorDriver.
const (
	ProviderPinecone  = "pinecone"
	ProviderQdrant    = "qdrant"
	ProviderChroma    = "chroma"
	ProviderSQLiteVec = "sqlitevec"
	ProviderInMemory  = "inmemory"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the backend address: the pinecone index host, the qdrant
	// gRPC target or the chroma URL.
	TargetURL string

	APIKey      string
	Environment string
	Index       string
	Namespace   string
	Dimensions  uint
	SQLitePath  string

	Logger *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderPinecone:
		return pinecone.NewDriver(pinecone.Config{
			APIKey:      o.APIKey,
			Environment: o.Environment,
			Index:       o.Index,
			Namespace:   o.Namespace,
			Host:        o.TargetURL,
		}, o.Logger)
	case ProviderQdrant:
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.TargetURL,
			APIKey:     o.APIKey,
			Collection: o.Index,
			Namespace:  o.Namespace,
			Dimensions: uint64(o.Dimensions),
		}, o.Logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Index,
			Namespace:      o.Namespace,
		}, o.Logger)
	case ProviderSQLiteVec:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.SQLitePath,
			Dimensions: o.Dimensions,
			Namespace:  o.Namespace,
		}, o.Logger)
	case ProviderInMemory:
		return inmemory.NewDriver(o.Namespace), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
