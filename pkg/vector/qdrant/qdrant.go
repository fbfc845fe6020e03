// Package qdrant provides a Qdrant vector driver over the gRPC client.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	defaultPort = 6334

	fieldNodeID    = "node_id"
	fieldNamespace = "namespace"
	fieldCategory  = "category"
	fieldSupertags = "supertag"
	fieldText      = "text"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the gRPC address, "host", "host:port" or a URL. An https
	// scheme enables TLS.
	Target string

	// APIKey is sent with every call when set.
	APIKey string

	// Collection holds the records, normally the index name.
	Collection string

	// Namespace scopes every read and write of this driver.
	Namespace string

	// Dimensions sizes the collection when it has to be created.
	Dimensions uint64
}

// Driver implements vector.Driver on a Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	namespace  string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}

	host, port, useTLS, err := parseTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %v", vector.ErrConnection, err)
	}

	d := &Driver{
		client:     client,
		collection: c.Collection,
		namespace:  c.Namespace,
		logger:     logger,
	}

	if err := d.ensureCollection(ctx, c.Dimensions); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to qdrant",
		"host", host,
		"port", port,
		"collection", c.Collection,
		"namespace", c.Namespace,
	)

	return d, nil
}

func (d *Driver) ensureCollection(ctx context.Context, dimensions uint64) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %q: %v", vector.ErrConnection, d.collection, err)
	}
	if exists {
		return nil
	}
	if dimensions == 0 {
		return fmt.Errorf("qdrant collection %q does not exist and dimensions are not configured", d.collection)
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %q: %v", vector.ErrConnection, d.collection, err)
	}

	d.logger.Info("created qdrant collection", "collection", d.collection, "dimensions", dimensions)
	return nil
}

// Upsert stores records, replacing those with the same node ID.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(d.namespace, r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(encodePayload(d.namespace, r)),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upserting points: %v", vector.ErrStore, err)
	}

	d.logger.Debug("upserted records to qdrant", "count", len(records))
	return nil
}

// Query returns the topK nearest records matching filter.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         buildFilter(d.namespace, filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying points: %v", vector.ErrStore, err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		id, meta := decodePayload(p.GetPayload())
		matches = append(matches, vector.Match{
			ID:       id,
			Score:    p.GetScore(),
			Metadata: meta,
		})
	}

	d.logger.Debug("queried qdrant", "matches", len(matches))
	return matches, nil
}

// Delete removes records by node ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(pointID(d.namespace, id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting points: %v", vector.ErrStore, err)
	}

	d.logger.Debug("deleted records from qdrant", "count", len(ids))
	return nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

// pointID derives a stable UUID for a node, since Qdrant point ids must be
// UUIDs or integers.
func pointID(namespace, nodeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+nodeID)).String()
}

func encodePayload(namespace string, r vector.Record) map[string]any {
	tags := make([]any, len(r.Metadata.Supertags))
	for i, t := range r.Metadata.Supertags {
		tags[i] = t
	}
	return map[string]any{
		fieldNodeID:    r.ID,
		fieldNamespace: namespace,
		fieldCategory:  r.Metadata.Category,
		fieldSupertags: tags,
		fieldText:      r.Metadata.Text,
	}
}

func decodePayload(payload map[string]*qdrant.Value) (string, vector.Metadata) {
	meta := vector.Metadata{
		Category: payload[fieldCategory].GetStringValue(),
		Text:     payload[fieldText].GetStringValue(),
	}
	for _, v := range payload[fieldSupertags].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			meta.Supertags = append(meta.Supertags, s)
		}
	}
	return payload[fieldNodeID].GetStringValue(), meta
}

func buildFilter(namespace string, f vector.Filter) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(fieldNamespace, namespace),
	}
	if f.Category != "" {
		must = append(must, qdrant.NewMatch(fieldCategory, f.Category))
	}
	if len(f.Supertags) > 0 {
		must = append(must, qdrant.NewMatchKeywords(fieldSupertags, f.Supertags...))
	}
	return &qdrant.Filter{Must: must}
}

func parseTarget(target string) (string, int, bool, error) {
	if target == "" {
		return "localhost", defaultPort, false, nil
	}

	useTLS := false
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", 0, false, fmt.Errorf("parsing qdrant target %q: %w", target, err)
		}
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port given.
		return target, defaultPort, useTLS, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, useTLS, nil
}

var _ vector.Driver = (*Driver)(nil)
