// Package chroma provides a Chroma vector database driver over its v2 REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	metaNodeID    = "node_id"
	metaNamespace = "namespace"
	metaCategory  = "category"
	metaSupertags = "supertag"

	// tagKeyPrefix marks the per-tag boolean keys. Chroma metadata values
	// are scalars, so set membership is expressed as one key per tag.
	tagKeyPrefix = "supertag:"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the collection holding the records, normally the
	// index name.
	CollectionName string

	// Namespace scopes every read and write of this driver.
	Namespace string
}

// Driver implements vector.Driver on a Chroma collection. Namespaces share
// the collection and are kept apart by a metadata condition.
type Driver struct {
	baseURL      string
	collectionID string
	namespace    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewDriver connects to Chroma and gets or creates the collection.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	if c.CollectionName == "" {
		return nil, errors.New("chroma collection name is required")
	}

	d := &Driver{
		baseURL:   strings.TrimRight(c.URL, "/"),
		namespace: c.Namespace,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	var collection chromaCollection
	err := d.do(context.Background(), http.MethodPost, collectionsPath, chromaCreateCollectionRequest{
		Name:        c.CollectionName,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}, &collection)
	if err != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q: %v", vector.ErrConnection, c.CollectionName, err)
	}
	d.collectionID = collection.ID

	logger.Info("connected to chroma",
		"url", c.URL,
		"collection", c.CollectionName,
		"collection_id", collection.ID,
	)

	return d, nil
}

// Upsert stores records, replacing those with the same ID.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]any, len(records)),
		Documents:  make([]string, len(records)),
	}
	for i, r := range records {
		req.IDs[i] = d.pointID(r.ID)
		req.Embeddings[i] = r.Embedding
		req.Metadatas[i] = d.encodeMetadata(r.ID, r.Metadata)
		req.Documents[i] = r.Metadata.Text
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("/upsert"), req, nil); err != nil {
		return fmt.Errorf("%w: upserting records: %v", vector.ErrStore, err)
	}

	d.logger.Debug("upserted records to chroma", "count", len(records))
	return nil
}

// Query returns the topK nearest records matching filter. Distances are
// converted with 1/(1+d) so that closer records score higher.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	var resp chromaQueryResponse
	err := d.do(ctx, http.MethodPost, d.collectionPath("/query"), chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Where:           d.buildWhere(filter),
		Include:         []string{"metadatas", "distances", "documents"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: querying records: %v", vector.ErrStore, err)
	}

	if len(resp.IDs) == 0 {
		return []vector.Match{}, nil
	}

	ids := resp.IDs[0]
	matches := make([]vector.Match, 0, len(ids))
	for i, id := range ids {
		m := vector.Match{ID: strings.TrimPrefix(id, d.namespace+"/")}

		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Score = 1 / (1 + resp.Distances[0][i])
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			raw := resp.Metadatas[0][i]
			if nodeID, ok := raw[metaNodeID].(string); ok && nodeID != "" {
				m.ID = nodeID
			}
			m.Metadata = decodeMetadata(raw)
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			m.Metadata.Text = *resp.Documents[0][i]
		}

		matches = append(matches, m)
	}

	d.logger.Debug("queried chroma", "matches", len(matches))
	return matches, nil
}

// Delete removes records by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = d.pointID(id)
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("/delete"), chromaDeleteRequest{IDs: pointIDs}, nil); err != nil {
		return fmt.Errorf("%w: deleting records: %v", vector.ErrStore, err)
	}

	d.logger.Debug("deleted records from chroma", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

// pointID qualifies a node ID with the namespace so namespaces sharing a
// collection never collide.
func (d *Driver) pointID(nodeID string) string {
	return d.namespace + "/" + nodeID
}

func (d *Driver) collectionPath(suffix string) string {
	return collectionsPath + "/" + d.collectionID + suffix
}

func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (d *Driver) encodeMetadata(nodeID string, m vector.Metadata) map[string]any {
	out := map[string]any{
		metaNodeID:    nodeID,
		metaNamespace: d.namespace,
		metaCategory:  m.Category,
	}
	if len(m.Supertags) > 0 {
		out[metaSupertags] = strings.Join(m.Supertags, " ")
		for _, tag := range m.Supertags {
			out[tagKeyPrefix+tag] = true
		}
	}
	return out
}

func decodeMetadata(raw map[string]any) vector.Metadata {
	var m vector.Metadata
	if s, ok := raw[metaCategory].(string); ok {
		m.Category = s
	}
	if s, ok := raw[metaSupertags].(string); ok {
		m.Supertags = strings.Fields(s)
	}
	return m
}

func (d *Driver) buildWhere(f vector.Filter) map[string]any {
	conds := []map[string]any{
		{metaNamespace: map[string]any{"$eq": d.namespace}},
	}
	if f.Category != "" {
		conds = append(conds, map[string]any{metaCategory: map[string]any{"$eq": f.Category}})
	}

	if len(f.Supertags) > 0 {
		tagConds := make([]map[string]any, len(f.Supertags))
		for i, tag := range f.Supertags {
			tagConds[i] = map[string]any{tagKeyPrefix + tag: map[string]any{"$eq": true}}
		}
		if len(tagConds) == 1 {
			conds = append(conds, tagConds[0])
		} else {
			conds = append(conds, map[string]any{"$or": tagConds})
		}
	}

	if len(conds) == 1 {
		return conds[0]
	}
	return map[string]any{"$and": conds}
}

var _ vector.Driver = (*Driver)(nil)
