// Package pinecone provides a Pinecone vector database driver built on the
// official Go SDK.
package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	defaultTopK    = 10
	requestTimeout = 60 * time.Second
)

// Config holds configuration for the Pinecone driver.
type Config struct {
	// APIKey authenticates every request.
	APIKey string

	// Environment selects the legacy per-environment controller
	// (e.g. "asia-southeast1-gcp") for resolving the index host. Leave empty
	// for indexes managed through the global control plane.
	Environment string

	// Index is the index name.
	Index string

	// Namespace scopes every upsert, query and delete.
	Namespace string

	// Host is the index data-plane host. When set, no host lookup is made.
	Host string

	// ControllerURL overrides the base URL used to describe the index.
	ControllerURL string
}

// indexConnection is the data-plane surface of *pc.IndexConnection the
// driver uses.
type indexConnection interface {
	UpsertVectors(ctx context.Context, in []*pc.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pc.QueryByVectorValuesRequest) (*pc.QueryVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	Close() error
}

// Driver implements vector.Driver for a single Pinecone index and namespace.
type Driver struct {
	config     Config
	client     *pc.Client
	httpClient *http.Client
	logger     *slog.Logger

	// connect opens the data-plane connection for a resolved host.
	connect func(host string) (indexConnection, error)

	mu   sync.Mutex
	conn indexConnection
}

// NewDriver creates a Pinecone driver. The index host is resolved and the
// data-plane connection opened on first use.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.APIKey == "" {
		return nil, errors.New("pinecone API key is required")
	}
	if c.Index == "" && c.Host == "" {
		return nil, errors.New("pinecone index or host is required")
	}

	httpClient := &http.Client{Timeout: requestTimeout}

	client, err := pc.NewClient(pc.NewClientParams{
		ApiKey:     c.APIKey,
		Host:       controlPlaneURL(c),
		RestClient: httpClient,
		SourceTag:  "tana_helper",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating pinecone client: %v", vector.ErrConnection, err)
	}

	d := &Driver{
		config:     c,
		client:     client,
		httpClient: httpClient,
		logger:     logger,
	}
	d.connect = func(host string) (indexConnection, error) {
		conn, err := client.Index(pc.NewIndexConnParams{
			Host:      host,
			Namespace: c.Namespace,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return d, nil
}

// controlPlaneURL returns the control plane override for the SDK client.
// The legacy controller is only spoken to directly.
func controlPlaneURL(c Config) string {
	if c.Environment != "" {
		return ""
	}
	return c.ControllerURL
}

// Upsert writes records to the namespace, replacing any with the same ID.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	vectors, err := toVectors(records)
	if err != nil {
		return fmt.Errorf("%w: encoding metadata: %v", vector.ErrStore, err)
	}

	conn, err := d.connection(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("%w: pinecone upsert: %v", vector.ErrStore, err)
	}

	d.logger.Debug("upserted vectors to pinecone",
		"count", len(records),
		"namespace", d.config.Namespace,
	)

	return nil
}

// Query finds the topK nearest records matching filter.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	metaFilter, err := buildFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding filter: %v", vector.ErrStore, err)
	}

	conn, err := d.connection(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := conn.QueryByVectorValues(ctx, &pc.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pinecone query: %v", vector.ErrStore, err)
	}

	matches := make([]vector.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		matches = append(matches, vector.Match{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Metadata: decodeMetadata(m.Vector.Metadata),
		})
	}

	d.logger.Debug("queried pinecone",
		"top_k", topK,
		"matches", len(matches),
	)

	return matches, nil
}

// Delete removes records from the namespace.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := d.connection(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("%w: pinecone delete: %v", vector.ErrStore, err)
	}

	d.logger.Debug("deleted vectors from pinecone",
		"count", len(ids),
		"namespace", d.config.Namespace,
	)

	return nil
}

// Close releases the data-plane connection, if one was opened.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// connection returns the data-plane connection, resolving the index host
// once.
func (d *Driver) connection(ctx context.Context) (indexConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return d.conn, nil
	}

	host, err := d.indexHost(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := d.connect(host)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to index host %q: %v", vector.ErrConnection, host, err)
	}

	d.conn = conn
	d.logger.Info("connected to pinecone index",
		"index", d.config.Index,
		"host", host,
	)
	return conn, nil
}

func (d *Driver) indexHost(ctx context.Context) (string, error) {
	if d.config.Host != "" {
		return stripScheme(d.config.Host), nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if d.config.Environment != "" {
		return d.legacyHost(ctx)
	}

	idx, err := d.client.DescribeIndex(ctx, d.config.Index)
	if err != nil {
		return "", fmt.Errorf("%w: describing index %q: %v", vector.ErrConnection, d.config.Index, err)
	}
	if idx == nil || idx.Host == "" {
		return "", fmt.Errorf("%w: index %q has no host", vector.ErrConnection, d.config.Index)
	}
	return stripScheme(idx.Host), nil
}

// legacyHost asks the per-environment controller, which the SDK no longer
// speaks to, for the index host.
func (d *Driver) legacyHost(ctx context.Context) (string, error) {
	base := d.config.ControllerURL
	if base == "" {
		base = fmt.Sprintf("https://controller.%s.pinecone.io", d.config.Environment)
	}
	url := strings.TrimRight(base, "/") + "/databases/" + d.config.Index

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating describe request: %v", vector.ErrConnection, err)
	}
	req.Header.Set("Api-Key", d.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: describing index %q: %v", vector.ErrConnection, d.config.Index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: describing index %q: status %d: %s", vector.ErrConnection, d.config.Index, resp.StatusCode, string(body))
	}

	var desc describeIndexResponse
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return "", fmt.Errorf("%w: decoding index description: %v", vector.ErrConnection, err)
	}

	host := desc.Host
	if host == "" {
		host = desc.Status.Host
	}
	if host == "" {
		return "", fmt.Errorf("%w: index %q has no host", vector.ErrConnection, d.config.Index)
	}
	return stripScheme(host), nil
}

func stripScheme(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

var _ vector.Driver = (*Driver)(nil)
