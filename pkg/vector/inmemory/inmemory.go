// Package inmemory provides a process-local vector driver ranking records by
// cosine similarity. It backs local runs without a hosted vector store.
package inmemory

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

// Driver implements vector.Driver over a map guarded by a mutex.
type Driver struct {
	namespace string

	mu      sync.RWMutex
	records map[string]vector.Record
}

// NewDriver creates an empty driver for namespace.
func NewDriver(namespace string) *Driver {
	return &Driver{
		namespace: namespace,
		records:   make(map[string]vector.Record),
	}
}

// Upsert stores copies of records, replacing those with the same ID.
func (d *Driver) Upsert(_ context.Context, records []vector.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range records {
		r.Embedding = slices.Clone(r.Embedding)
		r.Metadata.Supertags = slices.Clone(r.Metadata.Supertags)
		d.records[r.ID] = r
	}
	return nil
}

// Query ranks filtered records by cosine similarity, highest first. Ties keep
// ID order so results are deterministic.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	matches := make([]vector.Match, 0, len(d.records))
	for _, r := range d.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, vector.Match{
			ID:       r.ID,
			Score:    cosine(embedding, r.Embedding),
			Metadata: r.Metadata,
		})
	}
	d.mu.RUnlock()

	slices.SortFunc(matches, func(a, b vector.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes records by ID.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.records, id)
	}
	return nil
}

// Len returns the number of stored records.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Get returns the record stored under id.
func (d *Driver) Get(id string) (vector.Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[id]
	return r, ok
}

// Namespace returns the namespace the driver was created for.
func (d *Driver) Namespace() string {
	return d.namespace
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Driver = (*Driver)(nil)
