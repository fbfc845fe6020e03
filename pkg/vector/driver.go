// Package vector defines the vector store contract used by the translator and
// its backend drivers.
package vector

import "context"

// Metadata is stored alongside each record's embedding.
type Metadata struct {
	// Category isolates tana-helper records from anything else sharing the
	// same index.
	Category string

	// Supertags are the Tana supertags attached to the node.
	Supertags []string

	// Text is the raw context text, kept so other tools can use it without
	// calling back into Tana.
	Text string
}

// Record is the persisted unit in a vector store, keyed by Tana node id.
type Record struct {
	ID        string
	Embedding []float32
	Metadata  Metadata
}

// Match is a single similarity query result.
type Match struct {
	ID string

	// Score is the similarity score, higher is more similar.
	Score float32

	Metadata Metadata
}

// Filter narrows a query to records of Category and, when Supertags is not
// empty, to records carrying at least one of them.
type Filter struct {
	Category  string
	Supertags []string
}

// Driver stores and queries records within the single namespace it was
// constructed for.
type Driver interface {
	// Upsert inserts records or overwrites those with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK matches in the store's rank order.
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Match, error)

	// Delete removes records by ID. Unknown IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// HasTag reports whether m carries any of tags.
func (m Metadata) HasTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range m.Supertags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Matches reports whether m satisfies f.
func (f Filter) Matches(m Metadata) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if len(f.Supertags) > 0 && !m.HasTag(f.Supertags) {
		return false
	}
	return true
}
