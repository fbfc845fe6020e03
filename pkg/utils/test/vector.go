package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

// MockVectorDriver is a test vector driver that records calls and returns
// canned matches.
type MockVectorDriver struct {
	// Matches is returned by Query, truncated to topK.
	Matches []vector.Match

	// Err, when set, is returned by every call.
	Err error

	mu      sync.Mutex
	upserts []vector.Record
	deletes []string
	queries []MockQuery
	closed  bool
}

// MockQuery captures the arguments of one Query call.
type MockQuery struct {
	Embedding []float32
	TopK      int
	Filter    vector.Filter
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Upsert(_ context.Context, records []vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.upserts = append(m.upserts, records...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, MockQuery{Embedding: embedding, TopK: topK, Filter: filter})
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Matches) < topK {
		return m.Matches, nil
	}
	return m.Matches[:topK], nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.deletes = append(m.deletes, ids...)
	return nil
}

func (m *MockVectorDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Upserts returns every record passed to Upsert.
func (m *MockVectorDriver) Upserts() []vector.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Record(nil), m.upserts...)
}

// Deletes returns every id passed to Delete.
func (m *MockVectorDriver) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Queries returns the arguments of every Query call.
func (m *MockVectorDriver) Queries() []MockQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockQuery(nil), m.queries...)
}

// Closed reports whether Close was called.
func (m *MockVectorDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
