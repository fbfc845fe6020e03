package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/papercomputeco/tana-helper/pkg/logger"
	"github.com/papercomputeco/tana-helper/pkg/vector"
)

// fakeConnection records data-plane calls and answers queries with canned
// matches.
type fakeConnection struct {
	upserts []*pc.Vector
	query   *pc.QueryByVectorValuesRequest
	deletes []string
	matches []*pc.ScoredVector
	err     error
	closed  bool
}

func (f *fakeConnection) UpsertVectors(_ context.Context, in []*pc.Vector) (uint32, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.upserts = append(f.upserts, in...)
	return uint32(len(in)), nil
}

func (f *fakeConnection) QueryByVectorValues(_ context.Context, in *pc.QueryByVectorValuesRequest) (*pc.QueryVectorsResponse, error) {
	f.query = in
	if f.err != nil {
		return nil, f.err
	}
	return &pc.QueryVectorsResponse{Matches: f.matches}, nil
}

func (f *fakeConnection) DeleteVectorsById(_ context.Context, ids []string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, ids...)
	return nil
}

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

func metadata(fields map[string]any) *pc.Metadata {
	m, err := structpb.NewStruct(fields)
	Expect(err).NotTo(HaveOccurred())
	return m
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		conn   *fakeConnection
		hosts  []string
		driver *Driver
	)

	newDriver := func(c Config) *Driver {
		d, err := NewDriver(c, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		d.connect = func(host string) (indexConnection, error) {
			hosts = append(hosts, host)
			return conn, nil
		}
		return d
	}

	BeforeEach(func() {
		ctx = context.Background()
		conn = &fakeConnection{}
		hosts = nil
		driver = newDriver(Config{
			APIKey:    "pc-key",
			Index:     "tana-helper",
			Namespace: "tana-namespace",
			Host:      "https://tana-helper-abc.svc.pinecone.io/",
		})
	})

	Describe("NewDriver", func() {
		It("requires an API key", func() {
			_, err := NewDriver(Config{Index: "x"}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("API key is required")))
		})

		It("requires an index or host", func() {
			_, err := NewDriver(Config{APIKey: "k"}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("index or host is required")))
		})
	})

	Describe("Upsert", func() {
		It("sends vectors with metadata over one connection", func() {
			err := driver.Upsert(ctx, []vector.Record{{
				ID:        "abc123",
				Embedding: []float32{0.1, 0.2},
				Metadata: vector.Metadata{
					Category:  "tana_node",
					Supertags: []string{"#task"},
					Text:      "hello",
				},
			}})
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Upsert(ctx, []vector.Record{{ID: "n2", Embedding: []float32{1}}})).To(Succeed())

			Expect(hosts).To(Equal([]string{"tana-helper-abc.svc.pinecone.io"}))
			Expect(conn.upserts).To(HaveLen(2))

			v := conn.upserts[0]
			Expect(v.Id).To(Equal("abc123"))
			Expect(*v.Values).To(Equal([]float32{0.1, 0.2}))

			meta := v.Metadata.AsMap()
			Expect(meta["category"]).To(Equal("tana_node"))
			Expect(meta["supertag"]).To(Equal([]any{"#task"}))
			Expect(meta["text"]).To(Equal("hello"))
		})

		It("omits the supertag field when there are no tags", func() {
			err := driver.Upsert(ctx, []vector.Record{{ID: "n1", Embedding: []float32{1}, Metadata: vector.Metadata{Category: "tana_node"}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.upserts[0].Metadata.AsMap()).NotTo(HaveKey("supertag"))
		})

		It("does nothing for an empty batch", func() {
			Expect(driver.Upsert(ctx, nil)).To(Succeed())
			Expect(hosts).To(BeEmpty())
		})

		It("wraps upstream failures in ErrStore", func() {
			conn.err = errors.New("rpc error: code = ResourceExhausted")
			err := driver.Upsert(ctx, []vector.Record{{ID: "n1", Embedding: []float32{1}}})
			Expect(err).To(MatchError(vector.ErrStore))
			Expect(err.Error()).To(ContainSubstring("ResourceExhausted"))
		})
	})

	Describe("Query", func() {
		It("filters by category and supertags and keeps store order", func() {
			conn.matches = []*pc.ScoredVector{
				{Score: 0.95, Vector: &pc.Vector{Id: "b", Metadata: metadata(map[string]any{"category": "tana_node", "supertag": []any{"#task"}})}},
				{Score: 0.90, Vector: &pc.Vector{Id: "a", Metadata: metadata(map[string]any{"category": "tana_node", "supertag": "#task #idea", "text": "legacy"})}},
			}

			matches, err := driver.Query(ctx, []float32{0.1}, 5, vector.Filter{
				Category:  "tana_node",
				Supertags: []string{"#task", "#idea"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(conn.query.TopK).To(Equal(uint32(5)))
			Expect(conn.query.IncludeMetadata).To(BeTrue())
			filter := conn.query.MetadataFilter.AsMap()
			Expect(filter["category"]).To(Equal(map[string]any{"$eq": "tana_node"}))
			Expect(filter["supertag"]).To(Equal(map[string]any{"$in": []any{"#task", "#idea"}}))

			Expect(matches).To(HaveLen(2))
			Expect(matches[0].ID).To(Equal("b"))
			Expect(matches[0].Score).To(Equal(float32(0.95)))
			Expect(matches[1].ID).To(Equal("a"))
			Expect(matches[1].Metadata.Supertags).To(Equal([]string{"#task", "#idea"}))
			Expect(matches[1].Metadata.Text).To(Equal("legacy"))
		})

		It("sends only the category filter without tags", func() {
			_, err := driver.Query(ctx, []float32{0.1}, 0, vector.Filter{Category: "tana_node"})
			Expect(err).NotTo(HaveOccurred())

			Expect(conn.query.TopK).To(Equal(uint32(10)))
			Expect(conn.query.MetadataFilter.AsMap()).NotTo(HaveKey("supertag"))
		})

		It("sends no filter for an empty one", func() {
			_, err := driver.Query(ctx, []float32{0.1}, 3, vector.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.query.MetadataFilter).To(BeNil())
		})

		It("wraps upstream failures in ErrStore", func() {
			conn.err = errors.New("rpc error: code = Unavailable")
			_, err := driver.Query(ctx, []float32{0.1}, 5, vector.Filter{})
			Expect(err).To(MatchError(vector.ErrStore))
		})
	})

	Describe("Delete", func() {
		It("deletes ids", func() {
			Expect(driver.Delete(ctx, []string{"abc123"})).To(Succeed())
			Expect(conn.deletes).To(Equal([]string{"abc123"}))
		})
	})

	Describe("Close", func() {
		It("closes an opened connection", func() {
			Expect(driver.Delete(ctx, []string{"a"})).To(Succeed())
			Expect(driver.Close()).To(Succeed())
			Expect(conn.closed).To(BeTrue())
		})

		It("is a no-op before first use", func() {
			Expect(driver.Close()).To(Succeed())
			Expect(conn.closed).To(BeFalse())
		})
	})

	Describe("index host resolution", func() {
		var (
			controller *httptest.Server
			describes  atomic.Int32
			path       atomic.Value
			apiKey     atomic.Value
		)

		BeforeEach(func() {
			describes.Store(0)
			controller = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				describes.Add(1)
				path.Store(r.URL.Path)
				apiKey.Store(r.Header.Get("Api-Key"))
				w.Header().Set("Content-Type", "application/json")
				if r.URL.Path == "/databases/tana-helper" {
					json.NewEncoder(w).Encode(map[string]any{
						"database": map[string]any{"name": "tana-helper"},
						"status":   map[string]any{"host": "tana-helper-legacy.svc.asia-southeast1-gcp.pinecone.io", "ready": true},
					})
					return
				}
				json.NewEncoder(w).Encode(map[string]any{
					"name":        "tana-helper",
					"dimension":   1536,
					"metric":      "cosine",
					"host":        "tana-helper-abc.svc.aped-4627-b74a.pinecone.io",
					"vector_type": "dense",
					"spec":        map[string]any{"serverless": map[string]any{"cloud": "aws", "region": "us-east-1"}},
					"status":      map[string]any{"ready": true, "state": "Ready"},
				})
			}))
			DeferCleanup(controller.Close)
		})

		It("describes the index once through the control plane", func() {
			d := newDriver(Config{
				APIKey:        "pc-key",
				Index:         "tana-helper",
				Namespace:     "tana-namespace",
				ControllerURL: controller.URL,
			})

			Expect(d.Delete(ctx, []string{"a"})).To(Succeed())
			Expect(d.Delete(ctx, []string{"b"})).To(Succeed())

			Expect(describes.Load()).To(Equal(int32(1)))
			Expect(path.Load()).To(Equal("/indexes/tana-helper"))
			Expect(hosts).To(Equal([]string{"tana-helper-abc.svc.aped-4627-b74a.pinecone.io"}))
		})

		It("uses the legacy controller when an environment is set", func() {
			d := newDriver(Config{
				APIKey:        "pc-key",
				Environment:   "asia-southeast1-gcp",
				Index:         "tana-helper",
				Namespace:     "tana-namespace",
				ControllerURL: controller.URL,
			})

			Expect(d.Delete(ctx, []string{"a"})).To(Succeed())
			Expect(path.Load()).To(Equal("/databases/tana-helper"))
			Expect(apiKey.Load()).To(Equal("pc-key"))
			Expect(hosts).To(Equal([]string{"tana-helper-legacy.svc.asia-southeast1-gcp.pinecone.io"}))
			Expect(conn.deletes).To(Equal([]string{"a"}))
		})

		It("reports a failed lookup as a connection error", func() {
			controller.Close()
			d := newDriver(Config{
				APIKey:        "pc-key",
				Environment:   "asia-southeast1-gcp",
				Index:         "tana-helper",
				ControllerURL: controller.URL,
			})

			err := d.Delete(ctx, []string{"a"})
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(hosts).To(BeEmpty())
		})
	})
})
