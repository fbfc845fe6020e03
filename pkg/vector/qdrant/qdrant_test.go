package qdrant_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/tana-helper/pkg/logger"
	"github.com/papercomputeco/tana-helper/pkg/vector"
	"github.com/papercomputeco/tana-helper/pkg/vector/qdrant"
)

var _ = Describe("Driver", func() {
	It("requires a collection", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("qdrant collection is required")))
	})

	Describe("point ids", func() {
		It("are stable UUIDs per namespace and node", func() {
			a := qdrant.PointID("tana-namespace", "abc123")
			Expect(qdrant.PointID("tana-namespace", "abc123")).To(Equal(a))
			Expect(qdrant.PointID("other", "abc123")).NotTo(Equal(a))

			_, err := uuid.Parse(a)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("payload", func() {
		It("round trips node id and metadata", func() {
			in := vector.Record{
				ID:       "abc123",
				Metadata: vector.Metadata{Category: "tana_node", Supertags: []string{"#task", "#idea"}, Text: "hello"},
			}
			payload := qc.NewValueMap(qdrant.EncodePayload("tana-namespace", in))
			Expect(payload["namespace"].GetStringValue()).To(Equal("tana-namespace"))

			id, meta := qdrant.DecodePayload(payload)
			Expect(id).To(Equal("abc123"))
			Expect(meta).To(Equal(in.Metadata))
		})
	})

	Describe("filter", func() {
		It("always scopes to the namespace", func() {
			f := qdrant.BuildFilter("tana-namespace", vector.Filter{})
			Expect(f.GetMust()).To(HaveLen(1))
			Expect(f.GetMust()[0].GetField().GetKey()).To(Equal("namespace"))
			Expect(f.GetMust()[0].GetField().GetMatch().GetKeyword()).To(Equal("tana-namespace"))
		})

		It("adds category and supertag conditions", func() {
			f := qdrant.BuildFilter("tana-namespace", vector.Filter{
				Category:  "tana_node",
				Supertags: []string{"#task", "#idea"},
			})
			Expect(f.GetMust()).To(HaveLen(3))
			Expect(f.GetMust()[1].GetField().GetMatch().GetKeyword()).To(Equal("tana_node"))
			Expect(f.GetMust()[2].GetField().GetKey()).To(Equal("supertag"))
			Expect(f.GetMust()[2].GetField().GetMatch().GetKeywords().GetStrings()).To(Equal([]string{"#task", "#idea"}))
		})
	})

	DescribeTable("target parsing",
		func(target, host string, port int, tls bool) {
			h, p, t, err := qdrant.ParseTarget(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(host))
			Expect(p).To(Equal(port))
			Expect(t).To(Equal(tls))
		},
		Entry("empty", "", "localhost", 6334, false),
		Entry("host only", "qdrant", "qdrant", 6334, false),
		Entry("host and port", "qdrant:7000", "qdrant", 7000, false),
		Entry("https url", "https://xyz.cloud.qdrant.io:6334", "xyz.cloud.qdrant.io", 6334, true),
	)
})
