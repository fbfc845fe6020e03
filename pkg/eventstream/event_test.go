package eventstream_test

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tana-helper/pkg/eventstream"
)

var _ = Describe("RecordEvent", func() {
	It("fills in schema, id and timestamp", func() {
		before := time.Now().UTC()
		event := eventstream.NewRecordEvent(eventstream.EventTypeRecordUpserted, "tana-namespace", "abc123", []string{"#task"})

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal("tanahelper.record.upserted"))
		Expect(event.EmittedAt).To(BeTemporally(">=", before))
		_, err := uuid.Parse(event.EventID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("marshals with snake_case keys and omits empty supertags", func() {
		event := eventstream.NewRecordEvent(eventstream.EventTypeRecordDeleted, "tana-namespace", "abc123", nil)

		raw, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("event_type", "tanahelper.record.deleted"))
		Expect(decoded).To(HaveKeyWithValue("node_id", "abc123"))
		Expect(decoded).To(HaveKeyWithValue("namespace", "tana-namespace"))
		Expect(decoded).NotTo(HaveKey("supertags"))
	})
})
