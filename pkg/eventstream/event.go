package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordUpserted is emitted after a node's record is written.
	EventTypeRecordUpserted = "tanahelper.record.upserted"

	// EventTypeRecordDeleted is emitted after a node's record is removed.
	EventTypeRecordDeleted = "tanahelper.record.deleted"
)

// RecordEvent is a transport-neutral event payload for a vector record change.
type RecordEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Namespace     string    `json:"namespace"`
	NodeID        string    `json:"node_id"`
	Supertags     []string  `json:"supertags,omitempty"`
}

// NewRecordEvent builds an event of eventType for nodeID with a fresh id and
// the current time.
func NewRecordEvent(eventType, namespace, nodeID string, supertags []string) *RecordEvent {
	return &RecordEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Namespace:     namespace,
		NodeID:        nodeID,
		Supertags:     supertags,
	}
}
