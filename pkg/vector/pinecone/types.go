package pinecone

import (
	"strings"

	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

// Metadata keys written on every vector. "supertag" keeps the name used by
// earlier tana-helper releases so their records stay queryable.
const (
	metaCategory = "category"
	metaSupertag = "supertag"
	metaText     = "text"
)

// describeIndexResponse is the legacy per-environment controller's index
// description.
type describeIndexResponse struct {
	Host   string `json:"host"`
	Status struct {
		Host string `json:"host"`
	} `json:"status"`
}

func toVectors(records []vector.Record) ([]*pc.Vector, error) {
	out := make([]*pc.Vector, len(records))
	for i, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return nil, err
		}
		values := r.Embedding
		out[i] = &pc.Vector{
			Id:       r.ID,
			Values:   &values,
			Metadata: meta,
		}
	}
	return out, nil
}

func encodeMetadata(m vector.Metadata) (*pc.Metadata, error) {
	fields := map[string]any{
		metaCategory: m.Category,
		metaText:     m.Text,
	}
	if len(m.Supertags) > 0 {
		fields[metaSupertag] = stringList(m.Supertags)
	}
	return structpb.NewStruct(fields)
}

// decodeMetadata accepts supertags stored either as a list or, for records
// written by older releases, as a single space-delimited string.
func decodeMetadata(raw *pc.Metadata) vector.Metadata {
	var m vector.Metadata
	if raw == nil {
		return m
	}
	fields := raw.AsMap()

	if s, ok := fields[metaCategory].(string); ok {
		m.Category = s
	}
	if s, ok := fields[metaText].(string); ok {
		m.Text = s
	}

	switch tags := fields[metaSupertag].(type) {
	case string:
		m.Supertags = strings.Fields(tags)
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				m.Supertags = append(m.Supertags, s)
			}
		}
	}

	return m
}

func buildFilter(f vector.Filter) (*pc.MetadataFilter, error) {
	filter := map[string]any{}
	if f.Category != "" {
		filter[metaCategory] = map[string]any{"$eq": f.Category}
	}
	if len(f.Supertags) > 0 {
		filter[metaSupertag] = map[string]any{"$in": stringList(f.Supertags)}
	}
	if len(filter) == 0 {
		return nil, nil
	}
	return structpb.NewStruct(filter)
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
