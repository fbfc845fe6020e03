package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/papercomputeco/tana-helper/pkg/credentials"
)

// Request is a validated Tana API payload.
type Request struct {
	// NodeID is the Tana node reference, never empty.
	NodeID string

	// Context is the text to embed. May be empty.
	Context string

	// Supertags narrows queries. Empty means no tag filter.
	Supertags []string

	// Threshold is the minimum score, exclusive, a match must exceed.
	Threshold float64

	// Top is the maximum number of matches requested from the store.
	Top int

	// Overrides are the request's credential fields. Empty fields fall back
	// to the process defaults.
	Overrides credentials.Set
}

// payload is the wire shape Tana sends.
type payload struct {
	NodeID      string     `json:"nodeId"`
	Context     string     `json:"context"`
	Tags        tagList    `json:"tags"`
	Score       flexNumber `json:"score"`
	Top         flexNumber `json:"top"`
	OpenAI      string     `json:"openai"`
	Pinecone    string     `json:"pinecone"`
	Model       string     `json:"model"`
	Environment string     `json:"environment"`
	Index       string     `json:"index"`
}

// flexNumber accepts a JSON number or a string holding one, since values
// typed into Tana fields arrive as strings.
type flexNumber struct {
	set   bool
	value float64
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		n.set, n.value = true, v
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%s is not a number", string(b))
	}
	n.set, n.value = true, v
	return nil
}

// tagList accepts the space-delimited string Tana sends, or a list of tags.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = strings.Fields(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("tags must be a string or a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, tag := range list {
		out = append(out, strings.Fields(tag)...)
	}
	*t = out
	return nil
}

// ParseRequest validates body into a Request, applying defaultScore and
// defaultTop where the payload leaves them out.
func ParseRequest(body []byte, defaultScore float64, defaultTop int) (*Request, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	nodeID := strings.TrimSpace(p.NodeID)
	if nodeID == "" {
		return nil, ErrMissingNodeID
	}

	req := &Request{
		NodeID:    nodeID,
		Context:   p.Context,
		Supertags: []string(p.Tags),
		Threshold: defaultScore,
		Top:       defaultTop,
		Overrides: credentials.Set{
			OpenAIKey:      p.OpenAI,
			EmbeddingModel: p.Model,
			PineconeKey:    p.Pinecone,
			Environment:    p.Environment,
			Index:          p.Index,
		},
	}

	if p.Score.set {
		if math.IsNaN(p.Score.value) {
			return nil, fmt.Errorf("%w: score must be a number", ErrInvalidRequest)
		}
		req.Threshold = p.Score.value
	}

	if p.Top.set {
		top := p.Top.value
		if top != math.Trunc(top) || top < 1 || top > math.MaxInt32 {
			return nil, fmt.Errorf("%w: top must be a whole number of at least 1", ErrInvalidRequest)
		}
		req.Top = int(top)
	}

	return req, nil
}
