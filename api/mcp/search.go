package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/tana-helper/pkg/translator"
	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	searchToolName    = "tana_search"
	searchDescription = "Semantic search over Tana nodes stored by tana-helper. Returns Tana Paste references to the nodes most similar to the context text, optionally narrowed to supertags."

	// searchNodeID labels tool calls in logs; MCP callers have no Tana node.
	searchNodeID = "mcp"
)

// SearchInput represents the input arguments for the tana_search tool.
type SearchInput struct {
	Context string   `json:"context" jsonschema:"the text to find similar Tana nodes for"`
	Tags    []string `json:"tags,omitempty" jsonschema:"supertags a match must carry"`
	Score   *float64 `json:"score,omitempty" jsonschema:"minimum similarity score, exclusive (default: server setting)"`
	Top     *int     `json:"top,omitempty" jsonschema:"maximum number of matches (default: server setting)"`
}

// SearchMatch is a single accepted match.
type SearchMatch struct {
	NodeID string  `json:"node_id"`
	Score  float32 `json:"score"`
}

// SearchOutput represents the output of the tana_search tool.
type SearchOutput struct {
	Paste   string        `json:"paste"`
	Matches []SearchMatch `json:"matches"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	req, err := s.buildRequest(input)
	if err != nil {
		return errorResult(err.Error()), SearchOutput{}, nil
	}

	logger.Debug("MCP search request",
		"tags", req.Supertags,
		"threshold", req.Threshold,
		"top", req.Top,
	)

	matches, err := s.config.Searcher.Search(ctx, req)
	if err != nil {
		logger.Error("MCP search failed", "error", err)
		return errorResult(fmt.Sprintf("Search failed: %v", err)), SearchOutput{}, nil
	}

	output := buildSearchOutput(matches)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: output.Paste},
		},
	}, output, nil
}

// buildRequest applies the translator defaults to the tool input.
func (s *Server) buildRequest(input SearchInput) (*translator.Request, error) {
	if strings.TrimSpace(input.Context) == "" {
		return nil, fmt.Errorf("context is required")
	}

	opts := s.config.Searcher.Options()
	req := &translator.Request{
		NodeID:    searchNodeID,
		Context:   input.Context,
		Supertags: input.Tags,
		Threshold: opts.Threshold(),
		Top:       opts.DefaultTop,
	}

	if input.Score != nil {
		req.Threshold = *input.Score
	}
	if input.Top != nil {
		if *input.Top < 1 {
			return nil, fmt.Errorf("top must be at least 1")
		}
		req.Top = *input.Top
	}

	return req, nil
}

func buildSearchOutput(matches []vector.Match) SearchOutput {
	out := SearchOutput{
		Paste:   translator.RenderMatches(matches),
		Matches: make([]SearchMatch, len(matches)),
	}
	for i, m := range matches {
		out.Matches[i] = SearchMatch{NodeID: m.ID, Score: m.Score}
	}
	return out
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
