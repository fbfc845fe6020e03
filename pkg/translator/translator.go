// Package translator turns validated Tana payloads into embedding and vector
// store calls and turns store matches back into Tana Paste.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/tana-helper/pkg/credentials"
	"github.com/papercomputeco/tana-helper/pkg/embeddings"
	"github.com/papercomputeco/tana-helper/pkg/eventstream"
	"github.com/papercomputeco/tana-helper/pkg/tana"
	"github.com/papercomputeco/tana-helper/pkg/utils"
	"github.com/papercomputeco/tana-helper/pkg/vector"
)

const (
	DefaultNamespace = "tana-namespace"
	DefaultCategory  = "tana_node"
	DefaultScore     = 0.80
	DefaultTop       = 10

	logPreviewLen = 80
)

// ClientFactory builds request-scoped clients for credential sets that
// differ from the process defaults. Callers close what it returns.
type ClientFactory interface {
	NewEmbedder(creds credentials.Set) (embeddings.Embedder, error)
	NewDriver(ctx context.Context, creds credentials.Set) (vector.Driver, error)

	// DriverDiffers reports whether creds address a different store than
	// base. When false the shared driver serves the request.
	DriverDiffers(creds, base credentials.Set) bool
}

// EventSink accepts record events for asynchronous publishing.
// worker.Pool satisfies it.
type EventSink interface {
	Enqueue(event *eventstream.RecordEvent) bool
}

// Options tune translator behaviour.
type Options struct {
	// Namespace scopes every record. Defaults to DefaultNamespace.
	Namespace string

	// Category tags every record and filters every query. Defaults to
	// DefaultCategory.
	Category string

	// DefaultScore is the threshold used when a payload has no score.
	// Nil selects DefaultScore; zero keeps every match.
	DefaultScore *float64

	// DefaultTop is the match count used when a payload has no top.
	DefaultTop int

	// EnableTagFilter applies the payload's supertags to queries.
	EnableTagFilter bool

	// VerboseLogging logs payloads and every per-match score decision.
	VerboseLogging bool
}

// Threshold returns the effective default score.
func (o Options) Threshold() float64 {
	if o.DefaultScore == nil {
		return DefaultScore
	}
	return *o.DefaultScore
}

// Config holds the dependencies of a Service.
type Config struct {
	// Embedder and Driver serve requests that use the default credentials.
	Embedder embeddings.Embedder
	Driver   vector.Driver

	// Defaults are the credentials Embedder and Driver were built with.
	Defaults credentials.Set

	// Factory builds clients for requests overriding Defaults. When nil,
	// overrides are ignored.
	Factory ClientFactory

	// Events receives record events. Optional.
	Events EventSink

	Options Options
	Logger  *slog.Logger
}

// Service implements the upsert, query and delete operations.
type Service struct {
	embedder embeddings.Embedder
	driver   vector.Driver
	defaults credentials.Set
	factory  ClientFactory
	events   EventSink
	opts     Options
	logger   *slog.Logger
}

// TextResult is one query_text match: the node reference and the text
// stored with it.
type TextResult struct {
	Sources string `json:"sources"`
	Answer  string `json:"answer"`
}

// New creates a Service.
func New(c Config) (*Service, error) {
	if c.Embedder == nil {
		return nil, errors.New("translator requires an embedder")
	}
	if c.Driver == nil {
		return nil, errors.New("translator requires a vector driver")
	}

	opts := c.Options
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Category == "" {
		opts.Category = DefaultCategory
	}
	if opts.DefaultScore == nil {
		score := DefaultScore
		opts.DefaultScore = &score
	}
	if opts.DefaultTop == 0 {
		opts.DefaultTop = DefaultTop
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		embedder: c.Embedder,
		driver:   c.Driver,
		defaults: c.Defaults,
		factory:  c.Factory,
		events:   c.Events,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// ParseRequest validates body with the service's defaults.
func (s *Service) ParseRequest(body []byte) (*Request, error) {
	return ParseRequest(body, s.opts.Threshold(), s.opts.DefaultTop)
}

// Upsert embeds the request context and stores it under the node id,
// replacing any previous record for the node.
func (s *Service) Upsert(ctx context.Context, req *Request) error {
	s.logRequest("upsert", req)

	embedder, driver, release, err := s.clients(ctx, req)
	if err != nil {
		return err
	}
	defer release()

	embedding, err := embedder.Embed(ctx, req.Context)
	if err != nil {
		return err
	}

	record := vector.Record{
		ID:        req.NodeID,
		Embedding: embedding,
		Metadata: vector.Metadata{
			Category:  s.opts.Category,
			Supertags: req.Supertags,
			Text:      req.Context,
		},
	}
	if err := driver.Upsert(ctx, []vector.Record{record}); err != nil {
		return err
	}

	s.logger.Info("upserted node", "node_id", req.NodeID, "supertags", req.Supertags)
	s.emit(eventstream.EventTypeRecordUpserted, req.NodeID, req.Supertags)
	return nil
}

// Search embeds the request context and returns the matches scoring
// strictly above the request threshold, in store order.
func (s *Service) Search(ctx context.Context, req *Request) ([]vector.Match, error) {
	s.logRequest("query", req)

	embedder, driver, release, err := s.clients(ctx, req)
	if err != nil {
		return nil, err
	}
	defer release()

	embedding, err := embedder.Embed(ctx, req.Context)
	if err != nil {
		return nil, err
	}

	filter := vector.Filter{Category: s.opts.Category}
	if s.opts.EnableTagFilter && len(req.Supertags) > 0 {
		filter.Supertags = req.Supertags
	}

	matches, err := driver.Query(ctx, embedding, req.Top, filter)
	if err != nil {
		return nil, err
	}

	kept := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		// Compare at the store's precision so a score equal to the
		// threshold is rejected.
		accepted := m.Score > float32(req.Threshold)
		if s.opts.VerboseLogging {
			s.logger.Debug("score decision",
				"node_id", m.ID,
				"score", m.Score,
				"threshold", req.Threshold,
				"accepted", accepted,
			)
		}
		if accepted {
			kept = append(kept, m)
		}
	}

	s.logger.Info("queried nodes",
		"node_id", req.NodeID,
		"candidates", len(matches),
		"accepted", len(kept),
	)
	return kept, nil
}

// Query renders Search results as Tana Paste, or tana.NoResults when
// nothing passes the threshold.
func (s *Service) Query(ctx context.Context, req *Request) (string, error) {
	matches, err := s.Search(ctx, req)
	if err != nil {
		return "", err
	}
	return RenderMatches(matches), nil
}

// QueryText returns Search results with the text stored for each node.
func (s *Service) QueryText(ctx context.Context, req *Request) ([]TextResult, error) {
	matches, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]TextResult, len(matches))
	for i, m := range matches {
		results[i] = TextResult{
			Sources: tana.Ref(m.ID),
			Answer:  m.Metadata.Text,
		}
	}
	return results, nil
}

// Delete removes the node's record. Deleting an unknown node succeeds.
func (s *Service) Delete(ctx context.Context, req *Request) error {
	s.logRequest("delete", req)

	_, driver, release, err := s.clients(ctx, req)
	if err != nil {
		return err
	}
	defer release()

	if err := driver.Delete(ctx, []string{req.NodeID}); err != nil {
		return err
	}

	s.logger.Info("deleted node", "node_id", req.NodeID)
	s.emit(eventstream.EventTypeRecordDeleted, req.NodeID, nil)
	return nil
}

// RenderMatches renders matches as Tana Paste node references.
func RenderMatches(matches []vector.Match) string {
	if len(matches) == 0 {
		return tana.NoResults
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return tana.RenderRefs(ids)
}

// clients resolves the embedder and driver for req. Request-scoped clients
// are closed by release; shared clients are left alone.
func (s *Service) clients(ctx context.Context, req *Request) (embeddings.Embedder, vector.Driver, func(), error) {
	embedder, driver := s.embedder, s.driver
	noop := func() {}

	if s.factory == nil || req.Overrides.IsZero() {
		return embedder, driver, noop, nil
	}

	creds := credentials.Merge(s.defaults, req.Overrides)
	var closers []func() error

	if creds.EmbedderDiffers(s.defaults) {
		e, err := s.factory.NewEmbedder(creds)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("%w: building request embedder: %v", vector.ErrEmbedding, err)
		}
		embedder = e
		closers = append(closers, e.Close)
	}

	if s.factory.DriverDiffers(creds, s.defaults) {
		d, err := s.factory.NewDriver(ctx, creds)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, noop, fmt.Errorf("%w: building request driver: %v", vector.ErrStore, err)
		}
		driver = d
		closers = append(closers, d.Close)
	}

	if len(closers) > 0 {
		s.logger.Debug("using request-scoped clients", "node_id", req.NodeID, "clients", len(closers))
	}

	release := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				s.logger.Warn("closing request-scoped client", "error", err)
			}
		}
	}
	return embedder, driver, release, nil
}

func (s *Service) emit(eventType, nodeID string, supertags []string) {
	if s.events == nil {
		return
	}
	s.events.Enqueue(eventstream.NewRecordEvent(eventType, s.opts.Namespace, nodeID, supertags))
}

func (s *Service) logRequest(op string, req *Request) {
	if !s.opts.VerboseLogging {
		return
	}
	s.logger.Debug("translator request",
		"operation", op,
		"node_id", req.NodeID,
		"context", utils.Truncate(req.Context, logPreviewLen),
		"supertags", req.Supertags,
		"threshold", req.Threshold,
		"top", req.Top,
		"overrides", !req.Overrides.IsZero(),
	)
}
