// Package worker provides an asynchronous worker pool that publishes record
// events off the HTTP request path, so a slow or unavailable event stream
// never delays a response to Tana.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/tana-helper/pkg/eventstream"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	publishTimeout           = 15 * time.Second
)

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every enqueued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool publishes record events asynchronously.
type Pool struct {
	config *Config
	queue  chan *eventstream.RecordEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed and sends on queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan *eventstream.RecordEvent, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an event for publishing.
// Returns false when the queue is full or the pool is closed and the event
// was dropped.
func (p *Pool) Enqueue(event *eventstream.RecordEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("record event not queued, pool closed, event dropped",
			"event_type", event.EventType,
			"node_id", event.NodeID,
		)
		return false
	}

	select {
	case p.queue <- event:
		p.logger.Debug("record event queued",
			"event_type", event.EventType,
			"node_id", event.NodeID,
		)
		return true
	default:
		p.logger.Error("record event not queued, queue full, event dropped",
			"event_type", event.EventType,
			"node_id", event.NodeID,
		)
		return false
	}
}

// Close signals workers to stop, waits for queued events to drain and
// closes the publisher. Events enqueued afterwards are dropped. Close is
// safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("event worker started", "worker_id", id)

	for event := range p.queue {
		p.publish(event)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

func (p *Pool) publish(event *eventstream.RecordEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishRecord(ctx, event); err != nil {
		p.logger.Warn("failed to publish record event",
			"event_type", event.EventType,
			"node_id", event.NodeID,
			"error", err,
		)
	}
}
