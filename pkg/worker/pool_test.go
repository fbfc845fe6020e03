package worker_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tana-helper/pkg/eventstream"
	"github.com/papercomputeco/tana-helper/pkg/logger"
	"github.com/papercomputeco/tana-helper/pkg/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.RecordEvent
	block  chan struct{}
	closed bool
}

func (r *recordingPublisher) PublishRecord(_ context.Context, e *eventstream.RecordEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var _ = Describe("Pool", func() {
	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{Logger: logger.Nop()})
		Expect(err).To(HaveOccurred())
	})

	It("publishes enqueued events and drains on close", func() {
		pub := &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c"} {
			Expect(pool.Enqueue(eventstream.NewRecordEvent(eventstream.EventTypeRecordUpserted, "ns", id, nil))).To(BeTrue())
		}

		Expect(pool.Close()).To(Succeed())
		Expect(pub.count()).To(Equal(3))
		Expect(pub.closed).To(BeTrue())
	})

	It("drops events when the queue is full", func() {
		pub := &recordingPublisher{block: make(chan struct{})}
		pool, err := worker.NewPool(&worker.Config{
			Publisher:  pub,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		event := func() *eventstream.RecordEvent {
			return eventstream.NewRecordEvent(eventstream.EventTypeRecordDeleted, "ns", "x", nil)
		}

		// The first event occupies the blocked worker, the second fills the queue.
		Expect(pool.Enqueue(event())).To(BeTrue())
		Eventually(func() bool { return pool.Enqueue(event()) }).Should(BeTrue())
		Expect(pool.Enqueue(event())).To(BeFalse())

		close(pub.block)
		Expect(pool.Close()).To(Succeed())
		Expect(pub.count()).To(Equal(2))
	})

	It("drops events enqueued after close", func() {
		pub := &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.Close()).To(Succeed())

		event := eventstream.NewRecordEvent(eventstream.EventTypeRecordUpserted, "ns", "late", nil)
		Expect(func() {
			Expect(pool.Enqueue(event)).To(BeFalse())
		}).NotTo(Panic())
		Expect(pub.count()).To(BeZero())
		Expect(pool.Close()).To(Succeed())
	})

	It("runs without a logger", func() {
		pub := &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		Expect(pool.Enqueue(eventstream.NewRecordEvent(eventstream.EventTypeRecordDeleted, "ns", "a", nil))).To(BeTrue())
		Expect(pool.Close()).To(Succeed())
		Expect(pub.count()).To(Equal(1))
	})
})
