package eventstream_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corticalco/engram/pkg/eventstream"
)

// recorder collects delivered events behind a mutex; handlers run on the bus
// goroutine while assertions run on the test goroutine.
type recorder struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func (r *recorder) HandleEvent(event *eventstream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

var _ = Describe("New", func() {
	It("stamps schema version, id and timestamp", func() {
		ev := eventstream.New(eventstream.EventTypeMemoryCreated)

		Expect(ev.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(ev.EventType).To(Equal(eventstream.EventTypeMemoryCreated))
		Expect(ev.EventID).NotTo(BeEmpty())
		Expect(ev.EmittedAt).NotTo(BeZero())
	})
})

var _ = Describe("Bus", func() {
	var (
		bus *eventstream.Bus
		sub *recorder
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = eventstream.NewBus(eventstream.BusConfig{})
		sub = &recorder{}
		bus.Subscribe(sub)
	})

	It("delivers events to subscribers in publish order", func() {
		types := []string{
			eventstream.EventTypeMemoryCreated,
			eventstream.EventTypeMemoryUpdated,
			eventstream.EventTypeMemoryDeleted,
		}
		for _, t := range types {
			Expect(bus.Publish(ctx, eventstream.New(t))).To(Succeed())
		}

		// Close drains the queue before returning.
		Expect(bus.Close()).To(Succeed())
		Expect(sub.types()).To(Equal(types))
	})

	It("fans out to every subscriber", func() {
		second := &recorder{}
		bus.Subscribe(second)

		Expect(bus.Publish(ctx, eventstream.New(eventstream.EventTypeMemoryCreated))).To(Succeed())
		Expect(bus.Close()).To(Succeed())

		Expect(sub.types()).To(HaveLen(1))
		Expect(second.types()).To(HaveLen(1))
	})

	It("supports plain functions as subscribers", func() {
		var got sync.Map
		bus.Subscribe(eventstream.SubscriberFunc(func(ev *eventstream.Event) {
			got.Store(ev.EventID, ev.EventType)
		}))

		ev := eventstream.New(eventstream.EventTypeSearchComplete)
		Expect(bus.Publish(ctx, ev)).To(Succeed())
		Expect(bus.Close()).To(Succeed())

		value, ok := got.Load(ev.EventID)
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal(eventstream.EventTypeSearchComplete))
	})

	It("rejects nil events", func() {
		defer bus.Close()
		Expect(bus.Publish(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("rejects publishes after close", func() {
		Expect(bus.Close()).To(Succeed())

		err := bus.Publish(ctx, eventstream.New(eventstream.EventTypeMemoryCreated))
		Expect(err).To(MatchError(eventstream.ErrClosed))
	})

	It("tolerates a double close", func() {
		Expect(bus.Close()).To(Succeed())
		Expect(bus.Close()).To(Succeed())
	})

	It("survives publishers racing a close", func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()

				for {
					err := bus.Publish(ctx, eventstream.New(eventstream.EventTypeMemoryCreated))
					if err != nil {
						// Only the closed bus refuses an event.
						Expect(err).To(MatchError(eventstream.ErrClosed))
						return
					}
				}
			}()
		}

		Expect(bus.Close()).To(Succeed())
		wg.Wait()
	})
})
