package eventstream

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultBusQueueSize = 256

// Bus is an in-process Publisher that fans events out to subscribers.
//
// A single dispatch goroutine drains a buffered queue, so subscribers observe
// events in the order operations completed. Publish never blocks the
// operation that emitted the event: when the queue is full the event is
// dropped and logged, matching the fire-and-forget delivery contract.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	queue  chan *Event
	done   chan struct{}
	closed bool
	logger *zap.Logger
}

// BusConfig holds configuration for the event bus.
type BusConfig struct {
	// QueueSize is the capacity of the buffered event channel.
	// Defaults to 256.
	QueueSize int

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// NewBus creates a bus and starts its dispatch goroutine.
func NewBus(c BusConfig) *Bus {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultBusQueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	b := &Bus{
		queue:  make(chan *Event, c.QueueSize),
		done:   make(chan struct{}),
		logger: c.Logger,
	}

	go b.dispatch()
	return b
}

// Subscribe registers a subscriber for all subsequent events.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish enqueues an event for ordered delivery.
//
// The read lock is held across the send: Close takes the write lock before
// closing the queue, so no publisher can reach the send after the channel is
// closed. The send itself never blocks (full queue falls to the default).
func (b *Bus) Publish(_ context.Context, event *Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.queue <- event:
		return nil
	default:
		b.logger.Warn("event queue full, event dropped",
			zap.String("event_type", event.EventType),
			zap.String("event_id", event.EventID),
		)
		return nil
	}
}

// Close stops accepting events, drains the queue, and waits for the
// dispatch goroutine to finish.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	return nil
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for event := range b.queue {
		b.mu.RLock()
		subs := make([]Subscriber, len(b.subscribers))
		copy(subs, b.subscribers)
		b.mu.RUnlock()

		for _, s := range subs {
			s.HandleEvent(event)
		}
	}
}

var _ Publisher = (*Bus)(nil)
