package eventstream

import "context"

// Publisher publishes events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Subscriber receives events from a Bus. Handlers run on the bus goroutine,
// so they must return quickly; slow work belongs on the subscriber's side.
type Subscriber interface {
	HandleEvent(event *Event)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(event *Event)

func (f SubscriberFunc) HandleEvent(event *Event) { f(event) }
