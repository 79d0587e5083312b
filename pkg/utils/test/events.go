package testutils

import (
	"context"
	"sync"

	"github.com/corticalco/engram/pkg/eventstream"
)

// CapturePublisher records every published event for assertions.
type CapturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(_ context.Context, ev *eventstream.Event) error {
	if ev == nil {
		return eventstream.ErrNilEvent
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *CapturePublisher) Close() error {
	return nil
}

// Events returns a copy of everything published so far.
func (p *CapturePublisher) Events() []*eventstream.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.Event(nil), p.events...)
}

// EventsOfType filters published events by type.
func (p *CapturePublisher) EventsOfType(eventType string) []*eventstream.Event {
	var out []*eventstream.Event
	for _, ev := range p.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
