package eventstream

import "errors"

// ErrNilEvent indicates a nil event payload was provided to a publisher.
var ErrNilEvent = errors.New("nil event")

// ErrClosed indicates the bus has been closed and no longer accepts events.
var ErrClosed = errors.New("event bus closed")
