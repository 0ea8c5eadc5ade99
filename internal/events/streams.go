package events

import "sync"

// RunStreams routes events to at most one listener per request id.
// Publishing without an attached listener silently drops the event; a
// full listener buffer also drops rather than blocking the run.
type RunStreams struct {
	mu      sync.RWMutex
	bus     *Bus
	subID   string
	streams map[string]chan Event
	buffer  int
}

// NewRunStreams attaches a stream router to the bus.
func NewRunStreams(bus *Bus) *RunStreams {
	rs := &RunStreams{
		bus:     bus,
		streams: make(map[string]chan Event),
		buffer:  64,
	}
	rs.subID = bus.SubscribeAll(rs.route)
	return rs
}

func (rs *RunStreams) route(e Event) {
	if e.RequestID == "" {
		return
	}
	// The send must happen under the lock: Attach and Detach close the
	// channel under the write lock, and sending on a closed channel
	// panics. The send is non-blocking, so holding the lock is cheap.
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	ch, ok := rs.streams[e.RequestID]
	if !ok {
		return
	}
	select {
	case ch <- e:
	default:
		// Slow consumer: drop instead of stalling the run.
	}
}

// Attach registers the single listener for a request id and returns its
// channel. An existing listener for the same id is replaced and its
// channel closed.
func (rs *RunStreams) Attach(requestID string) <-chan Event {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if old, ok := rs.streams[requestID]; ok {
		close(old)
	}
	ch := make(chan Event, rs.buffer)
	rs.streams[requestID] = ch
	return ch
}

// Detach removes the listener for a request id and closes its channel.
func (rs *RunStreams) Detach(requestID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if ch, ok := rs.streams[requestID]; ok {
		close(ch)
		delete(rs.streams, requestID)
	}
}

// Close detaches every listener and unsubscribes from the bus.
func (rs *RunStreams) Close() {
	rs.bus.Unsubscribe(rs.subID)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for id, ch := range rs.streams {
		close(ch)
		delete(rs.streams, id)
	}
}
