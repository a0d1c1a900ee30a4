package gateway

import (
	"errors"
	"sync"

	"cardtable/internal/session"
)

var errBufferClosed = errors.New("event_buffer_closed")

// EventBuffer retains the tail of one player's event stream so an SSE
// client can resume with Last-Event-ID after a dropped HTTP connection.
// Events already carry the session-ordered Seq; the buffer never renumbers.
type EventBuffer struct {
	mu       sync.Mutex
	max      int
	events   []session.Event
	watchers map[chan session.Event]struct{}
	closed   bool
}

func NewEventBuffer(max int) *EventBuffer {
	if max <= 0 {
		max = 500
	}
	return &EventBuffer{
		max:      max,
		watchers: map[chan session.Event]struct{}{},
	}
}

func (b *EventBuffer) Append(ev session.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBufferClosed
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// ReplayAfter returns buffered events with Seq greater than last. last <= 0
// replays everything retained.
func (b *EventBuffer) ReplayAfter(last int64) []session.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]session.Event, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Seq > last {
			out = append(out, ev)
		}
	}
	return out
}

func (b *EventBuffer) Subscribe() chan session.Event {
	ch := make(chan session.Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *EventBuffer) Unsubscribe(ch chan session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *EventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

// stream pairs a buffer with a listener handle; it is the session.Listener
// registered for players who joined over HTTP.
type stream struct {
	id  string
	buf *EventBuffer
}

func newStream(bufCap int) *stream {
	return &stream{id: session.NewListenerID(), buf: NewEventBuffer(bufCap)}
}

func (s *stream) ID() string { return s.id }

func (s *stream) Deliver(ev session.Event) error {
	return s.buf.Append(ev)
}
