// Package eventbus implements the one outbound event kind the stream
// engine posts to its host: STREAM_STOPPED, with no payload, posted
// exactly once when the stream thread terminates. The bus is a
// write-only collaborator from the core's viewpoint — it is injected by
// the host, never owned by the engine.
package eventbus

import "sync"

// Kind enumerates the event kinds the bus can carry. Exactly one exists
// today; the type exists so the core never needs a breaking change to
// add a second.
type Kind int

// StreamStopped is posted exactly once when the stream engine's reader
// goroutine terminates, for any reason (clean EOF, read error, or sink
// failure).
const StreamStopped Kind = iota

// Event is a bus message. It currently carries no payload beyond its
// kind.
type Event struct {
	Kind Kind
}

// Handler receives a published event. Per the video buffer's consumer
// callback contract (spec'd the same way), handlers must be
// non-blocking — a typical implementation posts to the host's own event
// loop rather than doing work inline.
type Handler func(Event)

// Bus is a minimal in-process publish/subscribe list. One mutex guards
// the subscriber slice; Publish fires handlers synchronously on the
// caller's goroutine, after releasing the bus's own mutex, matching the
// video buffer's "callbacks fire outside the mutex" discipline.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler. Handlers are called in registration
// order on every Publish.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish invokes every registered handler with ev.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
