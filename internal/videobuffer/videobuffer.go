// Package videobuffer implements the triple-buffered latest-wins frame
// handoff between one producer thread (the decoder, inline on the stream
// thread) and one consumer thread (the host UI).
package videobuffer

import "sync"

// Frame is an opaque owned reference to a decoded picture. The core never
// inspects pixels; it only moves ownership, so Frame carries just enough
// metadata for a container's declared-size bookkeeping plus whatever
// opaque payload the decoder implementation attaches.
type Frame struct {
	Width, Height int
	Payload       any
}

// Callbacks are the consumer's notification hooks. Both are invoked from
// the producer thread, outside the buffer's mutex, and must be
// non-blocking — a typical implementation posts an event to the host's
// event loop. OnFrameAvailable is required; OnFrameSkipped is optional.
type Callbacks struct {
	OnFrameAvailable func()
	OnFrameSkipped   func()
}

// Buffer is a three-slot structure — producerSlot, pendingSlot,
// consumerSlot — each holding at most one frame, handed over by pointer
// swap under a single mutex. Do not replace with a channel of capacity 1:
// the swap-based design guarantees the producer never blocks and bounds
// the number of live frames at three regardless of consumer scheduling.
//
// Only the producer reads/writes producerSlot; only the consumer
// reads/writes consumerSlot. pendingSlot and pendingConsumed are the only
// fields the mutex protects.
type Buffer struct {
	mu sync.Mutex

	producerSlot    *Frame
	pendingSlot     *Frame
	consumerSlot    *Frame
	pendingConsumed bool

	cbs Callbacks
}

// New creates an empty triple buffer.
func New() *Buffer {
	return &Buffer{pendingConsumed: true}
}

// SetConsumerCallbacks registers the consumer's notification callbacks.
// Must be called exactly once, before the producer offers any frame.
func (b *Buffer) SetConsumerCallbacks(cbs Callbacks) {
	b.mu.Lock()
	b.cbs = cbs
	b.mu.Unlock()
}

// Offer is called by the producer with a freshly decoded frame. Swaps it
// into pendingSlot, displacing whatever was there. If the displaced frame
// had already been observed by the consumer (pendingConsumed was true),
// this is new information and OnFrameAvailable fires; otherwise the
// consumer never got to it and OnFrameSkipped fires — a newly offered
// frame always overwrites an unconsumed one, favoring freshness over
// completeness for live display.
func (b *Buffer) Offer(frame *Frame) {
	b.producerSlot = frame

	b.mu.Lock()
	b.producerSlot, b.pendingSlot = b.pendingSlot, b.producerSlot
	wasConsumed := b.pendingConsumed
	b.pendingConsumed = false
	cbs := b.cbs
	b.mu.Unlock()

	if wasConsumed {
		if cbs.OnFrameAvailable != nil {
			cbs.OnFrameAvailable()
		}
	} else if cbs.OnFrameSkipped != nil {
		cbs.OnFrameSkipped()
	}
}

// Take is called by the consumer on receipt of an availability
// notification. Swaps pendingSlot into consumerSlot and returns a borrow
// of consumerSlot valid until the next Take call.
func (b *Buffer) Take() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pendingConsumed = true
	b.consumerSlot, b.pendingSlot = b.pendingSlot, b.consumerSlot
	return b.consumerSlot
}

// Interrupt unblocks any consumer waiting on an external notification
// mechanism. The buffer itself never blocks — Offer and Take both return
// immediately — so this is a no-op here; it exists for API parity with
// the decoder's interrupt path, which wakes a consumer parked on the
// host's event loop rather than on this buffer.
func (b *Buffer) Interrupt() {}
