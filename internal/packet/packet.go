// Package packet defines the encoded-packet type shared by the decoder
// and recorder sinks, and the packet-sink capability they both implement.
package packet

// Packet is an opaque H.264 access unit plus its timing metadata. The
// first packet of a stream is a config packet carrying codec extradata
// (SPS/PPS) and has no timestamp; every packet after it carries one.
type Packet struct {
	Data []byte

	// HasPTS is false for config packets: the pipeline timebase is
	// microseconds (1/1,000,000s); PTS/DTS are only meaningful when true.
	HasPTS bool
	PTS    int64
	DTS    int64

	// Duration is filled in by the recorder once the following packet's
	// PTS is known (spec §4.4 "duration by lookahead"); zero until then.
	Duration int64

	Keyframe bool
}

// Config reports whether this is a config packet: the first packet of a
// stream, carrying codec extradata and no timestamp.
func (p Packet) Config() bool {
	return !p.HasPTS
}

// Clone returns an independent copy of p, duplicating the backing byte
// slice. The recorder queue stores clones so the stream thread's buffer
// can be reused or released immediately after dispatch.
func (p Packet) Clone() Packet {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	p.Data = data
	return p
}

// Sink is the packet-sink capability: any collaborator that wants to
// receive packets from the stream engine implements these three
// operations. The decoder and recorder are its two concrete
// implementations; the stream engine holds zero, one, or two sinks and
// never distinguishes them beyond this interface.
type Sink interface {
	// Open allocates whatever the sink needs to receive packets encoded
	// with codec (currently always "h264"). Returns false on failure.
	Open(codec string) bool
	// Close releases everything Open allocated. Always safe to call,
	// even if Open was never called or failed.
	Close()
	// Push submits one packet. Returns false only on a fatal error that
	// should terminate the stream.
	Push(pkt Packet) bool
}
