// Package decoder implements the decoder sink: it feeds compressed
// packets to an H.264 decoder and pushes decoded frames into the video
// buffer for the host's consumer thread. No pure-Go H.264 entropy decoder
// exists anywhere the rest of this module draws on, and the core never
// inspects pixels (spec §3) — so Sink owns only codec bookkeeping
// (declared dimensions from SPS) and defers actual picture reconstruction
// to an injected Backend. A production host supplies a cgo or hardware
// backend; New falls back to NullBackend when given a nil backend.
package decoder

import (
	"log/slog"

	"github.com/jmylchreest/scrcore/internal/h264au"
	"github.com/jmylchreest/scrcore/internal/observability"
	"github.com/jmylchreest/scrcore/internal/packet"
	"github.com/jmylchreest/scrcore/internal/videobuffer"
)

// Backend reconstructs pixel data from access units. TryDecode returns
// (frame, true, nil) when a picture was produced, (nil, false, nil) for
// scrcpy's "no frame yet, try again" signal — not an error — and a
// non-nil error only for a hard decoder failure, which is fatal for the
// pipeline per spec §4.3.
type Backend interface {
	Open(codec string, width, height int) error
	TryDecode(au h264au.AccessUnit) (*videobuffer.Frame, bool, error)
	Close()
}

// NullBackend extracts declared dimensions from SPS but performs no
// pixel reconstruction. Every access unit it is asked to decode comes
// back as "no frame yet" rather than an error, so a stream with a
// decoder sink attached but no real Backend runs to completion without
// ever delivering a frame to the video buffer — an explicit placeholder
// for the seam a real H.264 decoder plugs into.
type NullBackend struct{}

// Open always succeeds; NullBackend does no codec negotiation.
func (NullBackend) Open(string, int, int) error { return nil }

// TryDecode always reports "no frame yet".
func (NullBackend) TryDecode(h264au.AccessUnit) (*videobuffer.Frame, bool, error) {
	return nil, false, nil
}

// Close is a no-op.
func (NullBackend) Close() {}

// Sink implements packet.Sink, the decoder side of the pipeline.
type Sink struct {
	buffer  *videobuffer.Buffer
	backend Backend
	logger  *slog.Logger

	width, height int
	opened        bool
}

// New creates a decoder sink that offers decoded frames into buf. If
// backend is nil, NullBackend is used.
func New(buf *videobuffer.Buffer, backend Backend, logger *slog.Logger) *Sink {
	if backend == nil {
		backend = NullBackend{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		buffer:  buf,
		backend: backend,
		logger:  observability.WithComponent(logger, "decoder"),
	}
}

// Open allocates the backend decoder context bound to codec. Declared
// dimensions start at zero and are refined once an SPS arrives in a
// config packet.
func (s *Sink) Open(codec string) bool {
	if err := s.backend.Open(codec, 0, 0); err != nil {
		observability.WithError(s.logger, err).Error("decoder open failed")
		return false
	}
	s.opened = true
	return true
}

// Interrupt unblocks a consumer parked waiting on the video buffer this
// sink decodes into, e.g. so the host's stop path can wake it without
// waiting for a frame that may never arrive.
func (s *Sink) Interrupt() {
	s.buffer.Interrupt()
}

// Close releases the backend decoder context.
func (s *Sink) Close() {
	if !s.opened {
		return
	}
	s.backend.Close()
	s.opened = false
}

// Push submits one packet. Config packets (SPS/PPS, no timestamp) are
// inspected for declared dimensions but never offered to the video
// buffer. A "no frame yet, try again" result from the backend is not an
// error; any other backend error is fatal for the pipeline.
func (s *Sink) Push(pkt packet.Packet) bool {
	if !s.opened {
		return false
	}

	nalus := h264au.SplitNALUs(pkt.Data)

	if pkt.Config() {
		if sps := h264au.ExtractSPS(nalus); sps != nil {
			if w, h, err := h264au.Dimensions(sps); err == nil {
				s.width, s.height = w, h
			}
		}
		return true
	}

	units := h264au.GroupAccessUnits(nalus)
	for _, au := range units {
		frame, ok, err := s.backend.TryDecode(au)
		if err != nil {
			observability.WithError(s.logger, err).Error("decoder push failed")
			return false
		}
		if !ok {
			continue
		}
		if frame.Width == 0 {
			frame.Width = s.width
		}
		if frame.Height == 0 {
			frame.Height = s.height
		}
		s.buffer.Offer(frame)
	}
	return true
}
