package recorder

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jmylchreest/scrcore/internal/observability"
	"github.com/jmylchreest/scrcore/internal/packet"
)

// tailDuration is the arbitrary duration (microseconds) assigned to the
// last packet of a cleanly ended recording, which has no successor to
// infer a real duration from.
const tailDuration int64 = 100_000

// errFirstPacketNotConfig is the protocol violation the write policy
// reports when the very first packet ever written carries a timestamp
// instead of being a config packet.
var errFirstPacketNotConfig = errors.New("recorder: first packet is not a config packet")

// Sink implements packet.Sink, the recorder side of the pipeline. Packets
// pushed from the stream thread are queued and written by a single
// background goroutine, which infers each packet's duration by holding it
// in a one-slot carry buffer until the next packet (or shutdown) reveals
// how long it lasted.
type Sink struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []packet.Packet

	stopped bool
	failed  bool

	muxer         Muxer
	headerWritten bool
	carry         *packet.Packet // recorder-goroutine-only, no lock needed

	width, height int
	format        string
	outputPath    string

	logger *slog.Logger
	done   chan struct{}
}

// New creates a recorder sink that writes to outputPath in the named
// container format ("mp4" or "matroska"), declaring width/height in the
// container's stream metadata regardless of actual decoded picture size.
func New(format, outputPath string, width, height int, comment string, logger *slog.Logger) (*Sink, error) {
	muxer, err := NewMuxer(format, outputPath, comment)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		muxer:      muxer,
		width:      width,
		height:     height,
		format:     format,
		outputPath: outputPath,
		logger:     observability.WithComponent(logger, "recorder"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Open allocates the output file and spawns the recorder goroutine. The
// container header itself is not written here — it is deferred until the
// first (config) packet arrives, so its bytes can be used as extradata.
func (s *Sink) Open(codec string) bool {
	if err := s.muxer.Open(s.width, s.height); err != nil {
		observability.WithError(s.logger, err).Error("recorder open failed")
		return false
	}
	s.done = make(chan struct{})
	go s.run()
	return true
}

// Push enqueues a packet for the recorder goroutine. It always clones the
// packet's bytes, since the caller may reuse pkt.Data after Push returns.
// Returns false only once the recorder has entered the failed state.
func (s *Sink) Push(pkt packet.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return false
	}
	s.queue = append(s.queue, pkt.Clone())
	s.cond.Signal()
	return true
}

// Close asks the recorder goroutine to drain its queue and exit, then
// waits for it to finish before releasing the output file.
func (s *Sink) Close() {
	s.mu.Lock()
	wasOpen := s.done != nil
	s.stopped = true
	s.cond.Signal()
	s.mu.Unlock()

	if wasOpen {
		<-s.done
	}
	if err := s.muxer.Close(); err != nil {
		observability.WithError(s.logger, err).Warn("recorder close failed")
	}
}

// run is the recorder goroutine's loop: it repeatedly dequeues one packet,
// holds it as the carry slot until the following packet (or shutdown)
// reveals its duration, then writes it.
func (s *Sink) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for !s.stopped && len(s.queue) == 0 {
			s.cond.Wait()
		}
		if s.stopped && len(s.queue) == 0 {
			s.mu.Unlock()
			s.drainCarry()
			break
		}
		rec := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		previous := s.carry
		s.carry = &rec
		if previous == nil {
			// The very first packet is always held, never written yet.
			continue
		}

		if previous.HasPTS && rec.HasPTS {
			previous.Duration = rec.PTS - previous.PTS
		}

		if err := s.write(*previous); err != nil {
			s.mu.Lock()
			s.failed = true
			s.queue = nil
			s.mu.Unlock()
			observability.WithError(s.logger, err).Error("recorder write failed")
			s.finalize()
			return
		}
	}

	s.finalize()
}

// drainCarry writes whatever packet remains in the carry slot on a clean
// shutdown, assigning it the arbitrary tail duration since no successor
// exists to infer a real one. A failure here is logged but does not mark
// the recording as failed: no later frame depends on this one.
func (s *Sink) drainCarry() {
	if s.carry == nil {
		return
	}
	pkt := *s.carry
	s.carry = nil

	if pkt.HasPTS {
		pkt.Duration = tailDuration
	}
	if err := s.write(pkt); err != nil {
		observability.WithError(s.logger, err).Warn("carry packet write failed on shutdown")
	}
}

// write applies the write policy: the first packet ever written must be a
// config packet and becomes the container's extradata rather than a
// frame; any later config packet is silently dropped; any timestamped
// packet is written as one frame.
func (s *Sink) write(pkt packet.Packet) error {
	if !s.headerWritten {
		if pkt.HasPTS {
			return errFirstPacketNotConfig
		}
		if err := s.muxer.WriteHeader(pkt.Data); err != nil {
			return err
		}
		s.headerWritten = true
		return nil
	}

	if !pkt.HasPTS {
		return nil
	}
	return s.muxer.WritePacket(pkt.PTS, pkt.DTS, pkt.Duration, pkt.Data, pkt.Keyframe)
}

// finalize writes the trailer (if a header was ever written) and logs the
// outcome. Called exactly once, whichever path the recorder loop exits
// through.
func (s *Sink) finalize() {
	switch {
	case s.failed:
		s.logger.Error("recording failed", "format", s.format, "path", s.outputPath)
		return
	case s.headerWritten:
		if err := s.muxer.WriteTrailer(); err != nil {
			s.failed = true
			observability.WithError(s.logger, err).Error("trailer write failed",
				"format", s.format, "path", s.outputPath)
			return
		}
		s.logger.Info("recording complete", "format", s.format, "path", s.outputPath)
	default:
		s.failed = true
		s.logger.Error("recording failed: no header ever written (empty file)",
			"format", s.format, "path", s.outputPath)
	}
}

// Failed reports whether the recorder has entered the failed state,
// e.g. for a host that wants to surface final status after Close.
func (s *Sink) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
