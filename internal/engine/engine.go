// Package engine implements the stream engine: the single reader
// goroutine that owns the capture socket, dispatches encoded access units
// to the decoder and recorder sinks, and posts STREAM_STOPPED when it
// exits.
package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/scrcore/internal/eventbus"
	"github.com/jmylchreest/scrcore/internal/h264au"
	"github.com/jmylchreest/scrcore/internal/observability"
	"github.com/jmylchreest/scrcore/internal/packet"
	"github.com/jmylchreest/scrcore/internal/wire"
)

// Errors returned by Start.
var (
	ErrAlreadyStarted   = errors.New("engine: already started")
	ErrDecoderOpenFail  = errors.New("engine: decoder open failed")
	ErrRecorderOpenFail = errors.New("engine: recorder open failed")
)

// Config configures an Engine.
type Config struct {
	// Codec names the codec the sinks are opened with. The core carries
	// only H.264; this is passed through uninterpreted.
	Codec string

	Logger *slog.Logger
	Bus    *eventbus.Bus
}

// Stats is a snapshot of engine counters, safe to read concurrently with
// a running engine.
type Stats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	Errors          uint64
}

// Engine owns the capture socket connection and drives the single stream
// thread described in spec §4.5 / §5. It holds zero, one, or two packet
// sinks (decoder, recorder) behind the packet.Sink capability interface.
type Engine struct {
	conn     io.ReadCloser
	decoder  packet.Sink
	recorder packet.Sink
	cfg      Config
	logger   *slog.Logger

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	errorCount      atomic.Uint64

	started atomic.Bool
	done    chan struct{}
}

// New creates an engine reading from conn. decoder and/or recorder may be
// nil, matching spec §6's "zero, one, or two such sinks".
func New(conn io.ReadCloser, decoder, recorder packet.Sink, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = eventbus.New()
	}
	sessionID := uuid.New().String()
	return &Engine{
		conn:     conn,
		decoder:  decoder,
		recorder: recorder,
		cfg:      cfg,
		logger:   observability.WithComponent(cfg.Logger, "engine").With(slog.String("session_id", sessionID)),
	}
}

// Start opens the attached sinks and spawns the stream thread. Opening
// both sinks concurrently shaves the codec-negotiation latency a fully
// sequential open would pay; correctness doesn't depend on the order,
// only on both having opened (or neither having been left half-open) by
// the time the first packet is read.
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var g errgroup.Group
	if e.decoder != nil {
		g.Go(func() error {
			if !e.decoder.Open(e.cfg.Codec) {
				return ErrDecoderOpenFail
			}
			return nil
		})
	}
	if e.recorder != nil {
		g.Go(func() error {
			if !e.recorder.Open(e.cfg.Codec) {
				return ErrRecorderOpenFail
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.closeSinks()
		e.started.Store(false)
		observability.WithError(e.logger, err).Error("engine start failed")
		return err
	}

	e.done = make(chan struct{})
	go e.run()
	return nil
}

// Stop unblocks a consumer parked on the decoder's video buffer, if one
// is attached. The stream thread itself terminates naturally once the
// peer or the caller closes the underlying socket; Stop does not close
// conn — that responsibility stays with whoever owns the listener.
func (e *Engine) Stop() {
	if interrupter, ok := e.decoder.(interface{ Interrupt() }); ok {
		interrupter.Interrupt()
	}
}

// Join blocks until the stream thread has exited and cleanup has run.
func (e *Engine) Join() {
	if e.done != nil {
		<-e.done
	}
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		PacketsReceived: e.packetsReceived.Load(),
		BytesReceived:   e.bytesReceived.Load(),
		Errors:          e.errorCount.Load(),
	}
}

// run is the stream thread: recv_packet + parse-and-dispatch, looping
// until end-of-stream, a read error, or a sink failure, then cleaning up
// in reverse construction order and posting STREAM_STOPPED.
func (e *Engine) run() {
	defer close(e.done)
	defer e.cleanup()

	for {
		hdr, err := wire.ReadMetaHeader(e.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("stream ended: peer closed connection")
			} else {
				e.errorCount.Add(1)
				observability.WithError(e.logger, err).Warn("stream ended: meta-header read error")
			}
			return
		}

		payload, err := wire.ReadPayload(e.conn, hdr)
		if err != nil {
			e.errorCount.Add(1)
			observability.WithError(e.logger, err).Warn("stream ended: payload read error")
			return
		}

		e.packetsReceived.Add(1)
		e.bytesReceived.Add(uint64(len(payload)))

		if !e.dispatch(hdr, payload) {
			return
		}
	}
}

// dispatch splits one wire payload into access units and pushes each to
// the attached sinks, all sharing the meta-header's timestamp (a single
// payload may contain more than one complete coded picture). Returns
// false if any sink push fails, which is fatal for the stream per spec
// §7.
func (e *Engine) dispatch(hdr wire.MetaHeader, payload []byte) bool {
	nalus := h264au.SplitNALUs(payload)
	units := h264au.GroupAccessUnits(nalus)

	for _, au := range units {
		data, err := h264au.Flatten(au)
		if err != nil {
			e.errorCount.Add(1)
			observability.WithError(e.logger, err).Error("stream ended: access unit flatten failed")
			return false
		}

		pkt := packet.Packet{
			Data:     data,
			HasPTS:   hdr.HasPTS,
			PTS:      int64(hdr.PTS),
			DTS:      int64(hdr.PTS), // dts = pts unconditionally; no B-frame reordering is represented
			Keyframe: au.Keyframe,
		}

		if e.decoder != nil && !e.decoder.Push(pkt) {
			e.errorCount.Add(1)
			e.logger.Error("stream ended: decoder push failed")
			return false
		}
		if e.recorder != nil && !e.recorder.Push(pkt) {
			e.errorCount.Add(1)
			e.logger.Error("stream ended: recorder push failed")
			return false
		}
	}
	return true
}

// cleanup releases sinks in reverse construction order and posts
// STREAM_STOPPED exactly once, per spec §4.5 step 6 / §7.
func (e *Engine) cleanup() {
	e.closeSinks()
	e.cfg.Bus.Publish(eventbus.Event{Kind: eventbus.StreamStopped})
}

// closeSinks closes the recorder then the decoder, the reverse of the
// open order in Start, and is idempotent: both sinks' Close() methods are
// no-ops if their corresponding Open never succeeded.
func (e *Engine) closeSinks() {
	if e.recorder != nil {
		e.recorder.Close()
	}
	if e.decoder != nil {
		e.decoder.Close()
	}
}
