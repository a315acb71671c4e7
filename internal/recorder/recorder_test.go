package recorder

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/scrcore/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMuxer records every call it receives so tests can assert on the
// write policy and duration inference without touching a real container
// library.
type fakeMuxer struct {
	mu sync.Mutex

	openErr       error
	headerErr     error
	writePacketErr error
	trailerErr    error

	opened        bool
	headerBytes   []byte
	packets       []writtenPacket
	trailerWritten bool
	closed        bool
}

type writtenPacket struct {
	pts, dts, duration int64
	data               []byte
	keyframe           bool
}

func (f *fakeMuxer) Open(width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeMuxer) WriteHeader(extradata []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headerErr != nil {
		return f.headerErr
	}
	f.headerBytes = append([]byte{}, extradata...)
	return nil
}

func (f *fakeMuxer) WritePacket(pts, dts, duration int64, data []byte, keyframe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writePacketErr != nil {
		return f.writePacketErr
	}
	f.packets = append(f.packets, writtenPacket{pts, dts, duration, append([]byte{}, data...), keyframe})
	return nil
}

func (f *fakeMuxer) WriteTrailer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trailerErr != nil {
		return f.trailerErr
	}
	f.trailerWritten = true
	return nil
}

func (f *fakeMuxer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMuxer) snapshot() ([]byte, []writtenPacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headerBytes, append([]writtenPacket{}, f.packets...), f.trailerWritten
}

func newTestSink(t *testing.T, m *fakeMuxer) *Sink {
	t.Helper()
	s := &Sink{muxer: m, width: 640, height: 480}
	s.cond = sync.NewCond(&s.mu)
	s.logger = discardLogger()
	return s
}

// waitUntil polls until cond reports true or the one-second timeout
// elapses.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// TestS1_SingleFrameRecording covers scenario S1: config packet, then one
// timestamped packet, then clean shutdown. The config packet becomes
// extradata (not a frame); the data packet is written with the 100ms
// tail duration since it has no successor.
func TestS1_SingleFrameRecording(t *testing.T) {
	m := &fakeMuxer{}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	config := []byte{0xC0, 0xC1, 0xC2, 0xC3, 0xC4, 0xC5, 0xC6}
	require.True(t, s.Push(packet.Packet{Data: config, HasPTS: false}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0xF0, 0xF1, 0xF2, 0xF3, 0xF4}, HasPTS: true, PTS: 1_000_000}))

	s.Close()

	header, packets, trailer := m.snapshot()
	assert.Equal(t, config, header)
	require.Len(t, packets, 1)
	assert.Equal(t, int64(1_000_000), packets[0].pts)
	assert.Equal(t, int64(100_000), packets[0].duration)
	assert.True(t, trailer)
	assert.False(t, s.Failed())
}

// TestS2_TwoFrameDurationInference covers scenario S2: the first data
// packet's duration is inferred from the second's pts; the second (and
// final) packet gets the 100ms tail duration.
func TestS2_TwoFrameDurationInference(t *testing.T) {
	m := &fakeMuxer{}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	require.True(t, s.Push(packet.Packet{Data: []byte{0x01}, HasPTS: false}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0x02}, HasPTS: true, PTS: 1_000_000}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0x03}, HasPTS: true, PTS: 1_040_000}))

	s.Close()

	_, packets, _ := m.snapshot()
	require.Len(t, packets, 2)
	assert.Equal(t, int64(40_000), packets[0].duration)
	assert.Equal(t, int64(100_000), packets[1].duration)
}

// TestS4_ProtocolViolation covers scenario S4: the first packet ever
// written carries a timestamp instead of being a config packet. The
// write fails, the recorder enters the failed state, and any further
// push is rejected.
func TestS4_ProtocolViolation(t *testing.T) {
	m := &fakeMuxer{}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	require.True(t, s.Push(packet.Packet{Data: []byte{0x01}, HasPTS: true, PTS: 1}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0x02}, HasPTS: true, PTS: 2}))

	waitUntil(t, s.Failed)

	assert.False(t, s.Push(packet.Packet{Data: []byte{0x03}, HasPTS: true, PTS: 3}))
	s.Close()

	_, packets, trailer := m.snapshot()
	assert.Empty(t, packets)
	assert.False(t, trailer)
}

// TestS5_GracefulMidStreamClose covers scenario S5: N timestamped packets
// after the config packet, then a clean close. The config packet becomes
// extradata, so the file ends up with exactly N frames: N-1 written as
// each successor arrives, plus the carry drain for the very last one with
// the 100ms tail duration.
func TestS5_GracefulMidStreamClose(t *testing.T) {
	m := &fakeMuxer{}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	require.True(t, s.Push(packet.Packet{Data: []byte{0x00}, HasPTS: false}))
	const n = 4
	for i := 0; i < n; i++ {
		require.True(t, s.Push(packet.Packet{Data: []byte{byte(i)}, HasPTS: true, PTS: int64(i+1) * 1_000_000}))
	}

	s.Close()

	_, packets, trailer := m.snapshot()
	assert.Len(t, packets, n)
	assert.Equal(t, int64(100_000), packets[n-1].duration)
	assert.True(t, trailer)
}

// TestPush_AfterFailed_ReturnsFalse exercises the push contract directly:
// once failed, push must return false without enqueuing.
func TestPush_AfterFailed_ReturnsFalse(t *testing.T) {
	m := &fakeMuxer{}
	s := newTestSink(t, m)
	s.failed = true
	assert.False(t, s.Push(packet.Packet{Data: []byte{0x01}, HasPTS: true}))
}

func TestOpen_MuxerOpenFailure(t *testing.T) {
	m := &fakeMuxer{openErr: errors.New("disk full")}
	s := newTestSink(t, m)
	assert.False(t, s.Open("h264"))
}

func TestHeaderWriteFailure_FailsRecording(t *testing.T) {
	m := &fakeMuxer{headerErr: errors.New("write error")}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	require.True(t, s.Push(packet.Packet{Data: []byte{0x00}, HasPTS: false}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0x01}, HasPTS: true, PTS: 1}))

	waitUntil(t, s.Failed)
	s.Close()
}

func TestTrailerWriteFailure_MarksFailed(t *testing.T) {
	m := &fakeMuxer{trailerErr: errors.New("flush error")}
	s := newTestSink(t, m)
	require.True(t, s.Open("h264"))

	require.True(t, s.Push(packet.Packet{Data: []byte{0x00}, HasPTS: false}))
	require.True(t, s.Push(packet.Packet{Data: []byte{0x01}, HasPTS: true, PTS: 1}))

	s.Close()
	assert.True(t, s.Failed())
}
