package decoder

import (
	"errors"
	"testing"

	"github.com/jmylchreest/scrcore/internal/h264au"
	"github.com/jmylchreest/scrcore/internal/packet"
	"github.com/jmylchreest/scrcore/internal/videobuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

func TestOpen_NullBackendAlwaysSucceeds(t *testing.T) {
	s := New(videobuffer.New(), nil, nil)
	assert.True(t, s.Open("h264"))
}

func TestPush_BeforeOpen_Fails(t *testing.T) {
	s := New(videobuffer.New(), nil, nil)
	assert.False(t, s.Push(packet.Packet{Data: annexB([]byte{0x65, 0x88})}))
}

func TestPush_ConfigPacket_AlwaysAccepted(t *testing.T) {
	s := New(videobuffer.New(), nil, nil)
	require.True(t, s.Open("h264"))

	sps := []byte{0x67, 0x42, 0x00, 0x1f, 0x96, 0x54, 0x05, 0x01}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	ok := s.Push(packet.Packet{Data: annexB(sps, pps), HasPTS: false})
	assert.True(t, ok, "config packets are always accepted regardless of whether SPS parsing succeeds")
}

func TestPush_NullBackend_NeverOffersFrame(t *testing.T) {
	buf := videobuffer.New()
	var available int
	buf.SetConsumerCallbacks(videobuffer.Callbacks{
		OnFrameAvailable: func() { available++ },
	})

	s := New(buf, nil, nil)
	require.True(t, s.Open("h264"))

	idr := []byte{0x65, 0x88, 0x84, 0x00}
	ok := s.Push(packet.Packet{Data: annexB(idr), HasPTS: true, PTS: 1000})
	assert.True(t, ok)
	assert.Equal(t, 0, available, "NullBackend never produces a frame")
}

// fakeBackend decodes every access unit it sees into a frame immediately.
type fakeBackend struct {
	openErr   error
	decodeErr error
	closed    bool
}

func (f *fakeBackend) Open(codec string, width, height int) error { return f.openErr }

func (f *fakeBackend) TryDecode(au h264au.AccessUnit) (*videobuffer.Frame, bool, error) {
	if f.decodeErr != nil {
		return nil, false, f.decodeErr
	}
	return &videobuffer.Frame{}, true, nil
}

func (f *fakeBackend) Close() { f.closed = true }

func TestOpen_BackendFailure(t *testing.T) {
	s := New(videobuffer.New(), &fakeBackend{openErr: errors.New("boom")}, nil)
	assert.False(t, s.Open("h264"))
}

func TestPush_DecodeSuccess_OffersFrame(t *testing.T) {
	buf := videobuffer.New()
	var available int
	buf.SetConsumerCallbacks(videobuffer.Callbacks{
		OnFrameAvailable: func() { available++ },
	})

	backend := &fakeBackend{}
	s := New(buf, backend, nil)
	require.True(t, s.Open("h264"))

	idr := []byte{0x65, 0x88, 0x84, 0x00}
	ok := s.Push(packet.Packet{Data: annexB(idr), HasPTS: true, PTS: 500})
	require.True(t, ok)
	assert.Equal(t, 1, available)

	got := buf.Take()
	require.NotNil(t, got)
}

func TestPush_BackendError_IsFatal(t *testing.T) {
	backend := &fakeBackend{decodeErr: errors.New("hard failure")}
	s := New(videobuffer.New(), backend, nil)
	require.True(t, s.Open("h264"))

	idr := []byte{0x65, 0x88, 0x84, 0x00}
	ok := s.Push(packet.Packet{Data: annexB(idr), HasPTS: true})
	assert.False(t, ok)
}

func TestClose_ReleasesBackendOnlyIfOpened(t *testing.T) {
	backend := &fakeBackend{}
	s := New(videobuffer.New(), backend, nil)

	s.Close()
	assert.False(t, backend.closed, "Close before Open must not reach the backend")

	require.True(t, s.Open("h264"))
	s.Close()
	assert.True(t, backend.closed)
}
