package recorder

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/scrcore/internal/h264au"
)

// pipelineTimescale matches the pipeline's microsecond timebase exactly,
// so pts/dts/duration values carry through to fMP4 sample fields without
// any rescale arithmetic.
const pipelineTimescale = 1_000_000

const videoTrackID = 1

// MP4Muxer writes a single H.264 video track as fragmented MP4: one init
// segment followed by one fmp4.Part fragment per packet, all to a single
// file. Grounded on the fMP4 init/fragment construction in
// fmp4_muxer.go's writeInit/writeFragment, trimmed to one video-only
// track with no audio.
type MP4Muxer struct {
	path    string
	comment string

	file          *os.File
	width, height int

	sequenceNumber uint32
	baseTime       uint64
}

// NewMP4Muxer creates an MP4 muxer writing to path. comment is kept on
// the muxer but is neither written to the file nor logged: mediacommon's
// fmp4.Init has no free-text segment-comment field to carry it in
// container metadata (unlike libavformat's AVFormatContext.metadata).
func NewMP4Muxer(path, comment string) *MP4Muxer {
	return &MP4Muxer{path: path, comment: comment}
}

func (m *MP4Muxer) Open(width, height int) error {
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("recorder: mp4: open output: %w", err)
	}
	m.file = f
	m.width, m.height = width, height
	return nil
}

func (m *MP4Muxer) WriteHeader(extradata []byte) error {
	nalus := h264au.SplitNALUs(extradata)
	sps := h264au.ExtractSPS(nalus)
	pps := h264au.ExtractPPS(nalus)
	if sps == nil || pps == nil {
		return fmt.Errorf("recorder: mp4: config packet carries no SPS/PPS")
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{
				ID:        videoTrackID,
				TimeScale: pipelineTimescale,
				Codec:     &mp4.CodecH264{SPS: sps, PPS: pps},
			},
		},
	}

	var buf bytes.Buffer
	if err := init.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return fmt.Errorf("recorder: mp4: marshal init segment: %w", err)
	}
	if _, err := m.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("recorder: mp4: write init segment: %w", err)
	}
	return nil
}

func (m *MP4Muxer) WritePacket(pts, dts, duration int64, data []byte, keyframe bool) error {
	sample := &fmp4.Sample{
		Duration:        uint32(duration),
		PTSOffset:       int32(pts - dts),
		IsNonSyncSample: !keyframe,
	}
	if err := sample.FillH264(sample.PTSOffset, h264au.SplitNALUs(data)); err != nil {
		return fmt.Errorf("recorder: mp4: fill sample: %w", err)
	}

	part := &fmp4.Part{
		SequenceNumber: m.sequenceNumber,
		Tracks: []*fmp4.PartTrack{
			{ID: videoTrackID, BaseTime: m.baseTime, Samples: []*fmp4.Sample{sample}},
		},
	}
	m.sequenceNumber++
	m.baseTime += uint64(duration)

	var buf bytes.Buffer
	if err := part.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return fmt.Errorf("recorder: mp4: marshal fragment: %w", err)
	}
	if _, err := m.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("recorder: mp4: write fragment: %w", err)
	}
	return nil
}

// WriteTrailer is a no-op: a fragmented MP4 written as a sequence of
// moof/mdat fragments has no trailing box to finalize, unlike a
// progressive MP4's trailing moov.
func (m *MP4Muxer) WriteTrailer() error {
	return nil
}

func (m *MP4Muxer) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// seekableBuffer adapts a bytes.Buffer to io.WriteSeeker, which
// fmp4.Init.Marshal and fmp4.Part.Marshal require to backpatch box sizes.
// Grounded on fmp4_muxer.go's seekableBuffer.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.Buffer.Len() {
		s.Buffer.Write(make([]byte, int(s.pos)-s.Buffer.Len()))
	}

	if int(s.pos) == s.Buffer.Len() {
		n, err := s.Buffer.Write(p)
		s.pos += int64(n)
		return n, err
	}

	b := s.Buffer.Bytes()
	n := copy(b[s.pos:], p)
	if n < len(p) {
		m, err := s.Buffer.Write(p[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	s.pos += int64(n)
	return n, nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("recorder: mp4: invalid seek whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("recorder: mp4: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}
