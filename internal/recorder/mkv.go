package recorder

import (
	"fmt"
	"os"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"github.com/jmylchreest/scrcore/internal/h264au"
)

// MKVMuxer writes a single H.264 video track as Matroska, via at-wat's
// SimpleBlockWriter. Grounded on babelcloud-gbox's webm_muxer.go, trimmed
// to video-only (dropping its Opus audio track, out of scope here) and
// parameterized on the recorder's declared width/height instead of a
// fixed 1920x1080 default.
type MKVMuxer struct {
	path    string
	comment string

	file          *os.File
	width, height int

	writer    webm.BlockWriteCloser
	extradata []byte
}

// NewMKVMuxer creates a Matroska muxer writing to path. As with
// NewMP4Muxer, comment is kept on the muxer but is neither embedded in
// the file nor logged: the teacher's
// webm_muxer.go configures only per-track Name/CodecID/Video fields, never
// a segment-level comment, and ebml-go's SimpleBlockWriter exposes no
// such option in the pack's usage.
func NewMKVMuxer(path, comment string) *MKVMuxer {
	return &MKVMuxer{path: path, comment: comment}
}

func (m *MKVMuxer) Open(width, height int) error {
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("recorder: mkv: open output: %w", err)
	}
	m.file = f
	m.width, m.height = width, height
	return nil
}

func (m *MKVMuxer) WriteHeader(extradata []byte) error {
	nalus := h264au.SplitNALUs(extradata)
	if h264au.ExtractSPS(nalus) == nil || h264au.ExtractPPS(nalus) == nil {
		return fmt.Errorf("recorder: mkv: config packet carries no SPS/PPS")
	}

	writers, err := webm.NewSimpleBlockWriter(m.file, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     videoTrackID,
			TrackUID:        videoTrackID,
			CodecID:         "V_MPEG4/ISO/AVC",
			TrackType:       1,
			DefaultDuration: 33333333,
			Video: &webm.Video{
				PixelWidth:  uint64(m.width),
				PixelHeight: uint64(m.height),
			},
		},
	}, mkvcore.WithOnFatalHandler(func(error) {}))
	if err != nil {
		return fmt.Errorf("recorder: mkv: init block writer: %w", err)
	}

	m.writer = writers[0]
	// The container carries no separate CodecPrivate/avcC box in this
	// writer's usage (ground truth: webm_muxer.go writes H.264 data
	// directly in Annex B), so SPS/PPS ride along inline on the next
	// keyframe instead.
	m.extradata = extradata
	return nil
}

func (m *MKVMuxer) WritePacket(pts, dts, duration int64, data []byte, keyframe bool) error {
	if m.writer == nil {
		return fmt.Errorf("recorder: mkv: write before header")
	}

	payload := data
	if keyframe && len(m.extradata) > 0 {
		payload = append(append([]byte{}, m.extradata...), data...)
		m.extradata = nil
	}

	ns := pts * 1000 // pipeline timebase is microseconds; Matroska blocks use nanoseconds
	if _, err := m.writer.Write(keyframe, ns, payload); err != nil {
		return fmt.Errorf("recorder: mkv: write block: %w", err)
	}
	return nil
}

// WriteTrailer closes the block writer, which finalizes cues and the
// segment size element. Matroska has no separate trailer box: closing the
// writer is the trailer write.
func (m *MKVMuxer) WriteTrailer() error {
	if m.writer == nil {
		return nil
	}
	err := m.writer.Close()
	m.writer = nil
	if err != nil {
		return fmt.Errorf("recorder: mkv: finalize segment: %w", err)
	}
	return nil
}

func (m *MKVMuxer) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}
