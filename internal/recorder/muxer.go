// Package recorder implements the recorder sink: a background goroutine
// that serializes packets into a container file, inferring each packet's
// duration by looking one packet ahead.
package recorder

// Muxer is the container-writer abstraction the recorder drives. It
// mirrors libavformat's alloc/write-header/write-frame/write-trailer/close
// lifecycle: Open allocates the output context and declares the single
// video stream, but writes nothing to disk yet — the header is written
// separately, once the recorder has the first (config) packet's bytes to
// use as extradata.
type Muxer interface {
	// Open allocates the output file and records the declared frame size
	// for container metadata. The declared size may differ from the
	// dimensions of decoded pictures; it is never validated against them.
	Open(width, height int) error

	// WriteHeader writes the container header. extradata is the first
	// packet's raw bytes verbatim (a config packet, carrying SPS/PPS for
	// H.264) and is never itself emitted as a frame.
	WriteHeader(extradata []byte) error

	// WritePacket writes one timestamped frame. pts, dts and duration are
	// in the pipeline timebase (microseconds, 1/1,000,000s); the muxer is
	// responsible for rescaling into its own stream timebase.
	WritePacket(pts, dts, duration int64, data []byte, keyframe bool) error

	// WriteTrailer finalizes the container. For formats with no trailer
	// structure this is a no-op.
	WriteTrailer() error

	// Close releases the output file and any format-specific resources.
	// Safe to call even if Open was never called or failed.
	Close() error
}

// NewMuxer resolves a Muxer by container format name, the way a real
// muxer is looked up from the underlying multimedia library by its short
// name (e.g. avformat_alloc_output_context2's format_name argument).
// Exactly two names are recognized: "mp4" and "matroska".
func NewMuxer(format, path string, comment string) (Muxer, error) {
	switch format {
	case "mp4":
		return NewMP4Muxer(path, comment), nil
	case "matroska":
		return NewMKVMuxer(path, comment), nil
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

// UnsupportedFormatError reports a recorder format name that is not
// "mp4" or "matroska".
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return "recorder: unsupported container format " + e.Format
}
