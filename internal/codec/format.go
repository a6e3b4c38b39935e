package codec

import (
	"fmt"
	"strings"
)

// Format identifies the compressed stream format handled by the hardware codec.
type Format int

const (
	// FormatUnknown is the zero value; never accepted by a session.
	FormatUnknown Format = iota
	// FormatH264 is an H.264/AVC elementary stream.
	FormatH264
	// FormatMPEG4 is an MPEG-4 Part 2 elementary stream (DivX/XviD included).
	FormatMPEG4
)

// String returns the short name used in logs and control files.
func (f Format) String() string {
	switch f {
	case FormatH264:
		return "h264"
	case FormatMPEG4:
		return "mpeg4"
	default:
		return "unknown"
	}
}

// MediaType returns the media type announced downstream for encoded output.
func (f Format) MediaType() string {
	switch f {
	case FormatH264:
		return "video/x-h264"
	case FormatMPEG4:
		return "video/mpeg"
	default:
		return ""
	}
}

// ParseFormat accepts the control-file spelling of a format ("h264", "H.264",
// "mpeg4", "MPEG-4").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.NewReplacer(".", "", "-", "", "_", "").Replace(strings.TrimSpace(s))) {
	case "h264", "avc":
		return FormatH264, nil
	case "mpeg4", "mp4v", "divx", "xvid":
		return FormatMPEG4, nil
	default:
		return FormatUnknown, fmt.Errorf("codec: format %q: %w", s, ErrUnsupportedFormat)
	}
}

// FormatForMediaType maps an input media type to the decoder format.
//
// Accepted aliases:
//   - video/x-h264 → H.264
//   - video/mpeg, video/x-divx, video/x-xvid, video/x-gst-fourcc-libx → MPEG-4
func FormatForMediaType(mediaType string) (Format, error) {
	switch mediaType {
	case "video/x-h264":
		return FormatH264, nil
	case "video/mpeg", "video/x-divx", "video/x-xvid", "video/x-gst-fourcc-libx":
		return FormatMPEG4, nil
	default:
		return FormatUnknown, fmt.Errorf("codec: media type %q: %w", mediaType, ErrUnsupportedFormat)
	}
}

// ChromaLayout describes how the encoder expects the chroma plane.
type ChromaLayout int

const (
	// ChromaInterleaved means CbCrCbCr… (semi-planar). Planar input is reformatted.
	ChromaInterleaved ChromaLayout = iota
	// ChromaPlanar means the Cb block followed by the Cr block, copied verbatim.
	ChromaPlanar
)

func (c ChromaLayout) String() string {
	if c == ChromaPlanar {
		return "planar"
	}
	return "interleaved"
}
