package shvideo

import (
	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/decode"
	"github.com/e7canasta/shvideo/internal/encode"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/notify"
	"github.com/e7canasta/shvideo/internal/pacing"
)

// Re-exported from internal packages; see there for full documentation.
type (
	Unit         = cell.Unit
	Caps         = codec.Caps
	Format       = codec.Format
	FrameRate    = codec.FrameRate
	Geometry     = codec.Geometry
	Picture      = codec.Picture
	FramePair    = codec.FramePair
	EncodedUnit  = codec.EncodedUnit
	OutputFormat = codec.OutputFormat
	Severity     = codec.Severity

	Decoder        = codec.Decoder
	DecoderFactory = codec.DecoderFactory
	Encoder        = codec.Encoder
	EncoderIO      = codec.EncoderIO
	EncoderParams  = codec.EncoderParams
	EncoderFactory = codec.EncoderFactory
	Display        = codec.Display
	Downstream     = codec.Downstream

	Clock    = pacing.Clock
	State    = lifecycle.State
	Event    = notify.Event
	Notifier = notify.Notifier

	DecodeSink   = decode.Sink
	DecodeConfig = decode.Config
	DecodeStats  = decode.Stats

	EncoderElement = encode.Element
	EncodeConfig   = encode.Config
	EncodeStats    = encode.Stats
)

// Formats.
const (
	FormatH264  = codec.FormatH264
	FormatMPEG4 = codec.FormatMPEG4
)

// NoTimestamp marks a unit without a presentation timestamp.
const NoTimestamp = cell.NoTimestamp

// Errors returned by both elements. Match with errors.Is.
var (
	ErrSessionOpen       = codec.ErrSessionOpen
	ErrNotNegotiated     = codec.ErrNotNegotiated
	ErrUnsupportedFormat = codec.ErrUnsupportedFormat
	ErrFrameSize         = codec.ErrFrameSize
	ErrClosed            = codec.ErrClosed
	ErrEndOfStream       = codec.ErrEndOfStream
	ErrStreaming         = codec.ErrStreaming
	ErrHardware          = codec.ErrHardware
)

// NewDecodeSink creates a decode sink. Decoders and Display are required.
func NewDecodeSink(cfg DecodeConfig) (*DecodeSink, error) {
	return decode.New(cfg)
}

// NewEncoder creates an encoder element. Encoders and Downstream are required.
func NewEncoder(cfg EncodeConfig) (*EncoderElement, error) {
	return encode.New(cfg)
}

// Classify returns the severity of an error from either element.
func Classify(err error) Severity {
	return codec.Classify(err)
}
