package codec

import "time"

// Picture is one decoded 4:2:0 frame as produced by the hardware decoder.
// Chroma is semi-planar (CbCr interleaved). The slices are only valid for the
// duration of the FrameHandler call.
type Picture struct {
	Index  int
	Width  int
	Height int
	Luma   []byte
	Chroma []byte
}

// FrameHandler receives decoded pictures synchronously from Decoder.Decode.
// A non-nil error stops the current Decode call and is returned from it.
type FrameHandler func(Picture) error

// Decoder is the hardware decoder collaborator. Decode consumes a prefix of
// data and reports how many bytes it took; the remainder is never resubmitted.
type Decoder interface {
	SetFrameHandler(FrameHandler)
	Decode(data []byte) (consumed int, err error)
	// Finalize flushes pictures still held by the decoder.
	Finalize() error
	// FrameCount is the number of pictures handed to the FrameHandler so far.
	FrameCount() int
	Close() error
}

// DecoderFactory opens a decoder for a fixed format and geometry.
type DecoderFactory func(Format, Geometry) (Decoder, error)

// Display is the output device collaborator. Show blocks until the picture is
// on screen.
type Display interface {
	Configure(src Geometry) error
	Show(Picture) error
	Close() error
}

// FramePair is one raw frame split into its luma and chroma planes, chroma
// already in the layout the encoder expects.
type FramePair struct {
	Luma   []byte
	Chroma []byte
	// Timestamp of the raw input, informational only.
	Timestamp time.Duration
}

// EncoderIO is what the encoder loop pulls input from and pushes output to.
type EncoderIO interface {
	// ProvideInput blocks until the next pair is ready. ok=false ends the run.
	ProvideInput() (pair FramePair, ok bool)
	// WriteOutput hands over one encoded unit. A non-nil error stops the run.
	WriteOutput(data []byte) error
}

// EncoderParams is the per-session configuration handed to the hardware encoder.
type EncoderParams struct {
	Format   Format
	Geometry Geometry
	Chroma   ChromaLayout
	// FrameRateX10 is the frame rate in tenths of a frame per second.
	FrameRateX10 int
	Bitrate      int
	// IFrameInterval is the distance between intra frames, in frames.
	IFrameInterval int
	// FrameNumResolution and FrameNumStep drive the codec's frame-number field.
	FrameNumResolution int
	FrameNumStep       int
}

// Encoder is the hardware encoder collaborator. Run blocks for the whole
// session and returns when ProvideInput reports the end of input.
type Encoder interface {
	Run(EncoderIO) error
	Close() error
}

// EncoderFactory opens an encoder session.
type EncoderFactory func(EncoderParams) (Encoder, error)

// OutputFormat is announced downstream before the first encoded unit.
type OutputFormat struct {
	Format Format
	Width  int
	Height int
	Rate   FrameRate
}

// EncodedUnit is one unit of compressed output with deterministic timing.
type EncodedUnit struct {
	Index     int
	Data      []byte
	Timestamp time.Duration
	Duration  time.Duration
}

// Downstream consumes encoder output.
type Downstream interface {
	SetFormat(OutputFormat) error
	Push(EncodedUnit) error
	EndOfStream() error
}
