package codec

import "fmt"

// Caps is the negotiated description of a stream, as handed over by the host
// pipeline. Zero values mean "not present".
type Caps struct {
	MediaType string
	Width     int
	Height    int
	Rate      FrameRate
	// PixelFormat is the raw layout for encoder input ("NV12", "I420").
	PixelFormat string
}

// Decoder input limits.
const (
	DecodeMinWidth  = 48
	DecodeMaxWidth  = 720
	DecodeMinHeight = 48
	// DecodeMaxHeight25 applies to streams at up to 25 fps (PAL class).
	DecodeMaxHeight25 = 576
	// DecodeMaxHeight30 applies to streams above 25 and up to 30 fps (NTSC class).
	DecodeMaxHeight30 = 480
	DecodeMaxFPS      = 30
)

// Encoder input limits.
const (
	EncodeMinSize = 16
	EncodeMaxSize = 720
	EncodeMaxFPS  = 30
)

// DecodeGeometry validates decoder caps and returns the session geometry and
// format. Failures wrap ErrNotNegotiated or ErrUnsupportedFormat.
func DecodeGeometry(c Caps) (Geometry, Format, error) {
	format, err := FormatForMediaType(c.MediaType)
	if err != nil {
		return Geometry{}, FormatUnknown, err
	}
	if !c.Rate.Valid() {
		return Geometry{}, FormatUnknown, fmt.Errorf("codec: missing framerate in caps: %w", ErrNotNegotiated)
	}
	if c.Width < DecodeMinWidth || c.Width > DecodeMaxWidth {
		return Geometry{}, FormatUnknown, fmt.Errorf("codec: width %d outside [%d,%d]: %w",
			c.Width, DecodeMinWidth, DecodeMaxWidth, ErrNotNegotiated)
	}

	// fps compared as Num <= max*Den to stay in integers
	maxHeight := 0
	switch {
	case c.Rate.Num <= 25*c.Rate.Den:
		maxHeight = DecodeMaxHeight25
	case c.Rate.Num <= DecodeMaxFPS*c.Rate.Den:
		maxHeight = DecodeMaxHeight30
	default:
		return Geometry{}, FormatUnknown, fmt.Errorf("codec: framerate %s above %d fps: %w",
			c.Rate, DecodeMaxFPS, ErrNotNegotiated)
	}
	if c.Height < DecodeMinHeight || c.Height > maxHeight {
		return Geometry{}, FormatUnknown, fmt.Errorf("codec: height %d outside [%d,%d] at %s fps: %w",
			c.Height, DecodeMinHeight, maxHeight, c.Rate, ErrNotNegotiated)
	}

	return Geometry{Width: c.Width, Height: c.Height, Rate: c.Rate}, format, nil
}

// ValidateEncodeGeometry checks the raw input geometry accepted by the encoder.
// A frame rate is required since output timestamps derive from it.
func ValidateEncodeGeometry(g Geometry) error {
	if g.Width < EncodeMinSize || g.Width > EncodeMaxSize {
		return fmt.Errorf("codec: width %d outside [%d,%d]: %w", g.Width, EncodeMinSize, EncodeMaxSize, ErrNotNegotiated)
	}
	if g.Height < EncodeMinSize || g.Height > EncodeMaxSize {
		return fmt.Errorf("codec: height %d outside [%d,%d]: %w", g.Height, EncodeMinSize, EncodeMaxSize, ErrNotNegotiated)
	}
	if g.Width%2 != 0 || g.Height%2 != 0 {
		return fmt.Errorf("codec: %dx%d is not 4:2:0 aligned: %w", g.Width, g.Height, ErrNotNegotiated)
	}
	if !g.Rate.Valid() {
		return fmt.Errorf("codec: missing framerate: %w", ErrNotNegotiated)
	}
	if g.Rate.Num > EncodeMaxFPS*g.Rate.Den {
		return fmt.Errorf("codec: framerate %s above %d fps: %w", g.Rate, EncodeMaxFPS, ErrNotNegotiated)
	}
	return nil
}
