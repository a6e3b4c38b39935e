package codec

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFormatForMediaType validates the accepted input media types and their aliases.
func TestFormatForMediaType(t *testing.T) {
	cases := map[string]Format{
		"video/x-h264":            FormatH264,
		"video/mpeg":              FormatMPEG4,
		"video/x-divx":            FormatMPEG4,
		"video/x-xvid":            FormatMPEG4,
		"video/x-gst-fourcc-libx": FormatMPEG4,
	}
	for mt, want := range cases {
		got, err := FormatForMediaType(mt)
		require.NoError(t, err, mt)
		assert.Equal(t, want, got, mt)
	}

	_, err := FormatForMediaType("video/x-vp8")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"h264", "H.264", "avc", " H264 "} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, FormatH264, f)
	}
	for _, s := range []string{"mpeg4", "MPEG-4", "divx"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, FormatMPEG4, f)
	}
	_, err := ParseFormat("hevc")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "video/x-h264", FormatH264.MediaType())
	assert.Equal(t, "unknown", FormatUnknown.String())
}

// TestFrameRate_FrameDuration checks the nominal inter-frame interval.
func TestFrameRate_FrameDuration(t *testing.T) {
	assert.Equal(t, 40*time.Millisecond, FrameRate{25, 1}.FrameDuration())
	assert.Equal(t, 33366666*time.Nanosecond, FrameRate{30000, 1001}.FrameDuration())
	assert.Equal(t, time.Duration(0), FrameRate{0, 1}.FrameDuration())

	r, err := ParseFrameRate("30000/1001")
	require.NoError(t, err)
	assert.Equal(t, FrameRate{30000, 1001}, r)

	r, err = ParseFrameRate("25")
	require.NoError(t, err)
	assert.Equal(t, FrameRate{25, 1}, r)

	_, err = ParseFrameRate("30/0")
	assert.Error(t, err)
	_, err = ParseFrameRate("fast")
	assert.Error(t, err)
}

func TestGeometry_Sizes(t *testing.T) {
	g := Geometry{Width: 320, Height: 240}
	assert.Equal(t, 76800, g.LumaSize())
	assert.Equal(t, 38400, g.ChromaSize())
	assert.Equal(t, 115200, g.FrameSize())
}

// TestDecodeGeometry_Ranges validates the height limit per frame-rate class.
func TestDecodeGeometry_Ranges(t *testing.T) {
	testCases := []struct {
		name string
		caps Caps
		ok   bool
	}{
		{"pal_max", Caps{MediaType: "video/x-h264", Width: 720, Height: 576, Rate: FrameRate{25, 1}}, true},
		{"ntsc_max", Caps{MediaType: "video/mpeg", Width: 720, Height: 480, Rate: FrameRate{30000, 1001}}, true},
		{"ntsc_too_tall", Caps{MediaType: "video/mpeg", Width: 720, Height: 576, Rate: FrameRate{30, 1}}, false},
		{"too_narrow", Caps{MediaType: "video/x-h264", Width: 32, Height: 240, Rate: FrameRate{25, 1}}, false},
		{"too_wide", Caps{MediaType: "video/x-h264", Width: 1280, Height: 480, Rate: FrameRate{25, 1}}, false},
		{"too_fast", Caps{MediaType: "video/x-h264", Width: 320, Height: 240, Rate: FrameRate{60, 1}}, false},
		{"no_rate", Caps{MediaType: "video/x-h264", Width: 320, Height: 240}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, f, err := DecodeGeometry(tc.caps)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrNotNegotiated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.caps.Width, g.Width)
			assert.Equal(t, tc.caps.Height, g.Height)
			assert.NotEqual(t, FormatUnknown, f)
			t.Logf("✅ %s accepted as %s %s", tc.name, f, g)
		})
	}
}

func TestValidateEncodeGeometry(t *testing.T) {
	assert.NoError(t, ValidateEncodeGeometry(Geometry{Width: 176, Height: 144, Rate: FrameRate{15, 1}}))
	assert.ErrorIs(t, ValidateEncodeGeometry(Geometry{Width: 8, Height: 144, Rate: FrameRate{15, 1}}), ErrNotNegotiated)
	assert.ErrorIs(t, ValidateEncodeGeometry(Geometry{Width: 176, Height: 800, Rate: FrameRate{15, 1}}), ErrNotNegotiated)
	assert.ErrorIs(t, ValidateEncodeGeometry(Geometry{Width: 175, Height: 144, Rate: FrameRate{15, 1}}), ErrNotNegotiated)
	assert.ErrorIs(t, ValidateEncodeGeometry(Geometry{Width: 176, Height: 144}), ErrNotNegotiated)
	assert.ErrorIs(t, ValidateEncodeGeometry(Geometry{Width: 176, Height: 144, Rate: FrameRate{31, 1}}), ErrNotNegotiated)
}

// TestClassify covers sentinel mapping and the message heuristics for plain
// driver errors.
func TestClassify(t *testing.T) {
	assert.Equal(t, SeverityFlow, Classify(fmt.Errorf("decode-sink: push: %w", ErrEndOfStream)))
	assert.Equal(t, SeverityFlow, Classify(ErrClosed))
	assert.Equal(t, SeverityFatal, Classify(fmt.Errorf("encoder: %w", ErrFrameSize)))
	assert.Equal(t, SeverityNonFatal, Classify(ErrSessionOpen))
	assert.Equal(t, SeverityFatal, Classify(errors.New("VEU probe failed")))
	assert.Equal(t, SeverityNonFatal, Classify(errors.New("corrupt slice header")))
	assert.Equal(t, SeverityUnknown, Classify(errors.New("something odd")))
	assert.Equal(t, SeverityUnknown, Classify(nil))
	assert.Equal(t, "non_fatal", SeverityNonFatal.String())
}
