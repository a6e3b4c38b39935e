package sim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/shvideo/internal/codec"
)

var qcif = codec.Geometry{Width: 176, Height: 144, Rate: codec.FrameRate{Num: 25, Den: 1}}

func TestDecoder_ConsumesWholeFrames(t *testing.T) {
	d, err := NewDecoder(DecoderConfig{FrameBytes: 10}, codec.FormatH264, qcif)
	require.NoError(t, err)

	var tags []byte
	d.SetFrameHandler(func(p codec.Picture) error {
		assert.Len(t, p.Luma, qcif.LumaSize())
		assert.Len(t, p.Chroma, qcif.ChromaSize())
		tags = append(tags, p.Luma[0])
		return nil
	})

	data := append(bytes.Repeat([]byte{1}, 10), bytes.Repeat([]byte{2}, 10)...)
	data = append(data, 3, 3, 3)

	n, err := d.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 20, n, "tail left unconsumed")
	assert.Equal(t, []byte{1, 2}, tags)
	assert.Equal(t, 2, d.FrameCount())
	require.NoError(t, d.Close())
	assert.Error(t, d.Close())

	_, err = d.Decode(data)
	assert.ErrorIs(t, err, codec.ErrClosed)
}

// TestDecoder_HoldLastFlushesOnFinalize: with one frame of delay the last
// picture only comes out of Finalize.
func TestDecoder_HoldLastFlushesOnFinalize(t *testing.T) {
	d, err := NewDecoder(DecoderConfig{FrameBytes: 4, HoldLast: true}, codec.FormatMPEG4, qcif)
	require.NoError(t, err)

	var idx []int
	d.SetFrameHandler(func(p codec.Picture) error {
		idx = append(idx, p.Index)
		return nil
	})

	_, err = d.Decode(make([]byte, 12))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, idx)

	require.NoError(t, d.Finalize())
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Equal(t, 3, d.FrameCount())
}

func TestDecoder_HandlerErrorStops(t *testing.T) {
	d, err := NewDecoder(DecoderConfig{FrameBytes: 1}, codec.FormatH264, qcif)
	require.NoError(t, err)
	stop := errors.New("stop")
	d.SetFrameHandler(func(p codec.Picture) error { return stop })

	n, err := d.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestDecoderFactory_Errors(t *testing.T) {
	_, err := NewDecoderFactory(DecoderConfig{OpenErr: errors.New("vpu busy")})(codec.FormatH264, qcif)
	assert.Error(t, err)
	_, err = NewDecoder(DecoderConfig{FrameBytes: 1}, codec.FormatUnknown, qcif)
	assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
	_, err = NewDecoder(DecoderConfig{}, codec.FormatH264, qcif)
	assert.ErrorIs(t, err, codec.ErrHardware)
}

type sliceIO struct {
	in  []codec.FramePair
	out [][]byte
}

func (s *sliceIO) ProvideInput() (codec.FramePair, bool) {
	if len(s.in) == 0 {
		return codec.FramePair{}, false
	}
	p := s.in[0]
	s.in = s.in[1:]
	return p, true
}

func (s *sliceIO) WriteOutput(b []byte) error {
	s.out = append(s.out, b)
	return nil
}

func pair(tag byte) codec.FramePair {
	return codec.FramePair{
		Luma:   bytes.Repeat([]byte{tag}, qcif.LumaSize()),
		Chroma: bytes.Repeat([]byte{tag}, qcif.ChromaSize()),
	}
}

func TestEncoder_AccessUnits(t *testing.T) {
	e, err := NewEncoder(EncoderConfig{}, codec.EncoderParams{Format: codec.FormatH264, Geometry: qcif, IFrameInterval: 2})
	require.NoError(t, err)

	io := &sliceIO{in: []codec.FramePair{pair(1), pair(2), pair(3)}}
	require.NoError(t, e.Run(io))
	require.Len(t, io.out, 3)

	assert.Equal(t, []byte{0, 0, 0, 1, 0x65}, io.out[0][:5])
	assert.Equal(t, byte(0x41), io.out[1][4])
	assert.Equal(t, byte(0x65), io.out[2][4])
	assert.Equal(t, []byte{0, 0, 0, 2}, io.out[2][5:9])
	assert.NotEqual(t, io.out[0][9:], io.out[1][9:], "checksums differ per frame")
	assert.Len(t, e.Inputs(), 3)
}

func TestEncoder_SkipAndSizeCheck(t *testing.T) {
	e, err := NewEncoder(EncoderConfig{SkipEvery: 2}, codec.EncoderParams{Format: codec.FormatMPEG4, Geometry: qcif})
	require.NoError(t, err)

	io := &sliceIO{in: []codec.FramePair{pair(1), pair(2), pair(3), pair(4)}}
	require.NoError(t, e.Run(io))
	assert.Len(t, io.out, 2)
	assert.Equal(t, []byte{0, 0, 1, 0xb6}, io.out[0][:4])

	bad := &sliceIO{in: []codec.FramePair{{Luma: []byte{1}}}}
	assert.ErrorIs(t, e.Run(bad), codec.ErrFrameSize)
}

func TestDownstream_Records(t *testing.T) {
	var d Downstream
	require.NoError(t, d.Push(codec.EncodedUnit{Index: 0}))
	require.NoError(t, d.SetFormat(codec.OutputFormat{Format: codec.FormatH264}))
	require.NoError(t, d.EndOfStream())
	assert.False(t, d.FormatFirst())
	assert.Equal(t, 1, d.EOSCount())
	assert.Len(t, d.Units(), 1)

	var buf bytes.Buffer
	w := &WriterDownstream{W: &buf}
	require.NoError(t, w.Push(codec.EncodedUnit{Data: []byte("abc")}))
	require.NoError(t, w.EndOfStream())
	assert.ErrorIs(t, w.Push(codec.EncodedUnit{Data: []byte("x")}), codec.ErrEndOfStream)
	units, n := w.Written()
	assert.Equal(t, 1, units)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "abc", buf.String())
}

func TestDisplay_Records(t *testing.T) {
	d := &Display{}
	require.NoError(t, d.Configure(qcif))
	require.NoError(t, d.Show(codec.Picture{Index: 7, Luma: []byte{9}}))
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Show(codec.Picture{}), codec.ErrClosed)

	shown := d.Shown()
	require.Len(t, shown, 1)
	assert.Equal(t, 7, shown[0].Index)
	assert.Equal(t, byte(9), shown[0].Tag)
	assert.Equal(t, qcif, d.Geometry())

	failing := &Display{ConfigureErr: errors.New("no fb")}
	assert.Error(t, failing.Configure(qcif))
}
