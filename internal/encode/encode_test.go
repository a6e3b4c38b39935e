package encode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/codec/sim"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const controlH264 = `format: h264
width: 16
height: 16
frame_rate: 25/1
chroma: interleaved
bitrate: 64000
i_frame_interval: 10
frame_num_resolution: 30
`

var geo16 = codec.Geometry{Width: 16, Height: 16, Rate: codec.FrameRate{Num: 25, Den: 1}}

func writeControl(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "encoder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func rawFrame(g codec.Geometry, tag byte) []byte {
	return bytes.Repeat([]byte{tag}, g.FrameSize())
}

type fixture struct {
	elem       *Element
	downstream *sim.Downstream
	recorder   *notify.Recorder

	mu      sync.Mutex
	encoder *sim.Encoder
}

func newFixture(t *testing.T, cfg Config, enc sim.EncoderConfig) *fixture {
	t.Helper()
	f := &fixture{downstream: &sim.Downstream{}, recorder: &notify.Recorder{}}
	if cfg.Encoders == nil {
		cfg.Encoders = func(p codec.EncoderParams) (codec.Encoder, error) {
			e, err := sim.NewEncoder(enc, p)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			f.encoder = e
			f.mu.Unlock()
			return e, nil
		}
	}
	if cfg.Downstream == nil {
		cfg.Downstream = f.downstream
	}
	cfg.Notifier = f.recorder

	elem, err := New(cfg)
	require.NoError(t, err)
	f.elem = elem
	t.Cleanup(func() { elem.Close() })
	return f
}

func (f *fixture) sim() *sim.Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encoder
}

func TestTimeline_MultiplesOfFrameDuration(t *testing.T) {
	tl, err := NewTimeline(codec.FrameRate{Num: 25, Den: 1})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		n, ts, dur := tl.Next()
		assert.Equal(t, int64(i), n)
		assert.Equal(t, time.Duration(i)*40*time.Millisecond, ts)
		assert.Equal(t, 40*time.Millisecond, dur)
	}

	ntsc, err := NewTimeline(codec.FrameRate{Num: 30000, Den: 1001})
	require.NoError(t, err)
	assert.Equal(t, 1001*time.Second, ntsc.At(30000), "no drift over 30000 frames")

	_, err = NewTimeline(codec.FrameRate{})
	assert.ErrorIs(t, err, codec.ErrNotNegotiated)
}

func TestSplitter_ChromaLayouts(t *testing.T) {
	g := codec.Geometry{Width: 4, Height: 2, Rate: codec.FrameRate{Num: 25, Den: 1}}
	frame := []byte{
		10, 11, 12, 13, 14, 15, 16, 17, // luma
		1, 2, // Cb
		3, 4, // Cr
	}

	t.Run("interleaved", func(t *testing.T) {
		s, err := NewSplitter(g, codec.ChromaInterleaved)
		require.NoError(t, err)
		pair, err := s.Split(frame)
		require.NoError(t, err)
		assert.Equal(t, frame[:8], pair.Luma)
		assert.Equal(t, []byte{1, 3, 2, 4}, pair.Chroma)
	})

	t.Run("planar", func(t *testing.T) {
		s, err := NewSplitter(g, codec.ChromaPlanar)
		require.NoError(t, err)
		pair, err := s.Split(frame)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, pair.Chroma)

		frame2 := append([]byte(nil), frame...)
		pair2, err := s.Split(frame2)
		require.NoError(t, err)
		frame2[0] = 99
		assert.Equal(t, byte(10), pair2.Luma[0], "planes do not alias the input")
		assert.Equal(t, 40*time.Millisecond, pair2.Timestamp)
		assert.Equal(t, int64(2), s.input.Count())
	})

	t.Run("size_mismatch", func(t *testing.T) {
		s, err := NewSplitter(g, codec.ChromaInterleaved)
		require.NoError(t, err)
		_, err = s.Split(frame[:11])
		assert.ErrorIs(t, err, codec.ErrFrameSize)
		assert.Equal(t, int64(0), s.input.Count())
	})
}

// TestElement_EncodesWithTimestamps validates the full path: caps, format
// announced before data, one unit per frame stamped n×40ms, one end of stream.
func TestElement_EncodesWithTimestamps(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, "format: h264\n")}, sim.EncoderConfig{})

	require.NoError(t, f.elem.SetCaps(codec.Caps{MediaType: RawMediaType, Width: 16, Height: 16, Rate: geo16.Rate, PixelFormat: "I420"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, f.elem.Push(rawFrame(geo16, byte(i))))
	}
	require.NoError(t, f.elem.EndOfStream())

	units := f.downstream.Units()
	require.Len(t, units, 5)
	for i, u := range units {
		assert.Equal(t, i, u.Index)
		assert.Equal(t, time.Duration(i)*40*time.Millisecond, u.Timestamp)
		assert.Equal(t, 40*time.Millisecond, u.Duration)
		assert.Equal(t, []byte{0, 0, 0, 1}, u.Data[:4], "H.264 start code")
	}
	assert.True(t, f.downstream.FormatFirst())
	assert.Equal(t, &codec.OutputFormat{Format: codec.FormatH264, Width: 16, Height: 16, Rate: geo16.Rate}, f.downstream.Format())
	assert.Equal(t, 1, f.downstream.EOSCount())
	assert.Len(t, f.recorder.Of(notify.KindEndOfStream), 1)

	st := f.elem.Stats()
	assert.Equal(t, uint64(5), st.FramesIn)
	assert.Equal(t, uint64(5), st.UnitsOut)
	assert.Equal(t, 160*time.Millisecond, st.LastTimestamp)

	require.NoError(t, f.elem.EndOfStream())
	assert.Equal(t, 1, f.downstream.EOSCount(), "end of stream sent once")
	assert.ErrorIs(t, f.elem.Push(rawFrame(geo16, 9)), codec.ErrEndOfStream)
	t.Logf("✅ 5 units at 40ms steps, format first, single EOS")
}

// TestElement_LazyInitFromControlFile: without caps, the first frame opens the
// session with the control file's geometry, chroma layout and tuning.
func TestElement_LazyInitFromControlFile(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	frame := rawFrame(geo16, 7)
	copy(frame[geo16.LumaSize():], bytes.Repeat([]byte{1}, geo16.ChromaSize()/2))
	copy(frame[geo16.LumaSize()+geo16.ChromaSize()/2:], bytes.Repeat([]byte{2}, geo16.ChromaSize()/2))

	require.NoError(t, f.elem.Push(frame))
	require.NoError(t, f.elem.EndOfStream())

	enc := f.sim()
	require.NotNil(t, enc)
	p := enc.Params()
	assert.Equal(t, codec.FormatH264, p.Format)
	assert.Equal(t, geo16, p.Geometry)
	assert.Equal(t, 250, p.FrameRateX10)
	assert.Equal(t, 1, p.FrameNumStep)
	assert.Equal(t, 64000, p.Bitrate)

	inputs := enc.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, []byte{1, 2, 1, 2}, inputs[0].Chroma[:4], "chroma interleaved for the codec")
	assert.Len(t, f.downstream.Units(), 1)
}

func TestElement_FormatOverridesControlFile(t *testing.T) {
	f := newFixture(t, Config{Format: codec.FormatMPEG4, ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	require.NoError(t, f.elem.EndOfStream())

	units := f.downstream.Units()
	require.Len(t, units, 1)
	assert.Equal(t, []byte{0, 0, 1, 0xb6}, units[0].Data[:4])
	assert.Equal(t, codec.FormatMPEG4, f.downstream.Format().Format)
}

// TestElement_FrameSizeMismatchEndsStream: a wrong-sized frame is fatal for
// the stream but surfaces as a clean end of stream downstream.
func TestElement_FrameSizeMismatchEndsStream(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	require.NoError(t, f.elem.Push(make([]byte, 100)), "ends cleanly")
	assert.Equal(t, lifecycle.StateStopped, f.elem.State())

	assert.Equal(t, 1, f.downstream.EOSCount())
	assert.Len(t, f.downstream.Units(), 1, "frame before the mismatch still encoded")
	assert.ErrorIs(t, f.elem.Push(rawFrame(geo16, 2)), codec.ErrEndOfStream)

	require.NoError(t, f.elem.EndOfStream())
	assert.Equal(t, 1, f.downstream.EOSCount())

	errs := f.recorder.Of(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "fatal", errs[0].Severity)
	assert.Contains(t, errs[0].Message, codec.ErrFrameSize.Error())
}

// TestElement_TrailingPartialFrame: a file that ends mid-frame, pushed frame
// by frame including the remainder, encodes every whole frame and ends with
// exactly one end of stream and no error.
func TestElement_TrailingPartialFrame(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	var input bytes.Buffer
	for i := 0; i < 3; i++ {
		input.Write(rawFrame(geo16, byte(i+1)))
	}
	input.Write(rawFrame(geo16, 4)[:geo16.FrameSize()/2])

	frame := make([]byte, geo16.FrameSize())
	var result error
	for {
		n, err := io.ReadFull(&input, frame)
		if errors.Is(err, io.EOF) {
			result = f.elem.EndOfStream()
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			result = f.elem.Push(frame[:n])
			break
		}
		require.NoError(t, f.elem.Push(frame))
	}

	require.NoError(t, result)
	assert.Len(t, f.downstream.Units(), 3)
	assert.Equal(t, 1, f.downstream.EOSCount())
	require.NoError(t, f.elem.EndOfStream())
	assert.Equal(t, 1, f.downstream.EOSCount())
	t.Logf("✅ partial trailing frame ended the stream cleanly")
}

type emptyEncoder struct{}

func (emptyEncoder) Run(io codec.EncoderIO) error {
	for {
		if _, ok := io.ProvideInput(); !ok {
			return nil
		}
		if err := io.WriteOutput(nil); err != nil {
			return err
		}
		if err := io.WriteOutput([]byte{0xAA}); err != nil {
			return err
		}
	}
}

func (emptyEncoder) Close() error { return nil }

func TestElement_ZeroLengthOutputIgnored(t *testing.T) {
	f := newFixture(t, Config{
		ControlFile: writeControl(t, controlH264),
		Encoders:    func(codec.EncoderParams) (codec.Encoder, error) { return emptyEncoder{}, nil },
	}, sim.EncoderConfig{})

	for i := 0; i < 3; i++ {
		require.NoError(t, f.elem.Push(rawFrame(geo16, byte(i))))
	}
	require.NoError(t, f.elem.EndOfStream())

	units := f.downstream.Units()
	require.Len(t, units, 3)
	assert.Equal(t, 80*time.Millisecond, units[2].Timestamp, "empty outputs consume no timestamp")
	assert.Equal(t, uint64(3), f.elem.Stats().EmptyOutputs)
}

func TestElement_DownstreamFailureStopsEncoder(t *testing.T) {
	boom := errors.New("downstream gone")
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})
	f.downstream.PushErr = boom

	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	err := f.elem.EndOfStream()
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, f.downstream.EOSCount())
	assert.NotEmpty(t, f.recorder.Of(notify.KindError))
}

// blockingEncoder takes one pair per release.
type blockingEncoder struct {
	release chan struct{}
	taken   chan struct{}
}

func (b *blockingEncoder) Run(io codec.EncoderIO) error {
	for {
		if _, ok := io.ProvideInput(); !ok {
			return nil
		}
		b.taken <- struct{}{}
		if _, ok := <-b.release; !ok {
			return nil
		}
		if err := io.WriteOutput([]byte{1}); err != nil {
			return err
		}
	}
}

func (b *blockingEncoder) Close() error { return nil }

// TestElement_OnePairInFlight: while the encoder holds one frame, one more can
// wait in the double buffer and the next producer call blocks.
func TestElement_OnePairInFlight(t *testing.T) {
	enc := &blockingEncoder{release: make(chan struct{}), taken: make(chan struct{}, 8)}
	f := newFixture(t, Config{
		ControlFile: writeControl(t, controlH264),
		Encoders:    func(codec.EncoderParams) (codec.Encoder, error) { return enc, nil },
	}, sim.EncoderConfig{})

	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	<-enc.taken
	require.NoError(t, f.elem.Push(rawFrame(geo16, 2)))

	done := make(chan error, 1)
	go func() { done <- f.elem.Push(rawFrame(geo16, 3)) }()

	require.Eventually(t, func() bool { return f.elem.Stats().Cell.ProducerWaits == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("third push returned while a pair was in flight")
	default:
	}

	enc.release <- struct{}{}
	require.NoError(t, <-done)
	<-enc.taken
	enc.release <- struct{}{}
	<-enc.taken
	enc.release <- struct{}{}

	require.NoError(t, f.elem.EndOfStream())
	assert.Len(t, f.downstream.Units(), 3)
}

func TestElement_PullFrom(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	var input bytes.Buffer
	input.Write(rawFrame(geo16, 1))
	input.Write(rawFrame(geo16, 2))
	input.Write(rawFrame(geo16, 3)[:geo16.LumaSize()+10]) // chroma cut short

	require.NoError(t, f.elem.PullFrom(context.Background(), &input))

	assert.Len(t, f.downstream.Units(), 2)
	assert.Equal(t, 1, f.downstream.EOSCount())
	assert.Equal(t, uint64(2), f.elem.Stats().FramesIn)
}

func TestElement_PullFromCancelled(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.elem.PullFrom(ctx, bytes.NewReader(rawFrame(geo16, 1)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.downstream.EOSCount())
}

func TestElement_NegotiationErrors(t *testing.T) {
	control := writeControl(t, controlH264)

	t.Run("media_type", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{})
		assert.ErrorIs(t, f.elem.SetCaps(codec.Caps{MediaType: "video/x-h264"}), codec.ErrNotNegotiated)
	})

	t.Run("pixel_format", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{})
		assert.ErrorIs(t, f.elem.SetCaps(codec.Caps{MediaType: RawMediaType, PixelFormat: "YUY2"}), codec.ErrNotNegotiated)
	})

	t.Run("caps_twice", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{})
		require.NoError(t, f.elem.SetCaps(codec.Caps{MediaType: RawMediaType}))
		assert.ErrorIs(t, f.elem.SetCaps(codec.Caps{MediaType: RawMediaType}), codec.ErrSessionOpen)
		assert.ErrorIs(t, f.elem.SetControlFile(control), codec.ErrStreaming)
	})

	t.Run("odd_geometry", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{})
		assert.ErrorIs(t, f.elem.SetCaps(codec.Caps{MediaType: RawMediaType, Width: 17}), codec.ErrNotNegotiated)
	})

	t.Run("rate_too_high", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{})
		err := f.elem.SetCaps(codec.Caps{MediaType: RawMediaType, Rate: codec.FrameRate{Num: 60, Den: 1}})
		assert.ErrorIs(t, err, codec.ErrNotNegotiated)
	})

	t.Run("no_format", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: writeControl(t, "width: 16\nheight: 16\nframe_rate: 25/1\n")}, sim.EncoderConfig{})
		assert.ErrorIs(t, f.elem.Push(rawFrame(geo16, 1)), codec.ErrUnsupportedFormat)
		assert.Nil(t, f.downstream.Format())
	})

	t.Run("missing_control_file", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: filepath.Join(t.TempDir(), "nope.yaml")}, sim.EncoderConfig{})
		assert.ErrorIs(t, f.elem.Push(rawFrame(geo16, 1)), codec.ErrNotNegotiated)
	})

	t.Run("encoder_open", func(t *testing.T) {
		f := newFixture(t, Config{ControlFile: control}, sim.EncoderConfig{OpenErr: errors.New("vpu busy")})
		err := f.elem.Push(rawFrame(geo16, 1))
		assert.ErrorIs(t, err, codec.ErrHardware)
		assert.Equal(t, codec.SeverityFatal, codec.Classify(err))
	})

	t.Run("missing_collaborators", func(t *testing.T) {
		_, err := New(Config{Downstream: &sim.Downstream{}})
		assert.Error(t, err)
		_, err = New(Config{Encoders: sim.NewEncoderFactory(sim.EncoderConfig{})})
		assert.Error(t, err)
	})
}

func TestElement_ControlFileProperty(t *testing.T) {
	f := newFixture(t, Config{}, sim.EncoderConfig{})
	path := writeControl(t, controlH264)

	assert.Empty(t, f.elem.ControlFile())
	require.NoError(t, f.elem.SetControlFile(path))
	assert.Equal(t, path, f.elem.ControlFile())
	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	require.NoError(t, f.elem.EndOfStream())
}

func TestElement_EndOfStreamWithoutSession(t *testing.T) {
	f := newFixture(t, Config{}, sim.EncoderConfig{})
	require.NoError(t, f.elem.EndOfStream())
	require.NoError(t, f.elem.EndOfStream())
	assert.Equal(t, 1, f.downstream.EOSCount())
}

// TestElement_CloseAborts: Close drops the pair in flight, joins the driver
// and sends no end of stream.
func TestElement_CloseAborts(t *testing.T) {
	f := newFixture(t, Config{ControlFile: writeControl(t, controlH264)}, sim.EncoderConfig{})

	require.NoError(t, f.elem.Push(rawFrame(geo16, 1)))
	require.NoError(t, f.elem.Close())
	require.NoError(t, f.elem.Close())

	assert.Equal(t, 0, f.downstream.EOSCount())
	assert.ErrorIs(t, f.elem.Push(rawFrame(geo16, 2)), codec.ErrClosed)
	assert.ErrorIs(t, f.elem.SetCaps(codec.Caps{}), codec.ErrClosed)
}
