package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/codec/sim"
	"github.com/e7canasta/shvideo/internal/decode"
	"github.com/e7canasta/shvideo/internal/gstdisplay"
)

func runPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	in := fs.String("in", "", "Compressed elementary stream file (required)")
	codecName := fs.String("codec", "h264", "Stream format: h264, mpeg4")
	width := fs.Int("width", 176, "Picture width")
	height := fs.Int("height", 144, "Picture height")
	fps := fs.String("fps", "25/1", "Frame rate N/D")
	bufferKB := fs.Int("buffer-size", -1, "Pre-buffering watermark in KB (0 disables, -1 uses config)")
	display := fs.String("display", "", "Display: null, gst (default from config)")
	chunk := fs.Int("chunk", 4096, "Bytes per pushed unit")
	paused := fs.Bool("paused", false, "Start paused and stay paused (pre-roll only)")
	fs.Parse(args)

	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}
	if *chunk <= 0 {
		return fmt.Errorf("-chunk must be positive")
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer st.close()

	format, err := codec.ParseFormat(*codecName)
	if err != nil {
		return err
	}
	rate, err := codec.ParseFrameRate(*fps)
	if err != nil {
		return err
	}
	if *bufferKB >= 0 {
		st.cfg.Decode.BufferSizeKB = *bufferKB
	}
	if *display != "" {
		st.cfg.Decode.Display = *display
	}
	if *paused {
		st.cfg.Decode.StartPaused = true
	}

	var disp codec.Display
	switch st.cfg.Decode.Display {
	case "gst":
		disp = gstdisplay.New(gstdisplay.Config{})
	default:
		disp = &sim.Display{}
	}

	sink, err := decode.New(decode.Config{
		Decoders: sim.NewDecoderFactory(sim.DecoderConfig{
			FrameBytes: st.cfg.Decode.FrameBytes,
			HoldLast:   st.cfg.Decode.HoldLast,
		}),
		Display:      disp,
		Notifier:     st.notifier,
		Metrics:      st.metrics,
		BufferSizeKB: uint(st.cfg.Decode.BufferSizeKB),
		Playing:      !st.cfg.Decode.StartPaused,
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	caps := codec.Caps{MediaType: format.MediaType(), Width: *width, Height: *height, Rate: rate}
	if err := sink.SetCaps(caps); err != nil {
		return err
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	slog.Info("shvideo play starting",
		"version", version,
		"in", *in,
		"format", format.String(),
		"width", caps.Width,
		"height", caps.Height,
		"fps", rate.String(),
		"buffer_kb", st.cfg.Decode.BufferSizeKB,
		"display", st.cfg.Decode.Display,
	)

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	st.serve(gctx, g)

	g.Go(func() error {
		defer stop()
		return feed(gctx, sink, f, *chunk, st.cfg.Decode.FrameBytes, rate.FrameDuration())
	})
	g.Go(func() error {
		// Close unblocks a Push stuck on back-pressure or a paused driver
		<-gctx.Done()
		if ctx.Err() != nil {
			return sink.Close()
		}
		return nil
	})

	err = g.Wait()

	s := sink.Stats()
	slog.Info("shvideo play finished",
		"session_id", s.SessionID,
		"units", s.Units,
		"frames_decoded", s.FramesDecoded,
		"frames_shown", s.FramesShown,
		"late_frames", s.LateFrames,
		"skipped_bytes", s.SkippedBytes,
		"pause_waits", s.PauseWaits,
	)
	if errors.Is(err, context.Canceled) || errors.Is(err, codec.ErrClosed) {
		return nil
	}
	return err
}

// feed pushes the file in chunk-sized units with timestamps derived from the
// number of whole frames before each chunk, then ends the stream.
func feed(ctx context.Context, sink *decode.Sink, r io.Reader, chunk, frameBytes int, fd time.Duration) error {
	buf := make([]byte, chunk)
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			u := &cell.Unit{
				Data:      append([]byte(nil), buf[:n]...),
				Timestamp: time.Duration(offset/frameBytes) * fd,
				Frames:    max(n/frameBytes, 1),
				TraceID:   uuid.NewString(),
			}
			if perr := sink.Push(u); perr != nil {
				return perr
			}
			offset += n
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	slog.Debug("input exhausted", "bytes", offset)
	return sink.EndOfStream()
}
