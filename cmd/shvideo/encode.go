package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/codec/sim"
	"github.com/e7canasta/shvideo/internal/encode"
)

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	in := fs.String("in", "", "Raw 4:2:0 planar frames (required)")
	out := fs.String("out", "", "Output elementary stream (required)")
	control := fs.String("control", "", "Encoder control file (default from config)")
	formatName := fs.String("format", "", "Force output format: h264, mpeg4")
	width := fs.Int("width", 0, "Picture width (default from control file)")
	height := fs.Int("height", 0, "Picture height (default from control file)")
	fps := fs.String("fps", "", "Frame rate N/D (default from control file)")
	pull := fs.Bool("pull", false, "Read luma and chroma planes straight from the input")
	fs.Parse(args)

	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-in and -out are required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer st.close()

	if *control != "" {
		st.cfg.Encode.ControlFile = *control
	}
	if *pull {
		st.cfg.Encode.Pull = true
	}

	var forced codec.Format
	if *formatName != "" {
		if forced, err = codec.ParseFormat(*formatName); err != nil {
			return err
		}
	}
	caps := codec.Caps{MediaType: encode.RawMediaType, Width: *width, Height: *height, PixelFormat: "I420"}
	if *fps != "" {
		if caps.Rate, err = codec.ParseFrameRate(*fps); err != nil {
			return err
		}
	}

	src, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()
	dst, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer dst.Close()

	w := bufio.NewWriter(dst)
	downstream := &sim.WriterDownstream{W: w}
	elem, err := encode.New(encode.Config{
		Encoders:    sim.NewEncoderFactory(sim.EncoderConfig{}),
		Downstream:  downstream,
		Notifier:    st.notifier,
		Metrics:     st.metrics,
		Format:      forced,
		ControlFile: st.cfg.Encode.ControlFile,
	})
	if err != nil {
		return err
	}
	defer elem.Close()

	if err := elem.SetCaps(caps); err != nil {
		return err
	}
	geo := elem.Stats().Params.Geometry

	slog.Info("shvideo encode starting",
		"version", version,
		"in", *in,
		"out", *out,
		"control_file", st.cfg.Encode.ControlFile,
		"geometry", geo.String(),
		"pull", st.cfg.Encode.Pull,
	)

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	st.serve(gctx, g)

	g.Go(func() error {
		defer stop()
		r := bufio.NewReader(src)
		if st.cfg.Encode.Pull {
			return elem.PullFrom(gctx, r)
		}
		return pushFrames(gctx, elem, r, geo.FrameSize())
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			return elem.Close()
		}
		return nil
	})

	err = g.Wait()
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("flush output: %w", ferr)
	}

	units, bytes := downstream.Written()
	s := elem.Stats()
	slog.Info("shvideo encode finished",
		"session_id", s.SessionID,
		"frames_in", s.FramesIn,
		"units_out", units,
		"bytes_out", bytes,
		"last_timestamp", s.LastTimestamp,
	)
	if errors.Is(err, context.Canceled) || errors.Is(err, codec.ErrClosed) {
		return nil
	}
	return err
}

// pushFrames reads whole frames and pushes them; a trailing partial frame is
// pushed too so the element can reject it and end the stream.
func pushFrames(ctx context.Context, elem *encode.Element, r io.Reader, frameSize int) error {
	frame := make([]byte, frameSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, frame)
		switch {
		case errors.Is(err, io.EOF):
			return elem.EndOfStream()
		case errors.Is(err, io.ErrUnexpectedEOF):
			slog.Warn("trailing partial frame", "bytes", n, "frame_size", frameSize)
			return elem.Push(frame[:n])
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}
		if err := elem.Push(frame); err != nil {
			return err
		}
	}
}

