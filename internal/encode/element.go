// Package encode implements the encoder element: raw 4:2:0 frames are split
// into luma/chroma pairs, handed one at a time to a hardware encoder driven
// from its own goroutine, and the encoded units are stamped and pushed
// downstream.
package encode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/config"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/metrics"
	"github.com/e7canasta/shvideo/internal/notify"
)

// Source names this element in logs and notifications.
const Source = "encoder"

// RawMediaType is the only input media type.
const RawMediaType = "video/x-raw"

// Config contains the collaborators and initial properties of an Element.
type Config struct {
	// Encoders opens the hardware encoder at session start (required).
	Encoders codec.EncoderFactory
	// Downstream receives the output format, encoded units and end of stream (required).
	Downstream codec.Downstream
	Notifier   notify.Notifier
	Metrics    *metrics.Collector
	// Format forces the output format, as fixed downstream caps would.
	// FormatUnknown defers to the control file.
	Format codec.Format
	// ControlFile is the path of the YAML encoder control file.
	ControlFile string
}

// Element is the encode-side element. Push, PullFrom, SetCaps and
// EndOfStream are called from one streaming goroutine.
type Element struct {
	encoders   codec.EncoderFactory
	downstream codec.Downstream
	notifier   notify.Notifier
	metrics    *metrics.Collector
	format     codec.Format

	mu          sync.Mutex
	controlFile string
	caps        *codec.Caps
	session     *session
	ended       bool
	closed      bool
}

// New creates an encoder element with fail-fast validation.
func New(cfg Config) (*Element, error) {
	if cfg.Encoders == nil {
		return nil, fmt.Errorf("encoder: encoder factory is required")
	}
	if cfg.Downstream == nil {
		return nil, fmt.Errorf("encoder: downstream is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	return &Element{
		encoders:    cfg.Encoders,
		downstream:  cfg.Downstream,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		format:      cfg.Format,
		controlFile: cfg.ControlFile,
	}, nil
}

// ControlFile returns the control-file path.
func (e *Element) ControlFile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlFile
}

// SetControlFile changes the control-file path. The file is read when the
// next session opens, so the change is rejected while one is open.
func (e *Element) SetControlFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		slog.Warn("encoder: control-file change rejected, session open", "path", path)
		return fmt.Errorf("encoder: set control file: %w", codec.ErrStreaming)
	}
	e.controlFile = path
	return nil
}

// SetCaps negotiates the raw input and opens the session. Width, height or
// frame rate missing from caps are taken from the control file.
func (e *Element) SetCaps(caps codec.Caps) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("encoder: set caps: %w", codec.ErrClosed)
	}
	if e.session != nil {
		slog.Warn("encoder: caps rejected, encoder already open",
			"session_id", e.session.thread.ID(),
		)
		return fmt.Errorf("encoder: set caps: %w", codec.ErrSessionOpen)
	}
	if caps.MediaType != "" && caps.MediaType != RawMediaType {
		return e.fatalSetup("caps", fmt.Errorf("media type %q: %w", caps.MediaType, codec.ErrNotNegotiated))
	}
	switch strings.ToUpper(caps.PixelFormat) {
	case "", "NV12", "I420":
	default:
		return e.fatalSetup("caps", fmt.Errorf("pixel format %q: %w", caps.PixelFormat, codec.ErrNotNegotiated))
	}

	e.caps = &caps
	return e.open()
}

// Push splits one raw frame and hands it to the encoder, blocking while the
// previous frame is still in flight.
//
// The first Push opens the session from the control file when no caps were
// negotiated. A frame of the wrong size ends the stream: the error is
// reported to the notifier, downstream receives end of stream and Push
// returns nil. Later pushes fail with codec.ErrEndOfStream.
func (e *Element) Push(frame []byte) error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}

	pair, err := sess.splitter.Split(frame)
	if err != nil {
		slog.Error("encoder: frame size mismatch, ending stream",
			"session_id", sess.thread.ID(),
			"frame_bytes", len(frame),
			"expected_bytes", sess.splitter.FrameSize(),
		)
		e.metrics.IncError(metrics.DirectionEncode, codec.SeverityFatal.String())
		e.reportError(sess, err)
		return e.finish(sess)
	}

	waits := sess.cell.Stats().ProducerWaits
	if err := sess.cell.Put(pair); err != nil {
		if derr := sess.driverErr(); derr != nil {
			return fmt.Errorf("encoder: push: %w", derr)
		}
		return fmt.Errorf("encoder: push: %w", err)
	}
	sess.framesIn.Add(1)
	e.metrics.ObserveSubmit(metrics.DirectionEncode, false, sess.cell.Stats().ProducerWaits > waits)

	if sess.machine.TryStart() {
		sess.start()
	}
	return nil
}

// PullFrom reads raw frames from r until it is exhausted and pushes each one.
// Luma and chroma are read separately; a short read on either ends the
// stream cleanly. EndOfStream is called on return unless ctx was cancelled.
func (e *Element) PullFrom(ctx context.Context, r io.Reader) error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}

	lumaSize := sess.geometry.LumaSize()
	frame := make([]byte, sess.splitter.FrameSize())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, frame[:lumaSize]); err != nil {
			if !isShortRead(err) {
				return fmt.Errorf("encoder: read luma: %w", err)
			}
			slog.Debug("encoder: input exhausted", "at", "luma", "frames", sess.framesIn.Load())
			break
		}
		if _, err := io.ReadFull(r, frame[lumaSize:]); err != nil {
			if !isShortRead(err) {
				return fmt.Errorf("encoder: read chroma: %w", err)
			}
			slog.Debug("encoder: input exhausted", "at", "chroma", "frames", sess.framesIn.Load())
			break
		}
		if err := e.Push(frame); err != nil {
			return err
		}
	}
	return e.EndOfStream()
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// EndOfStream lets the encoder consume the frame in flight, joins the driver
// and sends end of stream downstream exactly once.
func (e *Element) EndOfStream() error {
	e.mu.Lock()
	sess := e.session
	already := e.ended
	e.ended = true
	e.mu.Unlock()

	if sess == nil {
		if !already {
			if err := e.downstream.EndOfStream(); err != nil {
				return fmt.Errorf("encoder: end of stream: %w", err)
			}
			e.notify(notify.Event{Kind: notify.KindEndOfStream})
		}
		return nil
	}
	return e.finish(sess)
}

// finish drains the session and waits for the driver. Safe to call twice.
func (e *Element) finish(sess *session) error {
	e.mu.Lock()
	e.ended = true
	e.mu.Unlock()

	sess.cell.Drain()
	sess.machine.BeginDrain()
	err := sess.thread.Join()
	sess.machine.Stop()
	sess.endOfStream()

	if sess.finished.CompareAndSwap(false, true) {
		st := sess.stats()
		slog.Info("encoder: end of stream",
			"session_id", sess.thread.ID(),
			"frames_in", st.FramesIn,
			"units_out", st.UnitsOut,
			"bytes_out", st.BytesOut,
			"last_timestamp", st.LastTimestamp,
		)
		result := "ok"
		if err != nil {
			result = "failed"
		}
		e.metrics.IncSession(metrics.DirectionEncode, result)
	}
	return err
}

// Close aborts the session without end of stream and releases the encoder.
// Idempotent.
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sess := e.session
	e.session = nil
	e.mu.Unlock()

	if sess == nil {
		return nil
	}
	if sess.finished.CompareAndSwap(false, true) {
		e.metrics.IncSession(metrics.DirectionEncode, "aborted")
	}
	err := sess.close()
	slog.Info("encoder: closed", "session_id", sess.thread.ID())
	return err
}

// State returns the lifecycle state of the current session, Idle if none.
func (e *Element) State() lifecycle.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return lifecycle.StateIdle
	}
	return e.session.machine.State()
}

// activeSession returns the open session, opening it lazily.
func (e *Element) activeSession() (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return nil, fmt.Errorf("encoder: push: %w", codec.ErrClosed)
	case e.ended:
		return nil, fmt.Errorf("encoder: push: %w", codec.ErrEndOfStream)
	case e.session != nil:
		return e.session, nil
	}

	slog.Debug("encoder: first frame before caps, initializing from control file",
		"control_file", e.controlFile,
	)
	if err := e.open(); err != nil {
		return nil, err
	}
	return e.session, nil
}

// open reads the control file, resolves format and geometry, opens the
// encoder and announces the output format. Called with e.mu held.
func (e *Element) open() error {
	cf := &config.ControlFile{}
	if e.controlFile != "" {
		loaded, err := config.LoadControlFile(e.controlFile)
		if err != nil {
			return e.fatalSetup("control file", fmt.Errorf("%w: %w", codec.ErrNotNegotiated, err))
		}
		cf = loaded
	} else if err := cf.Validate(); err != nil {
		return e.fatalSetup("control file", err)
	}

	geo := codec.Geometry{Width: cf.Width, Height: cf.Height, Rate: cf.Rate()}
	if e.caps != nil {
		if e.caps.Width > 0 {
			geo.Width = e.caps.Width
		}
		if e.caps.Height > 0 {
			geo.Height = e.caps.Height
		}
		if e.caps.Rate.Valid() {
			geo.Rate = e.caps.Rate
		}
	}
	if err := codec.ValidateEncodeGeometry(geo); err != nil {
		return e.fatalSetup("geometry", err)
	}

	format := e.format
	if format == codec.FormatUnknown {
		format = cf.FormatValue()
	}
	if format == codec.FormatUnknown {
		return e.fatalSetup("format", fmt.Errorf("no output format in caps or control file: %w", codec.ErrUnsupportedFormat))
	}

	params := cf.EncoderParams(format, geo)
	enc, err := e.encoders(params)
	if err != nil {
		return e.fatalSetup("encoder open", fmt.Errorf("%w: %w", codec.ErrHardware, err))
	}

	out := codec.OutputFormat{Format: format, Width: geo.Width, Height: geo.Height, Rate: geo.Rate}
	if err := e.downstream.SetFormat(out); err != nil {
		_ = enc.Close()
		return e.fatalSetup("output format", fmt.Errorf("%w: %w", codec.ErrNotNegotiated, err))
	}

	sess, err := newSession(e, enc, params)
	if err != nil {
		_ = enc.Close()
		return e.fatalSetup("session", err)
	}
	e.session = sess

	slog.Info("encoder: session opened",
		"session_id", sess.thread.ID(),
		"format", format.String(),
		"geometry", geo.String(),
		"chroma", params.Chroma.String(),
		"framerate_x10", params.FrameRateX10,
		"bitrate", params.Bitrate,
		"i_frame_interval", params.IFrameInterval,
		"frame_num_step", params.FrameNumStep,
	)
	e.notify(notify.Event{Kind: notify.KindFormat, Session: sess.thread.ID(), Message: format.String() + " " + geo.String()})
	return nil
}

func (e *Element) fatalSetup(step string, err error) error {
	slog.Error("encoder: negotiation failed", "step", step, "error", err)
	e.metrics.IncError(metrics.DirectionEncode, codec.SeverityFatal.String())
	e.metrics.IncSession(metrics.DirectionEncode, "failed")
	return fmt.Errorf("encoder: %s: %w", step, err)
}

func (e *Element) reportError(sess *session, err error) {
	e.notify(notify.Event{
		Kind:     notify.KindError,
		Session:  sess.thread.ID(),
		Message:  err.Error(),
		Severity: codec.Classify(err).String(),
	})
}

func (e *Element) notify(ev notify.Event) {
	ev.Source = Source
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.notifier.Notify(ev)
}
