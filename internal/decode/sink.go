// Package decode implements the decode sink: compressed units are pre-buffered
// in a frame buffer cell, decoded on a dedicated driver goroutine, paced
// against a real-time clock and handed to the display.
package decode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/metrics"
	"github.com/e7canasta/shvideo/internal/notify"
	"github.com/e7canasta/shvideo/internal/pacing"
)

// Source names this element in logs and notifications.
const Source = "decode-sink"

// Config contains the collaborators and initial properties of a Sink.
type Config struct {
	// Decoders opens the hardware decoder at negotiation (required).
	Decoders codec.DecoderFactory
	// Display receives paced pictures (required).
	Display codec.Display
	// Notifier receives buffering, end-of-stream and error events.
	Notifier notify.Notifier
	// Metrics is optional.
	Metrics *metrics.Collector
	// Clock paces frames; nil means the system clock.
	Clock pacing.Clock
	// BufferSizeKB is the pre-buffering watermark in kilobytes; 0 disables it.
	BufferSizeKB uint
	// Playing starts the sink unpaused. A sink starts paused by default and
	// holds the first frame until Play.
	Playing bool
}

// Sink is the decode-side element. Push, EndOfStream and SetCaps are called
// from the pipeline's streaming goroutine; Play, Pause, SetClock, Stats and
// the buffer-size property may be used from any goroutine.
type Sink struct {
	decoders codec.DecoderFactory
	display  codec.Display
	notifier notify.Notifier
	metrics  *metrics.Collector

	mu       sync.Mutex
	bufferKB uint
	clock    pacing.Clock
	playing  bool
	session  *session
	closed   bool

	progressLog rate.Sometimes
}

// New creates a sink with fail-fast validation of its collaborators.
func New(cfg Config) (*Sink, error) {
	if cfg.Decoders == nil {
		return nil, fmt.Errorf("decode-sink: decoder factory is required")
	}
	if cfg.Display == nil {
		return nil, fmt.Errorf("decode-sink: display is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	if cfg.Clock == nil {
		cfg.Clock = pacing.SystemClock{}
	}

	return &Sink{
		decoders:    cfg.Decoders,
		display:     cfg.Display,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		bufferKB:    cfg.BufferSizeKB,
		clock:       cfg.Clock,
		playing:     cfg.Playing,
		progressLog: rate.Sometimes{Interval: time.Second},
	}, nil
}

// BufferSize returns the buffer-size property in kilobytes.
func (s *Sink) BufferSize() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferKB
}

// SetBufferSize changes the pre-buffering watermark. Rejected with a warning
// once streaming has started.
func (s *Sink) SetBufferSize(kb uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if err := s.session.cell.SetWatermark(int(kb) * 1024); err != nil {
			slog.Warn("decode-sink: buffer-size change rejected, already streaming",
				"requested_kb", kb,
				"current_kb", s.bufferKB,
			)
			s.metrics.IncError(metrics.DirectionDecode, codec.SeverityNonFatal.String())
			return fmt.Errorf("decode-sink: set buffer-size: %w", err)
		}
	}
	s.bufferKB = kb
	slog.Debug("decode-sink: buffer-size set", "kb", kb)
	return nil
}

// SetClock selects the pacing clock. nil selects the system clock. Takes
// effect immediately, including for a running session.
func (s *Sink) SetClock(c pacing.Clock) {
	if c == nil {
		slog.Debug("decode-sink: using system clock")
		c = pacing.SystemClock{}
	}
	s.mu.Lock()
	s.clock = c
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		sess.pacer.SetClock(c)
	}
}

// Play releases the pause gate.
func (s *Sink) Play() {
	s.mu.Lock()
	s.playing = true
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		sess.gate.Resume()
	}
	s.notify(notify.Event{Kind: notify.KindState, Message: "playing"})
}

// Pause holds the next frame at the pause gate. Ingestion continues.
func (s *Sink) Pause() {
	s.mu.Lock()
	s.playing = false
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		sess.gate.Pause()
	}
	s.notify(notify.Event{Kind: notify.KindState, Message: "paused"})
}

// SetCaps negotiates the stream and opens the codec session.
//
// Fatal failures (unsupported caps, decoder open, display configuration)
// return an error and leave no session behind. Renegotiation while a session
// is open is rejected with codec.ErrSessionOpen.
func (s *Sink) SetCaps(caps codec.Caps) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("decode-sink: set caps: %w", codec.ErrClosed)
	}
	if s.session != nil {
		slog.Warn("decode-sink: caps rejected, decoder already open",
			"media_type", caps.MediaType,
			"session_id", s.session.thread.ID(),
		)
		s.metrics.IncError(metrics.DirectionDecode, codec.SeverityNonFatal.String())
		return fmt.Errorf("decode-sink: set caps: %w", codec.ErrSessionOpen)
	}

	geo, format, err := codec.DecodeGeometry(caps)
	if err != nil {
		return s.fatalSetup("caps", err)
	}

	dec, err := s.decoders(format, geo)
	if err != nil {
		return s.fatalSetup("decoder open", fmt.Errorf("%w: %w", codec.ErrHardware, err))
	}
	if err := s.display.Configure(geo); err != nil {
		_ = dec.Close()
		return s.fatalSetup("display configure", fmt.Errorf("%w: %w", codec.ErrHardware, err))
	}

	sess, err := newSession(s, dec, geo, format)
	if err != nil {
		_ = dec.Close()
		return s.fatalSetup("session", err)
	}
	s.session = sess

	slog.Info("decode-sink: session opened",
		"session_id", sess.thread.ID(),
		"format", format.String(),
		"geometry", geo.String(),
		"buffer_kb", s.bufferKB,
		"playing", s.playing,
	)
	s.notify(notify.Event{Kind: notify.KindFormat, Session: sess.thread.ID(), Message: format.String() + " " + geo.String()})
	return nil
}

// Push submits one compressed unit. Ownership of u passes to the sink. May
// block under back-pressure.
func (s *Sink) Push(u *cell.Unit) error {
	s.mu.Lock()
	sess := s.session
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return fmt.Errorf("decode-sink: push: %w", codec.ErrClosed)
	}
	if sess == nil {
		return fmt.Errorf("decode-sink: push before caps: %w", codec.ErrNotNegotiated)
	}

	p, err := sess.cell.Submit(u)
	if err != nil {
		return fmt.Errorf("decode-sink: push: %w", err)
	}

	s.metrics.ObserveSubmit(metrics.DirectionDecode, p.Merged, p.Waited)
	s.metrics.SetBuffering(p.Percent)
	s.notify(notify.Event{Kind: notify.KindBuffering, Session: sess.thread.ID(), Percent: p.Percent})

	if !p.StartConsumer {
		if sess.machine.State() == lifecycle.StateIdle {
			s.progressLog.Do(func() {
				slog.Debug("decode-sink: pre-buffering",
					"percent", p.Percent,
					"pending_bytes", sess.cell.Len(),
					"watermark", sess.cell.Watermark(),
				)
			})
		}
		return nil
	}

	sess.start()
	return nil
}

// EndOfStream drains the session: the remaining bytes are decoded, the
// decoder is flushed, the driver is joined and the end of stream is
// announced. Blocks until the last frame was displayed. Later calls return
// the first result without announcing again.
func (s *Sink) EndOfStream() error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil {
		s.notify(notify.Event{Kind: notify.KindEndOfStream})
		return nil
	}

	sess.eosOnce.Do(func() { sess.eosErr = s.finish(sess) })
	return sess.eosErr
}

func (s *Sink) finish(sess *session) error {
	if sess.cell.Drain() {
		// ended before pre-buffering completed
		slog.Debug("decode-sink: end of stream before watermark, starting driver", "pending_bytes", sess.cell.Len())
		s.metrics.SetBuffering(100)
		s.notify(notify.Event{Kind: notify.KindBuffering, Session: sess.thread.ID(), Percent: 100})
		sess.start()
	}

	err := sess.thread.Join()

	st := sess.stats()
	slog.Info("decode-sink: end of stream",
		"session_id", sess.thread.ID(),
		"frames_decoded", st.FramesDecoded,
		"frames_shown", st.FramesShown,
		"skipped_bytes", st.SkippedBytes,
		"late_frames", st.LateFrames,
	)
	s.notify(notify.Event{Kind: notify.KindEndOfStream, Session: sess.thread.ID()})

	result := "ok"
	if err != nil {
		result = "failed"
	}
	s.metrics.IncSession(metrics.DirectionDecode, result)
	return err
}

// Reset tears the session down so new caps can be negotiated. Pending data is
// discarded and a running driver is stopped at the next frame boundary.
func (s *Sink) Reset() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.close()
}

// Close releases the session and the display. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	var errs []error
	if sess != nil {
		if sess.machine.State() != lifecycle.StateStopped {
			s.metrics.IncSession(metrics.DirectionDecode, "aborted")
		}
		errs = append(errs, sess.close())
	}
	if err := s.display.Close(); err != nil {
		errs = append(errs, fmt.Errorf("decode-sink: close display: %w", err))
	}

	slog.Info("decode-sink: closed")
	return errors.Join(errs...)
}

// State returns the lifecycle state of the current session, Idle if none.
func (s *Sink) State() lifecycle.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return lifecycle.StateIdle
	}
	return s.session.machine.State()
}

func (s *Sink) fatalSetup(step string, err error) error {
	slog.Error("decode-sink: negotiation failed", "step", step, "error", err)
	s.metrics.IncError(metrics.DirectionDecode, codec.SeverityFatal.String())
	s.metrics.IncSession(metrics.DirectionDecode, "failed")
	return fmt.Errorf("decode-sink: %s: %w", step, err)
}

func (s *Sink) reportError(sess *session, err error) {
	sev := codec.Classify(err)
	s.metrics.IncError(metrics.DirectionDecode, sev.String())
	s.notify(notify.Event{
		Kind:     notify.KindError,
		Session:  sess.thread.ID(),
		Message:  err.Error(),
		Severity: sev.String(),
	})
}

func (s *Sink) notify(e notify.Event) {
	e.Source = Source
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.notifier.Notify(e)
}
