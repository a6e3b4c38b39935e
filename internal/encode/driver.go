package encode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/metrics"
	"github.com/e7canasta/shvideo/internal/notify"
)

// session is one open encoder with its splitter, double buffer and driver.
type session struct {
	elem     *Element
	encoder  codec.Encoder
	params   codec.EncoderParams
	geometry codec.Geometry

	splitter *Splitter
	timeline *Timeline
	cell     *cell.PairCell
	machine  *lifecycle.Machine
	thread   *lifecycle.Thread

	eosOnce  sync.Once
	aborted  atomic.Bool
	finished atomic.Bool

	errMu  sync.Mutex
	runErr error

	// --- Stats (atomic) ---

	framesIn     atomic.Uint64
	unitsOut     atomic.Uint64
	bytesOut     atomic.Uint64
	emptyOutputs atomic.Uint64
	lastTS       atomic.Int64
}

func newSession(e *Element, enc codec.Encoder, params codec.EncoderParams) (*session, error) {
	splitter, err := NewSplitter(params.Geometry, params.Chroma)
	if err != nil {
		return nil, err
	}
	tl, err := NewTimeline(params.Geometry.Rate)
	if err != nil {
		return nil, err
	}
	return &session{
		elem:     e,
		encoder:  enc,
		params:   params,
		geometry: params.Geometry,
		splitter: splitter,
		timeline: tl,
		cell:     cell.NewPairCell(),
		machine:  &lifecycle.Machine{},
		thread:   lifecycle.NewThread(Source),
	}, nil
}

// start spawns the driver; the session never restarts it.
func (s *session) start() {
	if s.thread.Start(s.run) {
		slog.Debug("encoder: driver starting", "session_id", s.thread.ID())
	}
}

// run hands control to the hardware encoder until it returns, then ends the
// stream downstream.
func (s *session) run() (err error) {
	s.machine.MarkRunning()
	defer func() {
		if err != nil {
			s.errMu.Lock()
			s.runErr = err
			s.errMu.Unlock()
		}
		// wake a producer blocked on the pair in flight
		s.cell.Close()
		s.machine.Stop()
		if err != nil {
			slog.Error("encoder: driver failed", "session_id", s.thread.ID(), "error", err)
			s.elem.metrics.IncError(metrics.DirectionEncode, codec.Classify(err).String())
			s.elem.reportError(s, err)
		}
		s.endOfStream()
	}()

	if err := s.encoder.Run(encoderIO{s}); err != nil {
		return fmt.Errorf("encoder: run: %w", err)
	}
	return nil
}

func (s *session) driverErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.runErr
}

// endOfStream is sent once per session, and not at all after an abort.
func (s *session) endOfStream() {
	s.eosOnce.Do(func() {
		if s.aborted.Load() {
			return
		}
		if err := s.elem.downstream.EndOfStream(); err != nil {
			slog.Warn("encoder: downstream end of stream failed",
				"session_id", s.thread.ID(),
				"error", err,
			)
		}
		s.elem.notify(notify.Event{Kind: notify.KindEndOfStream, Session: s.thread.ID()})
	})
}

// close aborts: the pair in flight is dropped, the driver is joined and the
// encoder released.
func (s *session) close() error {
	s.aborted.Store(true)
	s.cell.Close()
	s.machine.Stop()

	var errs []error
	if err := s.thread.Join(); err != nil && !errors.Is(err, codec.ErrClosed) {
		errs = append(errs, err)
	}
	if err := s.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("encoder: close: %w", err))
	}
	return errors.Join(errs...)
}

// encoderIO adapts the session to the encoder's pull/push callbacks. Both run
// on the driver goroutine.
type encoderIO struct{ s *session }

func (io encoderIO) ProvideInput() (codec.FramePair, bool) {
	return io.s.cell.Take()
}

func (io encoderIO) WriteOutput(data []byte) error {
	s := io.s
	if len(data) == 0 {
		s.emptyOutputs.Add(1)
		return nil
	}

	n, ts, dur := s.timeline.Next()
	unit := codec.EncodedUnit{
		Index:     int(n),
		Data:      append([]byte(nil), data...),
		Timestamp: ts,
		Duration:  dur,
	}
	if err := s.elem.downstream.Push(unit); err != nil {
		return fmt.Errorf("encoder: downstream push of unit %d: %w", n, err)
	}

	s.unitsOut.Add(1)
	s.bytesOut.Add(uint64(len(data)))
	s.lastTS.Store(int64(ts))
	s.elem.metrics.ObserveEncoded(len(data))

	slog.Debug("encoder: unit out",
		"session_id", s.thread.ID(),
		"index", n,
		"bytes", len(data),
		"timestamp", ts,
	)
	return nil
}
