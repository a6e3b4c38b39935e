package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/pacing"
)

// session is one open decoder with its cell, pacer, gate and driver thread.
// Geometry and format are fixed for its lifetime.
type session struct {
	sink     *Sink
	decoder  codec.Decoder
	geometry codec.Geometry
	format   codec.Format

	machine *lifecycle.Machine
	cell    *cell.PendingCell
	gate    *pacing.Gate
	pacer   *pacing.Pacer
	thread  *lifecycle.Thread

	ctx    context.Context
	cancel context.CancelFunc

	eosOnce sync.Once
	eosErr  error

	// --- Stats (atomic) ---

	units         atomic.Uint64
	framesDecoded atomic.Uint64
	framesShown   atomic.Uint64
	lateFrames    atomic.Uint64
	skippedBytes  atomic.Uint64
	partialUnits  atomic.Uint64
	decodeErrors  atomic.Uint64
	displayErrors atomic.Uint64
}

// newSession builds the session state. Called with s.mu held.
func newSession(s *Sink, dec codec.Decoder, geo codec.Geometry, format codec.Format) (*session, error) {
	machine := &lifecycle.Machine{}
	gate := pacing.NewGate(!s.playing)
	pacer, err := pacing.NewPacer(s.clock, gate, geo.Rate)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		sink:     s,
		decoder:  dec,
		geometry: geo,
		format:   format,
		machine:  machine,
		cell:     cell.NewPendingCell(int(s.bufferKB)*1024, machine),
		gate:     gate,
		pacer:    pacer,
		thread:   lifecycle.NewThread(Source),
		ctx:      ctx,
		cancel:   cancel,
	}
	dec.SetFrameHandler(sess.onFrame)
	return sess, nil
}

// start spawns the driver. Only the caller that won Idle→Starting (or the
// drain that found no driver) calls it; a second call is a no-op.
func (d *session) start() {
	if d.thread.Start(d.run) {
		slog.Debug("decode-sink: driver starting",
			"session_id", d.thread.ID(),
			"pending_bytes", d.cell.Len(),
		)
	}
}

// run is the driver loop: take a batch, decode it, account for unconsumed
// bytes; flush the decoder once the cell reports end of stream.
func (d *session) run() (err error) {
	d.machine.MarkRunning()
	defer func() {
		if err != nil {
			// unblock a producer waiting on back-pressure; later pushes fail
			d.cell.Close()
			d.sink.reportError(d, err)
		}
		d.machine.Stop()
	}()

	for {
		u, ok := d.cell.Take()
		if !ok {
			break
		}
		d.units.Add(1)
		if err := d.decodeUnit(u); err != nil {
			return err
		}
	}

	if d.ctx.Err() != nil {
		// aborted: no flush, pictures would go to a closed display
		return nil
	}
	if err := d.decoder.Finalize(); err != nil && d.ctx.Err() == nil {
		return fmt.Errorf("decode-sink: finalize: %w", err)
	}
	return nil
}

func (d *session) decodeUnit(u *cell.Unit) error {
	d.pacer.BeginUnit(u.Timestamp)

	consumed, err := d.decoder.Decode(u.Data)
	if err != nil {
		if d.ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, codec.ErrClosed) {
			slog.Warn("decode-sink: display closed, stopping driver",
				"session_id", d.thread.ID(),
				"frames_shown", d.framesShown.Load(),
			)
			return fmt.Errorf("decode-sink: decode: %w", err)
		}
		if codec.Classify(err) == codec.SeverityFatal {
			return fmt.Errorf("decode-sink: decode: %w", err)
		}
		d.decodeErrors.Add(1)
		slog.Warn("decode-sink: decode error, continuing",
			"session_id", d.thread.ID(),
			"error", err,
			"unit_bytes", u.Len(),
		)
		d.sink.reportError(d, err)
	}

	if skipped := u.Len() - consumed; skipped > 0 {
		// frame count is advisory: the decoder decides what it consumed
		played := d.pacer.Played()
		d.partialUnits.Add(1)
		d.skippedBytes.Add(uint64(skipped))
		d.sink.metrics.AddSkippedBytes(skipped)
		slog.Debug("decode-sink: partial consumption, skipping remainder",
			"session_id", d.thread.ID(),
			"unit_bytes", u.Len(),
			"consumed", consumed,
			"skipped_bytes", skipped,
			"unit_frames", u.Frames,
			"frames_played", played,
			"frames_skipped_est", max(u.Frames-played, 0),
			"decoder_frames", d.decoder.FrameCount(),
		)
	}
	return nil
}

// onFrame runs inline on the driver goroutine for every decoded picture:
// pause gate, pacing sleep, display, bookkeeping.
func (d *session) onFrame(pic codec.Picture) error {
	d.framesDecoded.Add(1)
	if d.gate.Paused() {
		d.sink.metrics.IncPauseWait()
	}

	tick, err := d.pacer.Pace(d.ctx)
	if err != nil {
		return fmt.Errorf("decode-sink: %w", codec.ErrClosed)
	}
	if tick.Late {
		d.lateFrames.Add(1)
	}

	shown := true
	if err := d.sink.display.Show(pic); err != nil {
		shown = false
		d.displayErrors.Add(1)
		if errors.Is(err, codec.ErrClosed) {
			return err
		}
		slog.Warn("decode-sink: display failed, frame dropped",
			"session_id", d.thread.ID(),
			"frame", pic.Index,
			"error", err,
		)
	} else {
		d.framesShown.Add(1)
	}

	d.pacer.FrameDone()
	d.sink.metrics.ObserveFrame(tick.Sleep, tick.Late, shown)
	return nil
}

// close aborts the session: wakes every waiter, joins the driver and closes
// the decoder.
func (d *session) close() error {
	d.cancel()
	d.gate.Close()
	d.cell.Close()
	d.machine.Stop()

	var errs []error
	if err := d.thread.Join(); err != nil && !errors.Is(err, codec.ErrClosed) {
		errs = append(errs, err)
	}
	if err := d.decoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("decode-sink: close decoder: %w", err))
	}
	slog.Debug("decode-sink: session closed", "session_id", d.thread.ID())
	return errors.Join(errs...)
}
