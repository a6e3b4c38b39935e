// Package pacing paces decoded frames against a real-time clock and gates
// them while playback is paused.
//
// The scheme is feed-forward: every frame recomputes the absolute gap between
// stream time and wall time since the first frame, so one long stall never
// accumulates into drift.
//
//	elapsed_wall   = now − wall_origin
//	elapsed_stream = (unit_timestamp + played × frame_duration) − stream_origin
//	sleep          = max(0, elapsed_stream − elapsed_wall)
package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/e7canasta/shvideo/internal/codec"
)

// Pacer holds the pacing state of one decode session. Pace, BeginUnit and
// FrameDone run on the driver goroutine; Snapshot and SetClock may be called
// from any goroutine.
type Pacer struct {
	gate     *Gate
	frameDur time.Duration

	mu    sync.Mutex
	clock Clock

	// --- Origin (set on first frame, cleared by Reset) ---

	started      bool
	wallOrigin   time.Time
	streamOrigin time.Duration

	// --- Current unit ---

	unitTS time.Duration
	played int

	// --- Stats ---

	rendered   uint64
	late       uint64
	totalSleep time.Duration
	lastSleep  time.Duration
	window     *Window
}

// Tick is the pacing decision for one frame.
type Tick struct {
	Sleep time.Duration
	// First is set for the frame that recorded the origin.
	First bool
	// Late is set when the frame was already past due.
	Late bool
}

// Snapshot is a point-in-time view of the pacer.
type Snapshot struct {
	Started      bool
	Rendered     uint64
	Late         uint64
	TotalSleep   time.Duration
	LastSleep    time.Duration
	StreamOrigin time.Duration
	Playback     *PlaybackStats
}

// NewPacer creates a pacer for the negotiated frame rate. clock nil means
// the system clock.
func NewPacer(clock Clock, gate *Gate, rate codec.FrameRate) (*Pacer, error) {
	if !rate.Valid() {
		return nil, fmt.Errorf("pacing: invalid frame rate %s", rate)
	}
	if gate == nil {
		gate = NewGate(false)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{
		gate:     gate,
		frameDur: rate.FrameDuration(),
		clock:    clock,
		window:   NewWindow(defaultWindowSize, rate.FrameDuration()),
	}, nil
}

// SetClock replaces the time source. nil selects the system clock.
func (p *Pacer) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	p.mu.Lock()
	p.clock = c
	p.mu.Unlock()
}

// FrameDuration is the nominal frame interval.
func (p *Pacer) FrameDuration() time.Duration { return p.frameDur }

// BeginUnit resets the per-unit frame counter. ts is the batch timestamp of the
// unit about to be decoded; a negative ts continues from the last frame paced.
func (p *Pacer) BeginUnit(ts time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ts < 0 {
		ts = p.nextPositionLocked()
	}
	p.unitTS = ts
	p.played = 0
}

// Played is the number of frames shown for the current unit.
func (p *Pacer) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

// Pace blocks until the next frame of the current unit is due.
//
// Steps:
//  1. Wait on the pause gate (returns codec.ErrClosed if the gate closes)
//  2. First frame: record origins, no sleep
//  3. Otherwise sleep max(0, elapsed_stream − elapsed_wall)
//
// The wall clock is read after the gate, so time spent paused counts as
// elapsed wall time.
func (p *Pacer) Pace(ctx context.Context) (Tick, error) {
	if !p.gate.Wait() {
		return Tick{}, fmt.Errorf("pacing: %w", codec.ErrClosed)
	}

	p.mu.Lock()
	clock := p.clock
	now := clock.Now()
	position := p.unitTS + time.Duration(p.played)*p.frameDur

	if !p.started {
		p.started = true
		p.wallOrigin = now
		p.streamOrigin = position
		p.lastSleep = 0
		p.mu.Unlock()
		return Tick{First: true}, nil
	}

	elapsedWall := now.Sub(p.wallOrigin)
	elapsedStream := position - p.streamOrigin
	sleep := max(elapsedStream-elapsedWall, 0)
	tick := Tick{Sleep: sleep, Late: elapsedStream < elapsedWall}
	if tick.Late {
		p.late++
	}
	p.lastSleep = sleep
	p.totalSleep += sleep
	p.mu.Unlock()

	if sleep > 0 {
		if err := clock.Sleep(ctx, sleep); err != nil {
			return tick, fmt.Errorf("pacing: sleep: %w", err)
		}
	}
	return tick, nil
}

// FrameDone records that the frame left the display stage, shown or not.
// The per-unit position advances either way.
func (p *Pacer) FrameDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.played++
	p.rendered++
	p.window.Add(p.clock.Now())
}

// Snapshot returns the current counters and playback statistics.
func (p *Pacer) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		Started:      p.started,
		Rendered:     p.rendered,
		Late:         p.late,
		TotalSleep:   p.totalSleep,
		LastSleep:    p.lastSleep,
		StreamOrigin: p.streamOrigin,
		Playback:     p.window.Stats(),
	}
}

func (p *Pacer) nextPositionLocked() time.Duration {
	if !p.started {
		return 0
	}
	return p.unitTS + time.Duration(p.played)*p.frameDur
}
