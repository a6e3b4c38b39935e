package pacing

import (
	"sync"
	"time"
)

// Gate suspends the pacing loop between frames while playback is paused.
// It has its own lock so pausing never contends with data submission.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool

	waits     uint64
	waitTotal time.Duration
}

// NewGate creates a gate, initially paused or open.
func NewGate(paused bool) *Gate {
	g := &Gate{paused: paused}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Pause closes the gate; the next frame boundary blocks.
func (g *Gate) Pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

// Resume opens the gate and releases a waiting frame.
func (g *Gate) Resume() {
	g.mu.Lock()
	g.paused = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Close releases waiters for good; Wait returns false from now on.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Paused reports the current state.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while paused. Returns false if the gate was closed.
func (g *Gate) Wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused && !g.closed {
		start := time.Now()
		g.waits++
		for g.paused && !g.closed {
			g.cond.Wait()
		}
		g.waitTotal += time.Since(start)
	}
	return !g.closed
}

// WaitStats returns how many frames were held and the total time held.
func (g *Gate) WaitStats() (waits uint64, total time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waits, g.waitTotal
}
