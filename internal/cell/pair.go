package cell

import (
	"fmt"
	"sync"

	"github.com/e7canasta/shvideo/internal/codec"
)

// PairCell is the encode-side double buffer: at most one frame pair in flight
// between the splitter and the encoder. Put blocks while a pair is waiting;
// Take empties both planes at once.
type PairCell struct {
	mu       sync.Mutex
	ready    *sync.Cond
	free     *sync.Cond
	pair     *codec.FramePair
	draining bool
	closed   bool

	puts  uint64
	takes uint64
	waits uint64
}

// PairStats is a snapshot of PairCell counters.
type PairStats struct {
	Puts          uint64
	Takes         uint64
	ProducerWaits uint64
	InFlight      bool
}

// NewPairCell creates an empty double buffer.
func NewPairCell() *PairCell {
	c := &PairCell{}
	c.ready = sync.NewCond(&c.mu)
	c.free = sync.NewCond(&c.mu)
	return c
}

// Put stores a pair, waiting for the previous one to be consumed.
func (c *PairCell) Put(p codec.FramePair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	waited := false
	for c.pair != nil && !c.closed && !c.draining {
		if !waited {
			c.waits++
			waited = true
		}
		c.free.Wait()
	}
	if c.closed {
		return fmt.Errorf("cell: put pair: %w", codec.ErrClosed)
	}
	if c.draining {
		return fmt.Errorf("cell: put pair: %w", codec.ErrEndOfStream)
	}

	c.pair = &p
	c.puts++
	c.ready.Signal()
	return nil
}

// Take blocks for the next pair. ok=false once draining and empty, or closed.
func (c *PairCell) Take() (codec.FramePair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.pair == nil && !c.draining && !c.closed {
		c.ready.Wait()
	}
	if c.closed || c.pair == nil {
		return codec.FramePair{}, false
	}

	p := *c.pair
	c.pair = nil
	c.takes++
	c.free.Signal()
	return p, true
}

// Drain marks end of input. A pair already in flight is still delivered.
func (c *PairCell) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = true
	c.ready.Broadcast()
	c.free.Broadcast()
}

// Close aborts: the pair in flight is dropped and all waiters return.
func (c *PairCell) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pair = nil
	c.ready.Broadcast()
	c.free.Broadcast()
}

// Stats returns a snapshot of the counters.
func (c *PairCell) Stats() PairStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PairStats{
		Puts:          c.puts,
		Takes:         c.takes,
		ProducerWaits: c.waits,
		InFlight:      c.pair != nil,
	}
}
