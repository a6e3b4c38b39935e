package cell

import (
	"fmt"
	"sync"

	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/lifecycle"
)

// PendingCell is the decode-side frame buffer cell.
//
// Architecture:
//   - Single slot (pending *Unit), nil = consumed
//   - Merge policy: submits append to the pending unit, first timestamp wins
//   - Release policy: Take returns the batch once it reaches the watermark,
//     when pre-buffering is disabled, or when draining
//   - Back-pressure: a producer facing a full batch while the consumer is
//     active waits on drained
//
// The consumer start decision (Idle→Starting) is taken under mu, so exactly
// one Submit (or Drain) reports StartConsumer.
//
// Thread-safety: one producer goroutine, one consumer goroutine.
type PendingCell struct {
	// --- Mailbox State ---

	mu        sync.Mutex
	dataReady *sync.Cond // consumer waits here
	drained   *sync.Cond // producer waits here
	pending   *Unit
	flow      Flow
	closed    bool

	// --- Lifecycle ---

	machine *lifecycle.Machine

	// --- Operational Stats ---

	stats PendingStats
}

// PendingStats is a snapshot of cell counters.
type PendingStats struct {
	Submits       uint64
	Merges        uint64
	Takes         uint64
	ProducerWaits uint64
	BytesIn       uint64
	MaxBatch      int
	Pending       int
}

// NewPendingCell creates an empty cell with the given watermark in bytes.
// machine is shared with the owner that spawns the driver.
func NewPendingCell(watermark int, machine *lifecycle.Machine) *PendingCell {
	if watermark < 0 {
		watermark = 0
	}
	if machine == nil {
		machine = &lifecycle.Machine{}
	}
	c := &PendingCell{
		flow:    Flow{Watermark: watermark},
		machine: machine,
	}
	c.dataReady = sync.NewCond(&c.mu)
	c.drained = sync.NewCond(&c.mu)
	return c
}

// Watermark returns the pre-buffering threshold in bytes.
func (c *PendingCell) Watermark() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow.Watermark
}

// SetWatermark changes the threshold. Only allowed before the first submit.
func (c *PendingCell) SetWatermark(bytes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stats.Submits > 0 || c.machine.ConsumerStarted() {
		return fmt.Errorf("cell: set watermark: %w", codec.ErrStreaming)
	}
	c.flow.Watermark = max(bytes, 0)
	return nil
}

// Submit hands u to the cell. Ownership of u transfers to the cell.
//
// Algorithm:
//  1. Reject if closed or draining
//  2. While the consumer is active and the pending batch is full, wait on drained
//  3. Store u, or merge it into the pending batch
//  4. If the batch is releasable, try Idle→Starting (reported as StartConsumer)
//     and signal dataReady
//
// Empty units are accepted and ignored.
func (c *PendingCell) Submit(u *Unit) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return Progress{}, err
	}
	if u.Len() == 0 {
		return Progress{Percent: c.flow.Percent(c.pending.Len())}, nil
	}

	var p Progress
	for c.pending != nil && c.flow.Full(c.pending.Len()) && c.machine.State().ConsumerActive() {
		if !p.Waited {
			c.stats.ProducerWaits++
			p.Waited = true
		}
		c.drained.Wait()
		if err := c.checkOpen(); err != nil {
			return p, err
		}
	}

	c.stats.Submits++
	c.stats.BytesIn += uint64(len(u.Data))
	if c.pending == nil {
		if u.Frames < 1 {
			u.Frames = 1
		}
		c.pending = u
	} else {
		c.pending.merge(u)
		c.stats.Merges++
		p.Merged = true
	}

	n := c.pending.Len()
	c.stats.MaxBatch = max(c.stats.MaxBatch, n)
	p.Percent = c.flow.Percent(n)

	if c.flow.Ready(n) {
		if c.machine.TryStart() {
			p.StartConsumer = true
		}
		c.dataReady.Signal()
	}
	return p, nil
}

// Take blocks until a batch is releasable and removes it from the cell.
// Returns ok=false once the cell is draining and empty, or closed.
func (c *PendingCell) Take() (*Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.closed {
			return nil, false
		}
		if c.flow.Ready(c.pending.Len()) {
			break
		}
		if c.flow.Draining && c.pending == nil {
			return nil, false
		}
		c.dataReady.Wait()
	}

	u := c.pending
	c.pending = nil
	c.stats.Takes++
	c.drained.Broadcast()
	return u, true
}

// Drain marks end of stream: the remaining batch becomes releasable regardless
// of the watermark, and Take reports ok=false once it is empty.
//
// needStart is true when no consumer was ever started; the caller must start
// it now (the session ended before pre-buffering completed).
func (c *PendingCell) Drain() (needStart bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flow.Draining || c.closed {
		return false
	}
	c.flow.Draining = true
	_, needStart = c.machine.BeginDrain()

	c.dataReady.Broadcast()
	c.drained.Broadcast()
	return needStart
}

// Close aborts the cell: the pending batch is discarded and every waiter is
// woken. Idempotent.
func (c *PendingCell) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.pending = nil
	c.dataReady.Broadcast()
	c.drained.Broadcast()
}

// Len is the size in bytes of the pending batch.
func (c *PendingCell) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Percent is the current pre-buffering progress.
func (c *PendingCell) Percent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow.Percent(c.pending.Len())
}

// Stats returns a snapshot of the counters.
func (c *PendingCell) Stats() PendingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pending = c.pending.Len()
	return s
}

func (c *PendingCell) checkOpen() error {
	if c.closed {
		return fmt.Errorf("cell: submit: %w", codec.ErrClosed)
	}
	if c.flow.Draining {
		return fmt.Errorf("cell: submit: %w", codec.ErrEndOfStream)
	}
	return nil
}
