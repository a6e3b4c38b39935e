package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/e7canasta/shvideo/internal/codec"
)

// Shown is what the recording display remembers about one picture.
type Shown struct {
	Index int
	Tag   byte
	At    time.Time
}

// Display records every picture it is asked to show. The zero value is ready.
type Display struct {
	// ShowDelay simulates scan-out time.
	ShowDelay time.Duration
	// Now is the time source for Shown.At; time.Now when nil.
	Now func() time.Time
	// ConfigureErr, when set, fails Configure.
	ConfigureErr error

	mu       sync.Mutex
	geometry codec.Geometry
	shown    []Shown
	closed   bool
}

func (d *Display) Configure(g codec.Geometry) error {
	if d.ConfigureErr != nil {
		return fmt.Errorf("sim display configure: %w", d.ConfigureErr)
	}
	d.mu.Lock()
	d.geometry = g
	d.mu.Unlock()
	return nil
}

func (d *Display) Show(p codec.Picture) error {
	if d.ShowDelay > 0 {
		time.Sleep(d.ShowDelay)
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return codec.ErrClosed
	}
	s := Shown{Index: p.Index, At: now()}
	if len(p.Luma) > 0 {
		s.Tag = p.Luma[0]
	}
	d.shown = append(d.shown, s)
	return nil
}

func (d *Display) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Geometry returns the configured source geometry.
func (d *Display) Geometry() codec.Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geometry
}

// Shown returns a copy of the pictures shown so far.
func (d *Display) Shown() []Shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Shown(nil), d.shown...)
}

// Closed reports whether Close was called.
func (d *Display) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
