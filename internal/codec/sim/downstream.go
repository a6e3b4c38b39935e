package sim

import (
	"fmt"
	"io"
	"sync"

	"github.com/e7canasta/shvideo/internal/codec"
)

// Downstream records encoder output.
type Downstream struct {
	// PushErr, when set, fails every Push.
	PushErr error

	mu     sync.Mutex
	format *codec.OutputFormat
	units  []codec.EncodedUnit
	eos    int
	// set when a unit arrived before SetFormat
	formatLate bool
}

func (d *Downstream) SetFormat(f codec.OutputFormat) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.format = &f
	return nil
}

func (d *Downstream) Push(u codec.EncodedUnit) error {
	if d.PushErr != nil {
		return d.PushErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format == nil {
		d.formatLate = true
	}
	d.units = append(d.units, u)
	return nil
}

func (d *Downstream) EndOfStream() error {
	d.mu.Lock()
	d.eos++
	d.mu.Unlock()
	return nil
}

// Format returns the announced format, nil if none.
func (d *Downstream) Format() *codec.OutputFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// Units returns a copy of the received units.
func (d *Downstream) Units() []codec.EncodedUnit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]codec.EncodedUnit(nil), d.units...)
}

// EOSCount is the number of end-of-stream signals received.
func (d *Downstream) EOSCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eos
}

// FormatFirst reports whether the format was announced before any unit.
func (d *Downstream) FormatFirst() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.formatLate
}

// WriterDownstream writes the elementary stream to w.
type WriterDownstream struct {
	W io.Writer

	mu    sync.Mutex
	bytes int64
	units int
	done  bool
}

func (w *WriterDownstream) SetFormat(codec.OutputFormat) error { return nil }

func (w *WriterDownstream) Push(u codec.EncodedUnit) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("writer downstream: %w", codec.ErrEndOfStream)
	}
	n, err := w.W.Write(u.Data)
	w.bytes += int64(n)
	w.units++
	return err
}

func (w *WriterDownstream) EndOfStream() error {
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	return nil
}

// Written returns the number of units and bytes written.
func (w *WriterDownstream) Written() (units int, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.units, w.bytes
}
