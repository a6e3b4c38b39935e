// Package gstdisplay shows decoded pictures through a GStreamer pipeline.
// It is the display collaborator used by the CLI when a real window is
// wanted; tests use the recording display from codec/sim.
package gstdisplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/shvideo/internal/codec"
)

// Config selects the sink element.
type Config struct {
	// Sink is the GStreamer video sink factory name; DefaultSink if empty.
	Sink string
}

// Display implements codec.Display on top of appsrc. Configure builds and
// starts the pipeline; Show pushes one NV12 picture; Close tears down.
type Display struct {
	cfg Config

	mu       sync.Mutex
	elements *pipelineElements
	geometry codec.Geometry
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool

	busErr      atomic.Pointer[busError]
	busWarnings atomic.Uint64
	shown       atomic.Uint64
}

// New returns an unconfigured display.
func New(cfg Config) *Display {
	return &Display{cfg: cfg}
}

// Configure builds the pipeline for g and sets it to PLAYING. A display is
// configured once; reconfiguring rebuilds the pipeline.
func (d *Display) Configure(g codec.Geometry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return codec.ErrClosed
	}
	d.teardownLocked()

	el, err := createPipeline(g, d.cfg.Sink)
	if err != nil {
		return fmt.Errorf("gst-display: %w", err)
	}
	if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
		_ = destroyPipeline(el)
		return fmt.Errorf("gst-display: start pipeline: %w", err)
	}

	d.busErr.Store(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitorBus(ctx, el.pipeline, d.recordBusError)
	}()

	d.elements = el
	d.geometry = g
	d.cancel = cancel
	d.done = done

	slog.Info("gst-display: configured",
		"geometry", g.String(),
		"sink", d.cfg.Sink,
	)
	return nil
}

// recordBusError keeps the first fatal bus error; later Show calls return it.
// Non-fatal errors are only counted.
func (d *Display) recordBusError(be *busError) {
	if be.severity != codec.SeverityFatal {
		d.busWarnings.Add(1)
		return
	}
	d.busErr.CompareAndSwap(nil, be)
}

// Show pushes one picture. Returns the first fatal bus error once one was
// posted, codec.ErrClosed after Close.
func (d *Display) Show(p codec.Picture) error {
	if be := d.busErr.Load(); be != nil {
		return be
	}

	d.mu.Lock()
	el := d.elements
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return codec.ErrClosed
	}
	if el == nil {
		return fmt.Errorf("gst-display: show before configure: %w", codec.ErrNotNegotiated)
	}

	data := make([]byte, 0, len(p.Luma)+len(p.Chroma))
	data = append(data, p.Luma...)
	data = append(data, p.Chroma...)

	switch ret := el.src.PushBuffer(gst.NewBufferFromBytes(data)); ret {
	case gst.FlowOK:
		d.shown.Add(1)
		return nil
	case gst.FlowFlushing, gst.FlowEOS:
		return codec.ErrClosed
	default:
		return fmt.Errorf("gst-display: push frame %d: flow %v", p.Index, ret)
	}
}

// Shown is the number of pictures accepted by the pipeline.
func (d *Display) Shown() uint64 { return d.shown.Load() }

// BusWarnings is the number of non-fatal errors posted on the bus.
func (d *Display) BusWarnings() uint64 { return d.busWarnings.Load() }

// Close ends the stream and releases the pipeline. Idempotent.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.teardownLocked()
	slog.Debug("gst-display: closed", "frames_shown", d.shown.Load())
	return err
}

func (d *Display) teardownLocked() error {
	if d.elements == nil {
		return nil
	}
	d.elements.src.EndStream()
	d.cancel()
	<-d.done

	err := destroyPipeline(d.elements)
	d.elements = nil
	if be := d.busErr.Load(); be != nil && be.severity == codec.SeverityFatal {
		err = errors.Join(err, be)
	}
	return err
}
