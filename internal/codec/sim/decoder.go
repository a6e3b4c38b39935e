// Package sim provides software stand-ins for the hardware codec, the display
// and the downstream consumer. They honor the collaborator contracts of
// package codec without doing any real compression, which makes the
// streaming core runnable on a host without the SH-Mobile VPU.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/e7canasta/shvideo/internal/codec"
)

// DecoderConfig shapes the simulated decoder.
type DecoderConfig struct {
	// FrameBytes is the compressed size of one frame. Decode consumes whole
	// frames only and leaves the tail unconsumed.
	FrameBytes int
	// HoldLast keeps the most recent picture until the next one or Finalize,
	// like a decoder with one frame of reorder delay.
	HoldLast bool
	// OpenErr, when set, makes the factory fail.
	OpenErr error
}

// Decoder is a fixed-frame-size decoder producing patterned planes.
type Decoder struct {
	cfg    DecoderConfig
	format codec.Format
	geo    codec.Geometry

	mu      sync.Mutex
	handler codec.FrameHandler
	count   int
	held    *codec.Picture
	closed  bool
}

// NewDecoderFactory returns a codec.DecoderFactory for cfg.
func NewDecoderFactory(cfg DecoderConfig) codec.DecoderFactory {
	return func(f codec.Format, g codec.Geometry) (codec.Decoder, error) {
		return NewDecoder(cfg, f, g)
	}
}

// NewDecoder opens a simulated decoder session.
func NewDecoder(cfg DecoderConfig, f codec.Format, g codec.Geometry) (*Decoder, error) {
	if cfg.OpenErr != nil {
		return nil, fmt.Errorf("sim decoder open: %w", cfg.OpenErr)
	}
	if f == codec.FormatUnknown {
		return nil, fmt.Errorf("sim decoder open: %w", codec.ErrUnsupportedFormat)
	}
	if cfg.FrameBytes <= 0 {
		return nil, fmt.Errorf("sim decoder open: frame size %d: %w", cfg.FrameBytes, codec.ErrHardware)
	}
	return &Decoder{cfg: cfg, format: f, geo: g}, nil
}

func (d *Decoder) SetFrameHandler(h codec.FrameHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// Decode emits one picture per whole frame in data. The handler runs inline.
func (d *Decoder) Decode(data []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, codec.ErrClosed
	}
	h := d.handler
	d.mu.Unlock()

	consumed := 0
	for len(data)-consumed >= d.cfg.FrameBytes {
		pic := d.picture(data[consumed])
		consumed += d.cfg.FrameBytes
		if err := d.emit(h, pic); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// Finalize flushes the held picture, if any.
func (d *Decoder) Finalize() error {
	d.mu.Lock()
	held := d.held
	d.held = nil
	h := d.handler
	d.mu.Unlock()

	if held == nil || h == nil {
		return nil
	}
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	return h(*held)
}

func (d *Decoder) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("sim decoder: already closed")
	}
	d.closed = true
	d.held = nil
	return nil
}

func (d *Decoder) emit(h codec.FrameHandler, pic codec.Picture) error {
	if h == nil {
		return nil
	}
	if d.cfg.HoldLast {
		d.mu.Lock()
		prev := d.held
		d.held = &pic
		if prev != nil {
			d.count++
		}
		d.mu.Unlock()
		if prev == nil {
			return nil
		}
		return h(*prev)
	}

	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	return h(pic)
}

// picture builds a frame whose planes are filled with the first compressed
// byte, so tests can tell frames apart.
func (d *Decoder) picture(tag byte) codec.Picture {
	d.mu.Lock()
	idx := d.count
	if d.held != nil {
		idx++
	}
	d.mu.Unlock()

	luma := make([]byte, d.geo.LumaSize())
	for i := range luma {
		luma[i] = tag
	}
	chroma := make([]byte, d.geo.ChromaSize())
	for i := range chroma {
		chroma[i] = 0x80
	}
	return codec.Picture{
		Index:  idx,
		Width:  d.geo.Width,
		Height: d.geo.Height,
		Luma:   luma,
		Chroma: chroma,
	}
}
