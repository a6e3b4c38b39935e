package sim

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/e7canasta/shvideo/internal/codec"
)

// EncoderConfig shapes the simulated encoder.
type EncoderConfig struct {
	// OpenErr, when set, makes the factory fail.
	OpenErr error
	// SkipEvery emits no output for every n-th input (n > 0), like a rate
	// controller dropping frames.
	SkipEvery int
}

// Encoder turns each frame pair into a small access unit:
//
//	start code | picture type | frame number (4 bytes BE) | crc32(luma‖chroma) (4 bytes BE)
type Encoder struct {
	cfg    EncoderConfig
	params codec.EncoderParams

	mu     sync.Mutex
	inputs []codec.FramePair
	closed bool
}

// NewEncoderFactory returns a codec.EncoderFactory for cfg.
func NewEncoderFactory(cfg EncoderConfig) codec.EncoderFactory {
	return func(p codec.EncoderParams) (codec.Encoder, error) {
		return NewEncoder(cfg, p)
	}
}

// NewEncoder opens a simulated encoder session.
func NewEncoder(cfg EncoderConfig, p codec.EncoderParams) (*Encoder, error) {
	if cfg.OpenErr != nil {
		return nil, fmt.Errorf("sim encoder open: %w", cfg.OpenErr)
	}
	if p.Format == codec.FormatUnknown {
		return nil, fmt.Errorf("sim encoder open: %w", codec.ErrUnsupportedFormat)
	}
	return &Encoder{cfg: cfg, params: p}, nil
}

// Params returns the configuration the encoder was opened with.
func (e *Encoder) Params() codec.EncoderParams { return e.params }

// Run pulls pairs until the input ends or WriteOutput fails.
func (e *Encoder) Run(io codec.EncoderIO) error {
	n := 0
	for {
		pair, ok := io.ProvideInput()
		if !ok {
			return nil
		}
		if len(pair.Luma) != e.params.Geometry.LumaSize() || len(pair.Chroma) != e.params.Geometry.ChromaSize() {
			return fmt.Errorf("sim encoder: plane sizes %d/%d: %w", len(pair.Luma), len(pair.Chroma), codec.ErrFrameSize)
		}

		e.mu.Lock()
		e.inputs = append(e.inputs, pair)
		e.mu.Unlock()

		n++
		if e.cfg.SkipEvery > 0 && n%e.cfg.SkipEvery == 0 {
			continue
		}
		if err := io.WriteOutput(e.accessUnit(n-1, pair)); err != nil {
			return err
		}
	}
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Inputs returns the pairs pulled so far.
func (e *Encoder) Inputs() []codec.FramePair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]codec.FramePair(nil), e.inputs...)
}

func (e *Encoder) accessUnit(frame int, pair codec.FramePair) []byte {
	var header []byte
	intra := e.params.IFrameInterval <= 0 || frame%e.params.IFrameInterval == 0
	switch e.params.Format {
	case codec.FormatH264:
		nal := byte(0x41)
		if intra {
			nal = 0x65
		}
		header = []byte{0, 0, 0, 1, nal}
	default:
		vop := byte(0x40)
		if !intra {
			vop = 0x50
		}
		header = []byte{0, 0, 1, 0xb6, vop}
	}

	sum := crc32.NewIEEE()
	sum.Write(pair.Luma)
	sum.Write(pair.Chroma)

	out := make([]byte, 0, len(header)+8)
	out = append(out, header...)
	out = binary.BigEndian.AppendUint32(out, uint32(frame))
	out = binary.BigEndian.AppendUint32(out, sum.Sum32())
	return out
}
