package encode

import (
	"fmt"

	"github.com/e7canasta/shvideo/internal/chroma"
	"github.com/e7canasta/shvideo/internal/codec"
)

// Splitter turns one raw 4:2:0 frame (luma plane, then Cb block, then Cr
// block) into the luma/chroma pair the encoder consumes. Chroma is
// interleaved for codecs that want CbCr pairs and copied as is otherwise.
//
// The returned planes are fresh buffers; the caller may reuse its frame.
type Splitter struct {
	geometry codec.Geometry
	layout   codec.ChromaLayout
	input    *Timeline
}

// NewSplitter creates a splitter for one session geometry.
func NewSplitter(g codec.Geometry, layout codec.ChromaLayout) (*Splitter, error) {
	tl, err := NewTimeline(g.Rate)
	if err != nil {
		return nil, err
	}
	return &Splitter{geometry: g, layout: layout, input: tl}, nil
}

// FrameSize is the only accepted frame length: w×h + w×h/2.
func (s *Splitter) FrameSize() int { return s.geometry.FrameSize() }

// Split validates the frame size and builds the next pair. A size mismatch
// returns codec.ErrFrameSize and consumes no frame index.
func (s *Splitter) Split(frame []byte) (codec.FramePair, error) {
	if len(frame) != s.FrameSize() {
		return codec.FramePair{}, fmt.Errorf("encoder: frame is %d bytes, %s needs %d: %w",
			len(frame), s.geometry, s.FrameSize(), codec.ErrFrameSize)
	}

	lumaSize := s.geometry.LumaSize()
	luma := make([]byte, lumaSize)
	copy(luma, frame[:lumaSize])

	planar := frame[lumaSize:]
	c := make([]byte, len(planar))
	switch s.layout {
	case codec.ChromaPlanar:
		copy(c, planar)
	default:
		if err := chroma.Interleave(c, planar); err != nil {
			return codec.FramePair{}, fmt.Errorf("encoder: %w: %w", codec.ErrFrameSize, err)
		}
	}

	_, ts, _ := s.input.Next()
	return codec.FramePair{Luma: luma, Chroma: c, Timestamp: ts}, nil
}
