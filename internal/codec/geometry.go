package codec

import (
	"fmt"
	"time"
)

// FrameRate is a rational frames-per-second value (Num/Den).
type FrameRate struct {
	Num int
	Den int
}

// Valid reports whether both terms are positive.
func (r FrameRate) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// FPS returns the rate as a float for logs and metrics.
func (r FrameRate) FPS() float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// FrameDuration is the nominal interval between frames: Den/Num seconds.
// Zero for an invalid rate.
func (r FrameRate) FrameDuration() time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(r.Den) / int64(r.Num))
}

func (r FrameRate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParseFrameRate parses "30", "30/1" or "30000/1001".
func ParseFrameRate(s string) (FrameRate, error) {
	var r FrameRate
	if n, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err == nil && n == 2 {
		if !r.Valid() {
			return FrameRate{}, fmt.Errorf("codec: frame rate %q must be positive", s)
		}
		return r, nil
	}
	if _, err := fmt.Sscanf(s, "%d", &r.Num); err != nil {
		return FrameRate{}, fmt.Errorf("codec: frame rate %q: %w", s, err)
	}
	r.Den = 1
	if !r.Valid() {
		return FrameRate{}, fmt.Errorf("codec: frame rate %q must be positive", s)
	}
	return r, nil
}

// Geometry is the fixed picture layout of a session.
type Geometry struct {
	Width  int
	Height int
	Rate   FrameRate
}

// LumaSize is the size of the Y plane in bytes.
func (g Geometry) LumaSize() int {
	return g.Width * g.Height
}

// ChromaSize is the size of the combined 4:2:0 chroma plane(s) in bytes.
func (g Geometry) ChromaSize() int {
	return g.Width * g.Height / 2
}

// FrameSize is the size of one raw 4:2:0 frame.
func (g Geometry) FrameSize() int {
	return g.LumaSize() + g.ChromaSize()
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d@%s", g.Width, g.Height, g.Rate)
}
