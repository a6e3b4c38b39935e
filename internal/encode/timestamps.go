package encode

import (
	"fmt"
	"time"

	"github.com/e7canasta/shvideo/internal/codec"
)

// Timeline stamps encoded units: unit n starts at n × frame duration and
// lasts one frame duration. Computed from the count, not accumulated, so
// rates like 30000/1001 do not drift.
type Timeline struct {
	rate codec.FrameRate
	fd   time.Duration
	n    int64
}

// NewTimeline returns a timeline for rate starting at unit 0.
func NewTimeline(rate codec.FrameRate) (*Timeline, error) {
	if !rate.Valid() {
		return nil, fmt.Errorf("encoder: timeline for framerate %s: %w", rate, codec.ErrNotNegotiated)
	}
	return &Timeline{rate: rate, fd: rate.FrameDuration()}, nil
}

// FrameDuration is the duration of every unit.
func (t *Timeline) FrameDuration() time.Duration { return t.fd }

// At returns the timestamp of unit n.
func (t *Timeline) At(n int64) time.Duration {
	return time.Duration(n * int64(time.Second) * int64(t.rate.Den) / int64(t.rate.Num))
}

// Next returns the index, timestamp and duration of the next unit.
func (t *Timeline) Next() (n int64, ts, dur time.Duration) {
	n = t.n
	t.n++
	return n, t.At(n), t.fd
}

// Count is the number of units stamped so far.
func (t *Timeline) Count() int64 { return t.n }
