// Package cell implements the single-slot hand-off between a streaming
// producer and the codec driver goroutine.
//
// Two cells are provided:
//   - PendingCell: decode direction. Accumulates compressed units into one
//     pending batch and releases it once the watermark is reached.
//   - PairCell: encode direction. Holds one luma/chroma frame pair in flight.
//
// Both follow the same mailbox discipline: one mutex, a condition for "data
// ready" (consumer side) and a condition for "slot drained" (producer side),
// nil slot meaning consumed.
package cell

import (
	"time"
)

// NoTimestamp marks a unit without presentation timestamp.
const NoTimestamp time.Duration = -1

// Unit is a contiguous chunk of compressed stream data.
//
// Ownership transfers with the pointer: after Submit the producer must not
// touch the Unit or its Data again, and the consumer owns what Take returns.
type Unit struct {
	// Data holds the compressed bytes. Never empty for a submitted unit.
	Data []byte

	// Timestamp is the presentation timestamp of the first frame in Data,
	// on the upstream clock. NoTimestamp if unknown.
	Timestamp time.Duration

	// Duration is informational (sum of merged unit durations).
	Duration time.Duration

	// Frames is the number of upstream units merged into this one.
	Frames int

	// TraceID tags the first upstream unit for log correlation.
	TraceID string
}

// Len is the payload size in bytes.
func (u *Unit) Len() int {
	if u == nil {
		return 0
	}
	return len(u.Data)
}

// merge appends next to u. The first timestamp wins; next's is dropped.
func (u *Unit) merge(next *Unit) {
	u.Data = append(u.Data, next.Data...)
	u.Frames += max(1, next.Frames)
	if next.Duration > 0 {
		u.Duration += next.Duration
	}
}
