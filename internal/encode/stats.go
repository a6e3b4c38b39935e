package encode

import (
	"time"

	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/codec"
	"github.com/e7canasta/shvideo/internal/lifecycle"
)

// Stats is a snapshot of the encoder element.
type Stats struct {
	SessionID     string
	State         lifecycle.State
	Params        codec.EncoderParams
	FramesIn      uint64
	UnitsOut      uint64
	BytesOut      uint64
	EmptyOutputs  uint64
	LastTimestamp time.Duration
	Cell          cell.PairStats
}

// Stats returns the counters of the current session; zero if none.
func (e *Element) Stats() Stats {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()

	if sess == nil {
		return Stats{State: lifecycle.StateIdle}
	}
	return sess.stats()
}

func (s *session) stats() Stats {
	return Stats{
		SessionID:     s.thread.ID(),
		State:         s.machine.State(),
		Params:        s.params,
		FramesIn:      s.framesIn.Load(),
		UnitsOut:      s.unitsOut.Load(),
		BytesOut:      s.bytesOut.Load(),
		EmptyOutputs:  s.emptyOutputs.Load(),
		LastTimestamp: time.Duration(s.lastTS.Load()),
		Cell:          s.cell.Stats(),
	}
}
