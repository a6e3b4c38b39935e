package decode

import (
	"github.com/e7canasta/shvideo/internal/cell"
	"github.com/e7canasta/shvideo/internal/lifecycle"
	"github.com/e7canasta/shvideo/internal/pacing"
)

// Stats is a snapshot of the decode sink.
type Stats struct {
	SessionID     string
	State         lifecycle.State
	Units         uint64
	FramesDecoded uint64
	FramesShown   uint64
	LateFrames    uint64
	SkippedBytes  uint64
	PartialUnits  uint64
	DecodeErrors  uint64
	DisplayErrors uint64
	PauseWaits    uint64
	BufferPercent int
	Cell          cell.PendingStats
	Pacing        pacing.Snapshot
}

// Stats returns the counters of the current session; zero if none.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil {
		return Stats{State: lifecycle.StateIdle}
	}
	return sess.stats()
}

func (d *session) stats() Stats {
	waits, _ := d.gate.WaitStats()
	return Stats{
		SessionID:     d.thread.ID(),
		State:         d.machine.State(),
		Units:         d.units.Load(),
		FramesDecoded: d.framesDecoded.Load(),
		FramesShown:   d.framesShown.Load(),
		LateFrames:    d.lateFrames.Load(),
		SkippedBytes:  d.skippedBytes.Load(),
		PartialUnits:  d.partialUnits.Load(),
		DecodeErrors:  d.decodeErrors.Load(),
		DisplayErrors: d.displayErrors.Load(),
		PauseWaits:    waits,
		BufferPercent: d.cell.Percent(),
		Cell:          d.cell.Stats(),
		Pacing:        d.pacer.Snapshot(),
	}
}
