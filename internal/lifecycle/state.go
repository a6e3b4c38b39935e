// Package lifecycle tracks the session state of a codec direction and owns
// its single driver goroutine.
//
// State machine:
//
//	Idle ──TryStart──▶ Starting ──MarkRunning──▶ Running
//	  │                   │                        │
//	  └───────────────────┴────── BeginDrain ──────┴──▶ Draining ──▶ Stopped
//
// Any state may jump to Stopped (abort). Transitions are compare-and-swap so
// the producer and the driver never disagree on who started the consumer.
package lifecycle

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle phase of one codec direction.
type State int32

const (
	// StateIdle: negotiated (or not), no driver goroutine yet.
	StateIdle State = iota
	// StateStarting: the start decision was taken, goroutine being spawned.
	StateStarting
	// StateRunning: driver goroutine consuming.
	StateRunning
	// StateDraining: end of stream seen, consumer emptying the cell.
	StateDraining
	// StateStopped: terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConsumerActive reports whether a driver goroutine has been (or is being) started.
func (s State) ConsumerActive() bool {
	return s == StateStarting || s == StateRunning
}

// Machine is a lock-free state holder. The zero value is Idle.
type Machine struct {
	state    atomic.Int32
	consumer atomic.Bool // a driver was started at some point
}

// State returns the current phase.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// TryStart performs Idle→Starting. Only the caller that wins the swap may
// spawn the driver.
func (m *Machine) TryStart() bool {
	if m.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		m.consumer.Store(true)
		return true
	}
	return false
}

// MarkRunning performs Starting→Running once the goroutine is live.
func (m *Machine) MarkRunning() bool {
	return m.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
}

// BeginDrain moves Idle, Starting or Running to Draining and returns the
// state it left. needStart is true when no driver was ever started, in which
// case the caller owns starting it now.
func (m *Machine) BeginDrain() (prev State, needStart bool) {
	for {
		cur := State(m.state.Load())
		switch cur {
		case StateDraining, StateStopped:
			return cur, false
		}
		if m.state.CompareAndSwap(int32(cur), int32(StateDraining)) {
			if cur == StateIdle {
				m.consumer.Store(true)
				return cur, true
			}
			return cur, false
		}
	}
}

// Stop moves to the terminal state and returns the previous one.
func (m *Machine) Stop() State {
	return State(m.state.Swap(int32(StateStopped)))
}

// ConsumerStarted reports whether a driver start was ever decided.
func (m *Machine) ConsumerStarted() bool {
	return m.consumer.Load()
}
