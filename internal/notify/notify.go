// Package notify carries session notifications (buffering progress, end of
// stream, errors, negotiated format) from the codec elements to whoever
// watches the pipeline: logs, an MQTT broker, tests.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind is the notification type.
type Kind string

const (
	KindBuffering   Kind = "buffering"
	KindEndOfStream Kind = "eos"
	KindError       Kind = "error"
	KindFormat      Kind = "format"
	KindState       Kind = "state"
)

// Event is one notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind     Kind      `json:"kind" msgpack:"kind"`
	Source   string    `json:"source" msgpack:"source"`
	Session  string    `json:"session,omitempty" msgpack:"session,omitempty"`
	Percent  int       `json:"percent,omitempty" msgpack:"percent,omitempty"`
	Message  string    `json:"message,omitempty" msgpack:"message,omitempty"`
	Severity string    `json:"severity,omitempty" msgpack:"severity,omitempty"`
	At       time.Time `json:"at" msgpack:"at"`
}

// Notifier receives events. Notify must not block for long: it runs on the
// producer and driver goroutines.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(Event) {}

// Log writes events through slog. Buffering progress goes to debug level.
type Log struct{}

func (Log) Notify(e Event) {
	attrs := []any{"source", e.Source, "kind", e.Kind}
	if e.Session != "" {
		attrs = append(attrs, "session_id", e.Session)
	}
	switch e.Kind {
	case KindBuffering:
		slog.Debug(e.Source+": buffering", append(attrs, "percent", e.Percent)...)
	case KindError:
		slog.Error(e.Source+": "+e.Message, append(attrs, "severity", e.Severity)...)
	case KindEndOfStream:
		slog.Info(e.Source+": end of stream", attrs...)
	default:
		slog.Info(e.Source+": "+e.Message, attrs...)
	}
}

// Multi fans an event out to several notifiers, in order.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the events received so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the events of one kind.
func (r *Recorder) Of(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Percents returns the buffering percentages in order.
func (r *Recorder) Percents() []int {
	var out []int
	for _, e := range r.Of(KindBuffering) {
		out = append(out, e.Percent)
	}
	return out
}
