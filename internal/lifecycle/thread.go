package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thread owns one driver goroutine: started at most once, joined at most once.
// Join on a thread that never started returns immediately and prevents any
// later Start.
type Thread struct {
	name string
	id   string

	mu      sync.Mutex
	started bool
	sealed  bool
	done    chan struct{}
	err     error
}

// NewThread creates an unstarted driver thread. The session ID tags every log
// line of the goroutine.
func NewThread(name string) *Thread {
	return &Thread{
		name: name,
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// ID is the session identifier.
func (t *Thread) ID() string { return t.id }

// Start spawns fn. Returns false if the thread was already started or joined.
func (t *Thread) Start(fn func() error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.sealed {
		return false
	}
	t.started = true

	go func() {
		start := time.Now()
		slog.Debug(t.name+": driver thread started", "session_id", t.id)

		err := fn()

		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)

		slog.Debug(t.name+": driver thread exited",
			"session_id", t.id,
			"uptime", time.Since(start),
			"error", err,
		)
	}()
	return true
}

// Started reports whether the goroutine was spawned.
func (t *Thread) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Done is closed when the goroutine returns. Never closed for an unstarted thread.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Join waits for the goroutine and returns its error. Safe to call repeatedly
// and from several goroutines.
func (t *Thread) Join() error {
	t.mu.Lock()
	t.sealed = true
	started := t.started
	t.mu.Unlock()

	if !started {
		return nil
	}
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
