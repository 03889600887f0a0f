package trace

import (
	"sync"
	"time"

	"github.com/roach88/clapval/internal/osthread"
)

// Clock returns the current time in microseconds relative to an arbitrary
// origin.
type Clock interface {
	Now() int64
}

type monotonicClock struct {
	start time.Time
}

func (c monotonicClock) Now() int64 {
	return time.Since(c.start).Microseconds()
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces the monotonic wall clock.
func WithClock(c Clock) Option {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithThreadID replaces the function used to identify the calling thread.
func WithThreadID(fn func() uint64) Option {
	return func(r *Recorder) {
		r.threadID = fn
	}
}

// Recorder collects trace events for one test execution.
//
// Thread-safety: all methods are safe for concurrent use. A nil *Recorder
// records nothing.
type Recorder struct {
	mu       sync.Mutex
	clock    Clock
	threadID func() uint64
	events   []Event
	threads  map[uint64]string
	nextID   uint64
	last     int64
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		clock:    monotonicClock{start: time.Now()},
		threadID: osthread.ID,
		threads:  make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Span is an open call waiting for its return.
type Span struct {
	r    *Recorder
	id   uint64
	dir  Direction
	name string
}

// Call records the call half of an ABI call and returns the span that
// records the matching return.
func (r *Recorder) Call(dir Direction, name string, args ...Arg) Span {
	if r == nil {
		return Span{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.appendLocked(PhaseCall, dir, name, id, args)
	return Span{r: r, id: id, dir: dir, name: name}
}

// Return records the return half of the span.
func (s Span) Return(args ...Arg) {
	if s.r == nil {
		return
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.appendLocked(PhaseReturn, s.dir, s.name, s.id, args)
}

// appendLocked clamps the timestamp so the sequence never goes backwards,
// even if the clock does.
func (r *Recorder) appendLocked(phase Phase, dir Direction, name string, id uint64, args []Arg) {
	ts := r.clock.Now()
	if ts < r.last {
		ts = r.last
	}
	r.last = ts
	r.events = append(r.events, Event{
		Seq:           uint64(len(r.events)) + 1,
		Timestamp:     ts,
		Phase:         phase,
		Direction:     dir,
		Name:          name,
		Args:          args,
		CorrelationID: id,
		Thread:        r.threadID(),
	})
}

// NameThread labels a thread id, typically "main" or "audio".
func (r *Recorder) NameThread(tid uint64, name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[tid] = name
}

// Events returns a copy of the events recorded so far.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recent event, if any.
func (r *Recorder) Last() (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Document snapshots the recorder into a serializable trace document.
func (r *Recorder) Document(label string, pid int) Document {
	doc := Document{Label: label, PID: pid, Events: r.Events(), Threads: map[uint64]string{}}
	if r == nil {
		return doc
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for tid, name := range r.threads {
		doc.Threads[tid] = name
	}
	return doc
}
