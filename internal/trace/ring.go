package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory.
type RingTracer struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	n     int
	level Level
}

// NewRingTracer returns a ring holding up to size events; size <= 0
// means 1024.
func NewRingTracer(size int, level Level) *RingTracer {
	if size <= 0 {
		size = 1024
	}
	return &RingTracer{buf: make([]Event, size), level: level}
}

func (r *RingTracer) Emit(ev *Event) {
	if !r.level.Accepts(ev) {
		return
	}
	r.mu.Lock()
	r.buf[r.next] = *ev
	r.next = (r.next + 1) % len(r.buf)
	r.n = min(r.n+1, len(r.buf))
	r.mu.Unlock()
}

// Tail returns up to the last n events, oldest first. n <= 0 returns
// everything held.
func (r *RingTracer) Tail(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]Event, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Dump writes the last n events to w, as Tail selects them.
func (r *RingTracer) Dump(w io.Writer, n int, format Format) error {
	var line []byte
	for _, ev := range r.Tail(n) {
		if format == FormatNDJSON {
			line = appendJSON(line[:0], &ev)
		} else {
			line = appendText(line[:0], &ev)
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Failures returns the failure events held, oldest first.
func (r *RingTracer) Failures() []Event {
	var out []Event
	for _, ev := range r.Tail(0) {
		if ev.Failure {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops every event held.
func (r *RingTracer) Reset() {
	r.mu.Lock()
	r.next, r.n = 0, 0
	clear(r.buf)
	r.mu.Unlock()
}

func (r *RingTracer) Flush() error  { return nil }
func (r *RingTracer) Close() error  { return nil }
func (r *RingTracer) Level() Level  { return r.level }
func (r *RingTracer) Enabled() bool { return r.level > LevelOff }
