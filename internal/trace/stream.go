package trace

import (
	"io"
	"sync"
)

// StreamTracer writes every accepted event to w as it arrives.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
	line   []byte
}

// NewStreamTracer returns a tracer writing to w. FormatAuto means text.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{w: w, level: level, format: formatFor(format, "")}
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.Accepts(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.format == FormatNDJSON {
		t.line = appendJSON(t.line[:0], ev)
	} else {
		t.line = appendText(t.line[:0], ev)
	}
	// write errors are dropped so tracing never fails the traced work
	_, _ = t.w.Write(t.line)
}

// Flush flushes w when it has a Flush method.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes, then closes w when it is an io.Closer.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
