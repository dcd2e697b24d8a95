// Package observ accumulates wall-clock timings of named phases for the
// --timings output of jitgen.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is the accumulated time of one name.
type Phase struct {
	Name  string
	Dur   time.Duration
	Count int
	Note  string
}

// Timer collects phases in the order they are first seen. It is safe for
// concurrent use, and a nil *Timer ignores everything.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
	index  map[string]int
}

func NewTimer() *Timer { return &Timer{index: make(map[string]int)} }

// Begin starts timing name; calling the returned func ends it.
func (t *Timer) Begin(name string) func(note string) {
	if t == nil {
		return func(string) {}
	}
	start := time.Now()
	return func(note string) { t.add(name, time.Since(start), note) }
}

// Add accounts d to name.
func (t *Timer) Add(name string, d time.Duration) {
	if t == nil {
		return
	}
	t.add(name, d, "")
}

func (t *Timer) add(name string, d time.Duration, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[name]
	if !ok {
		i = len(t.phases)
		t.index[name] = i
		t.phases = append(t.phases, Phase{Name: name})
	}
	p := &t.phases[i]
	p.Dur += d
	p.Count++
	if note != "" {
		p.Note = note
	}
}

// PhaseReport is the serializable form of a Phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Count      int     `json:"count"`
	Note       string  `json:"note,omitempty"`
}

// Report lists the phases and their sum in milliseconds.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	if t == nil {
		return Report{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	for i, p := range t.phases {
		total += p.Dur
		r.Phases[i] = PhaseReport{Name: p.Name, DurationMS: millis(p.Dur), Count: p.Count, Note: p.Note}
	}
	r.TotalMS = millis(total)
	return r
}

// Summary renders the report as an aligned table. Phases measured more
// than once show their count.
func (t *Timer) Summary() string {
	r := t.Report()
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range r.Phases {
		name := p.Name
		if p.Count > 1 {
			name = fmt.Sprintf("%s (x%d)", p.Name, p.Count)
		}
		fmt.Fprintf(&b, "  %-20s %7.2f ms", name, p.DurationMS)
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-20s %7.2f ms\n", "total", r.TotalMS)
	return b.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
