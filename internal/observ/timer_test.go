package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimer(t *testing.T) {
	tm := NewTimer()
	end := tm.Begin("compile")
	end("2 functions")
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add("generate", 5*time.Millisecond)
		}()
	}
	wg.Wait()

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "compile" || r.Phases[1].Name != "generate" {
		t.Fatalf("phases = %+v", r.Phases)
	}
	if g := r.Phases[1]; g.Count != 4 || g.DurationMS != 20 {
		t.Fatalf("generate = %+v", g)
	}
	if r.TotalMS < 20 {
		t.Fatalf("total = %v", r.TotalMS)
	}

	s := tm.Summary()
	for _, want := range []string{"timings:\n", "generate (x4)", "20.00 ms", "// 2 functions", "total"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary lacks %q:\n%s", want, s)
		}
	}
}

func TestNilTimer(t *testing.T) {
	var tm *Timer
	tm.Begin("x")("note")
	tm.Add("y", time.Second)
	if r := tm.Report(); len(r.Phases) != 0 || r.TotalMS != 0 {
		t.Fatalf("nil timer reported %+v", r)
	}
}
