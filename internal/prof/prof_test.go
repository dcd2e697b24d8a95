package prof

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSession(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.pprof"),
		Mem:   filepath.Join(dir, "mem.pprof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	if !opts.Enabled() || (Options{}).Enabled() {
		t.Fatalf("Enabled is wrong")
	}
	s, err := Start(opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum := 0
	for i := range 100000 {
		sum += i
	}
	_ = sum
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	for _, p := range []string{opts.CPU, opts.Mem, opts.Trace} {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if fi.Size() == 0 {
			t.Errorf("%s is empty", filepath.Base(p))
		}
	}
}

func TestStartBadPath(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "missing", "trace.out")
	if _, err := Start(Options{CPU: filepath.Join(dir, "first.pprof"), Trace: bad}); err == nil {
		t.Fatalf("Start with an unwritable trace path succeeded")
	}
	// the failed start must not leave the CPU profiler running
	s, err := Start(Options{CPU: filepath.Join(dir, "cpu.pprof")})
	if err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	_ = s.Stop()
}
