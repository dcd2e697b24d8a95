// Package prof runs the Go runtime profilers selected on the jitgen
// command line.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
)

// Options names the output files; empty paths disable a profiler.
type Options struct {
	CPU   string
	Mem   string
	Trace string
}

// Enabled reports whether any profiler is selected.
func (o Options) Enabled() bool { return o.CPU != "" || o.Mem != "" || o.Trace != "" }

// Session is a running set of profilers.
type Session struct {
	opts  Options
	cpu   *os.File
	trace *os.File
	once  sync.Once
	err   error
}

// Start enables the CPU profile and the runtime trace. The heap profile is
// written by Stop.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpu = f
	}
	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err == nil {
			if err = trace.Start(f); err != nil {
				_ = f.Close()
			}
		}
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		s.trace = f
	}
	return s, nil
}

func (s *Session) stopCPU() error {
	if s.cpu == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpu.Close()
	s.cpu = nil
	return err
}

// Stop ends the profilers and writes the heap profile. Later calls return
// the result of the first.
func (s *Session) Stop() error {
	s.once.Do(func() {
		var errs []error
		if s.trace != nil {
			trace.Stop()
			errs = append(errs, s.trace.Close())
		}
		errs = append(errs, s.stopCPU())
		if s.opts.Mem != "" {
			errs = append(errs, writeHeap(s.opts.Mem))
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
