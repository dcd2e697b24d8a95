package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Tracer receives trace events. Implementations are safe for concurrent
// use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	// Enabled reports Level() > LevelOff.
	Enabled() bool
}

// Config describes a stream tracer.
type Config struct {
	Level  Level
	Format Format
	// Output, when set, receives the events; OutputPath is then only used
	// to pick the format.
	Output io.Writer
	// OutputPath is a file to create, or "-" or "" for stderr.
	OutputPath string
}

// New returns Nop for LevelOff and a StreamTracer otherwise.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	format := formatFor(cfg.Format, cfg.OutputPath)
	w := cfg.Output
	if w == nil {
		var err error
		if w, err = openOutput(cfg.OutputPath); err != nil {
			return nil, err
		}
	}
	return &StreamTracer{w: w, level: cfg.Level, format: format}, nil
}

func openOutput(path string) (io.Writer, error) {
	if path == "" || path == "-" {
		return stderr{}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return &bufferedFile{Writer: bufio.NewWriter(f), f: f}, nil
}

// stderr has no Close so closing the tracer leaves os.Stderr open.
type stderr struct{}

func (stderr) Write(p []byte) (int, error) { return os.Stderr.Write(p) }

type bufferedFile struct {
	*bufio.Writer
	f *os.File
}

func (b *bufferedFile) Close() error {
	return errors.Join(b.Flush(), b.f.Close())
}
