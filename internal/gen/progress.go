package gen

import "time"

// Stage describes a phase of generating one package.
type Stage string

const (
	// StageLoad is package loading and type checking.
	StageLoad Stage = "load"
	// StageAnalyze is directive discovery and validation.
	StageAnalyze Stage = "analyze"
	// StageEmit is source generation and formatting.
	StageEmit Stage = "emit"
	// StageWrite is writing the generated file.
	StageWrite Stage = "write"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusCached  Status = "cached"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Event reports progress for a package (or for the whole run when Package
// is empty).
type Event struct {
	Package string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }

func emit(sink ProgressSink, evt Event) {
	if sink != nil {
		sink.OnEvent(evt)
	}
}
