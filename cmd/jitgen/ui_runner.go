package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"jitkit/internal/gen"
	"jitkit/internal/ui"
)

type deriveOutcome struct {
	result *gen.Result
	err    error
}

// runDeriveWithUI runs gen.Run while a progress view renders its events.
func runDeriveWithUI(ctx context.Context, title string, patterns []string, opts gen.Options) (*gen.Result, error) {
	events := make(chan gen.Event, 256)
	outcomeCh := make(chan deriveOutcome, 1)

	go func() {
		ch := gen.ChannelSink{Ch: events}
		next := opts.Sink
		opts.Sink = gen.SinkFunc(func(e gen.Event) {
			if next != nil {
				next.OnEvent(e)
			}
			ch.OnEvent(e)
		})
		res, err := gen.Run(ctx, patterns, opts)
		outcomeCh <- deriveOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
