package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jitkit/internal/gen"
	"jitkit/internal/observ"
	"jitkit/internal/prof"
)

// setupProfiling starts the profilers selected by the persistent flags.
// The returned cleanup is safe to call more than once.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Mem, err = flags.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !opts.Enabled() {
		return func() {}, nil
	}
	s, err := prof.Start(opts)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := s.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}, nil
}

// newTimer returns a timer when --timings is set and nil otherwise.
func newTimer(cmd *cobra.Command) *observ.Timer {
	if on, _ := cmd.Root().PersistentFlags().GetBool("timings"); on {
		return observ.NewTimer()
	}
	return nil
}

func printTimings(cmd *cobra.Command, t *observ.Timer) {
	if t == nil {
		return
	}
	fmt.Fprint(cmd.ErrOrStderr(), t.Summary())
}

// timingSink accounts the elapsed time reported by generator events.
func timingSink(t *observ.Timer) gen.ProgressSink {
	return gen.SinkFunc(func(e gen.Event) {
		if e.Elapsed <= 0 {
			return
		}
		switch {
		case e.Status == gen.StatusCached:
			t.Add("cached", e.Elapsed)
		case e.Status == gen.StatusError:
			t.Add("failed", e.Elapsed)
		case e.Stage == gen.StageWrite:
			t.Add("write", e.Elapsed)
		default:
			t.Add("generate", e.Elapsed)
		}
	})
}
