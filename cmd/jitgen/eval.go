package main

import (
	"github.com/spf13/cobra"

	"jitkit/internal/trace"
	"jitkit/jit"
)

func newEvalCmd() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "eval SNIPPET [ARGS...]",
		Short: "Compile a jitlang snippet and run it",
		Example: `  jitgen eval 'func() int32 { return 6 * 7 }'
  jitgen eval 'func(a, b int32) int32 { return a + b }' 3 4
  jitgen eval 'func(x float64) float64 { return math.Sqrt(x) }(2)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cleanup, err := newJITContext(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			stopProf, err := setupProfiling(cmd)
			if err != nil {
				return err
			}
			defer stopProf()

			s := newSession(ctx)
			s.dump = dump
			s.timer = newTimer(cmd)
			defer printTimings(cmd, s.timer)
			var out string
			if len(args) > 1 {
				out, err = s.run(args[0], args[1:])
			} else {
				out, err = s.eval(args[0])
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "", out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the instruction listing")
	return cmd
}

// newJITContext opens a context configured from jitkit.toml and the
// trace flags. Events also go to extra when it is not nil.
func newJITContext(cmd *cobra.Command, extra trace.Tracer) (*jit.Context, func(), error) {
	dir, err := workDir(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return nil, nil, err
	}
	tracer, cleanupTrace, err := setupTracing(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, err := jit.NewContext(jit.WithOptimizationLevel(cfg.JIT.OptLevel), jit.WithTracer(trace.Tee(tracer, extra)))
	if err != nil {
		cleanupTrace()
		return nil, nil, err
	}
	return ctx, func() {
		ctx.Close()
		cleanupTrace()
	}, nil
}
