package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"jitkit/internal/config"
	"jitkit/internal/gen"
)

type deriveFlags struct {
	check   bool
	ui      string
	watch   bool
	noCache bool
	jobs    int
	jitPath string
	output  string
}

// newDeriveCmd builds "derive", or "check" when check is set. check never
// writes and fails when a generated file is missing or out of date.
func newDeriveCmd(check bool) *cobra.Command {
	fl := &deriveFlags{check: check}
	cmd := &cobra.Command{
		Use:   "derive [packages]",
		Short: "Generate JITType and Compile methods for //jit:derive types",
		Example: `  jitgen derive ./...
  jitgen derive --watch ./shapes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd, args, fl)
		},
	}
	if check {
		cmd.Use = "check [packages]"
		cmd.Short = "Report //jit:derive diagnostics and stale generated files"
		cmd.Example = "  jitgen check ./..."
	} else {
		cmd.Flags().StringVar(&fl.ui, "ui", "auto", "show progress UI (auto|on|off)")
		cmd.Flags().BoolVar(&fl.watch, "watch", false, "regenerate when sources change")
	}
	cmd.Flags().BoolVar(&fl.noCache, "no-cache", false, "ignore the generator cache")
	cmd.Flags().IntVarP(&fl.jobs, "jobs", "j", 0, "packages processed at once (0 uses [gen].jobs)")
	cmd.Flags().StringVar(&fl.jitPath, "jit-path", gen.DefaultJITPath, "import path of package jit")
	cmd.Flags().StringVarP(&fl.output, "output", "o", "", "generated file name (default [gen].output)")
	return cmd
}

func runDerive(cmd *cobra.Command, patterns []string, fl *deriveFlags) error {
	dir, err := workDir(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}
	_, cleanup, err := setupTracing(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProf()

	mode := uiModeOff
	if fl.ui != "" {
		if mode, err = readUIMode(fl.ui); err != nil {
			return err
		}
	}

	opts := gen.Options{
		Dir:     dir,
		Output:  cfg.Gen.Output,
		JITPath: fl.jitPath,
		Jobs:    cfg.Gen.Jobs,
		Check:   fl.check,
	}
	if fl.output != "" {
		opts.Output = fl.output
	}
	if opts.Output == "" {
		opts.Output = gen.DefaultOutput
	}
	if fl.jobs > 0 {
		opts.Jobs = fl.jobs
	}
	if !fl.noCache && cfg.Gen.Cache != "" {
		cache, err := gen.OpenCache(cachePath(cfg, dir))
		if err != nil {
			return err
		}
		opts.Cache = cache
	}

	if fl.watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watch(ctx, cmd, patterns, opts, dir)
	}

	timer := newTimer(cmd)
	if timer != nil {
		opts.Sink = timingSink(timer)
	}
	end := timer.Begin("derive")
	res, err := deriveOnce(cmd.Context(), patterns, opts, shouldUseTUI(mode))
	if err != nil {
		return err
	}
	end(fmt.Sprintf("%d packages", len(res.Packages)))
	defer printTimings(cmd, timer)
	return report(cmd, res, dir, fl.check)
}

// cachePath resolves [gen].cache against the directory of jitkit.toml, or
// dir when there is no file.
func cachePath(cfg config.Config, dir string) string {
	if filepath.IsAbs(cfg.Gen.Cache) {
		return cfg.Gen.Cache
	}
	base := dir
	if cfg.Path != "" {
		base = filepath.Dir(cfg.Path)
	}
	return filepath.Join(base, cfg.Gen.Cache)
}

func deriveOnce(ctx context.Context, patterns []string, opts gen.Options, useUI bool) (*gen.Result, error) {
	if useUI {
		return runDeriveWithUI(ctx, "jitgen derive", patterns, opts)
	}
	return gen.Run(ctx, patterns, opts)
}

// report prints the diagnostics and the files written by res. It returns
// errReported when res has errors or, in check mode, stale files.
func report(cmd *cobra.Command, res *gen.Result, dir string, check bool) error {
	flags := cmd.Root().PersistentFlags()
	colorFlag, _ := flags.GetString("color")
	quiet, _ := flags.GetBool("quiet")
	maxDiags, _ := flags.GetInt("max-diagnostics")

	if res.Bag.Len() > 0 {
		if err := printDiagnostics(colorFlag, maxDiags, dir, res.Bag); err != nil {
			return err
		}
	}
	if res.HasErrors() {
		return errReported
	}

	out := cmd.OutOrStdout()
	if check {
		stale := 0
		for i := range res.Packages {
			p := &res.Packages[i]
			ok, err := p.Stale()
			if err != nil {
				return err
			}
			if ok {
				stale++
				fmt.Fprintf(out, "stale: %s\n", relPath(dir, p.Output))
			}
		}
		if stale > 0 {
			return errReported
		}
		return nil
	}

	if quiet {
		return nil
	}
	for _, p := range res.Packages {
		switch {
		case p.Written:
			fmt.Fprintf(out, "wrote %s (%d types)\n", relPath(dir, p.Output), len(p.Items))
		case p.Removed:
			fmt.Fprintf(out, "removed %s\n", relPath(dir, p.Output))
		}
	}
	return nil
}

func relPath(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}
