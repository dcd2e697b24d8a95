package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jitkit/internal/config"
	"jitkit/internal/trace"
)

// loadConfig discovers jitkit.toml from dir and applies the trace flags on
// top of it.
func loadConfig(cmd *cobra.Command, dir string) (config.Config, error) {
	cfg, err := config.Discover(dir)
	if err != nil {
		return config.Config{}, err
	}
	root := cmd.Root()

	output, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get trace flag: %w", err)
	}
	level, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	if output != "" {
		cfg.Trace.Output = output
		// --trace alone traces compilation
		if level == "" && cfg.Trace.Level == trace.LevelOff.String() {
			level = trace.LevelCompile.String()
		}
	}
	if level != "" {
		if _, err := trace.ParseLevel(level); err != nil {
			return config.Config{}, fmt.Errorf("invalid trace level: %w", err)
		}
		cfg.Trace.Level = level
	}
	return cfg, nil
}

// setupTracing opens the tracer described by cfg. The returned cleanup
// flushes and closes it.
func setupTracing(cmd *cobra.Command, cfg config.Config) (trace.Tracer, func(), error) {
	tracer, err := cfg.Tracer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	if !tracer.Enabled() {
		return tracer, func() {}, nil
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}
