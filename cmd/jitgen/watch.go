package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"jitkit/internal/gen"
)

const watchDelay = 100 * time.Millisecond

// watch derives patterns once, then again whenever a Go source of a
// derived package changes, until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, patterns []string, opts gen.Options, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	run := func() {
		res, err := gen.Run(ctx, patterns, opts)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "jitgen:", err)
			}
			return
		}
		// errors were printed already
		_ = report(cmd, res, dir, false)
		for _, p := range res.Packages {
			if p.Dir == "" || watched[p.Dir] {
				continue
			}
			if err := w.Add(p.Dir); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "watch %s: %v\n", relPath(dir, p.Dir), err)
				continue
			}
			watched[p.Dir] = true
		}
	}

	run()
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %d packages\n", len(watched))

	timer := time.NewTimer(watchDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, opts.Output) {
				continue
			}
			// editors save in bursts; wait for them to settle
			timer.Reset(watchDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "watch:", err)
		case <-timer.C:
			run()
		}
	}
}

// relevant reports whether ev touches a Go source other than the
// generated file.
func relevant(ev fsnotify.Event, output string) bool {
	if filepath.Ext(ev.Name) != ".go" || filepath.Base(ev.Name) == output {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
