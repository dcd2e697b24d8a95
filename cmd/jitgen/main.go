// Command jitgen is the jitkit toolchain: it derives JIT descriptors for
// Go types and evaluates jitlang snippets.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jitkit/internal/version"
)

// errReported is returned by commands that already printed why they
// failed. main exits with status 1 without printing it again.
var errReported = errors.New("failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jitgen",
		Short:         "jitkit code generator and snippet runner",
		Long:          `jitgen derives JIT descriptors for Go types marked with //jit:derive and compiles jitlang snippets`,
		Version:       version.Current().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("dir", "C", "", "run as if started in this directory")
	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	root.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	root.PersistentFlags().String("trace", "", "trace output file (- for stderr)")
	root.PersistentFlags().String("trace-level", "", "trace level (off|error|compile|function|debug)")
	root.PersistentFlags().Bool("timings", false, "print phase timings to stderr")
	root.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	root.PersistentFlags().String("mem-profile", "", "write a heap profile to this file")
	root.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")

	root.AddCommand(newDeriveCmd(false))
	root.AddCommand(newDeriveCmd(true))
	root.AddCommand(newEvalCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "jitgen:", err)
		}
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// workDir returns the absolute directory selected with -C.
func workDir(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return "", err
	}
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}
