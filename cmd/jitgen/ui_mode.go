package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"jitkit/internal/diag"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

// useColor resolves the --color flag for output written to f.
func useColor(value string, f *os.File) (bool, error) {
	mode, err := readUIMode(value)
	if err != nil {
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	switch mode {
	case uiModeOn:
		return true, nil
	case uiModeOff:
		return false, nil
	default:
		return !color.NoColor && isTerminal(f), nil
	}
}

// printDiagnostics pretty-prints at most max diagnostics of bag to stderr.
func printDiagnostics(colorFlag string, max int, baseDir string, bag *diag.Bag) error {
	colored, err := useColor(colorFlag, os.Stderr)
	if err != nil {
		return err
	}
	shown := bag
	if max > 0 && bag.Len() > max {
		shown = diag.NewBag(max)
		for _, d := range bag.Items() {
			shown.Add(d)
		}
	}
	diag.Pretty(os.Stderr, shown, diag.PrettyOpts{
		Color:     colored,
		PathMode:  diag.PathModeRelative,
		BaseDir:   baseDir,
		ShowNotes: true,
	})
	if shown.Len() < bag.Len() {
		fmt.Fprintf(os.Stderr, "... and %d more diagnostics\n", bag.Len()-shown.Len())
	}
	return nil
}
