package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"jitkit/internal/trace"
)

const (
	replPrompt   = "\033[32m>\033[0m "
	replContinue = "\033[32m.\033[0m "
	replResult   = "= "

	replTraceSize = 256
	replTraceTail = 20
)

const replHelp = `enter a function literal to run it, optionally called with constant arguments:
  func() int32 { return 6 * 7 }
  func(a, b int32) int32 { return a + b }(3, 4)
commands:
  :def NAME LITERAL  compile LITERAL and make it callable as NAME
  :funcs             list defined functions
  :dump              toggle instruction listings
  :trace [N]         show the last N compile, call and trap events
  :help              show this text
  :quit              leave
`

func newReplCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive jitlang prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recent := trace.NewRingTracer(replTraceSize, trace.LevelFunction)
			ctx, cleanup, err := newJITContext(cmd, recent)
			if err != nil {
				return err
			}
			defer cleanup()
			if history == "" {
				if dir, err := os.UserCacheDir(); err == nil {
					history = filepath.Join(dir, "jitkit", "repl-history")
					_ = os.MkdirAll(filepath.Dir(history), 0o755)
				}
			}
			s := newSession(ctx)
			s.recent = recent
			return repl(s, history)
		},
	}
	cmd.Flags().StringVar(&history, "history", "", "history file (default in the user cache dir)")
	return cmd
}

func repl(s *session, history string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       history,
		InterruptPrompt:   "^C",
		EOFPrompt:         ":quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	var pending strings.Builder
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if pending.Len() == 0 {
				return nil
			}
			pending.Reset()
			l.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		pending.WriteString(line)
		pending.WriteByte('\n')
		input := pending.String()
		if unbalanced(input) {
			l.SetPrompt(replContinue)
			continue
		}
		pending.Reset()
		l.SetPrompt(replPrompt)
		if s.handle(l.Stdout(), input) {
			return nil
		}
	}
}

// unbalanced reports whether input has more opening than closing braces or
// parentheses, so the literal continues on the next line.
func unbalanced(input string) bool {
	depth := 0
	for _, r := range input {
		switch r {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
		}
	}
	return depth > 0
}

// handle runs one complete input and reports whether the session ends.
func (s *session) handle(w io.Writer, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, ":") {
		out, err := s.eval(input)
		if err != nil {
			fmt.Fprintln(w, err)
			return false
		}
		printResult(w, replResult, out)
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	switch cmd {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Fprint(w, replHelp)
	case ":dump":
		s.dump = !s.dump
		fmt.Fprintf(w, "listings %s\n", onOff(s.dump))
	case ":funcs":
		for _, name := range s.names() {
			fmt.Fprintln(w, name)
		}
	case ":def":
		name, lit, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok {
			fmt.Fprintln(w, "usage: :def NAME LITERAL")
			return false
		}
		if err := s.define(name, strings.TrimSpace(lit)); err != nil {
			fmt.Fprintln(w, err)
			return false
		}
		fmt.Fprintf(w, "defined %s\n", name)
	case ":trace":
		s.showTrace(w, strings.TrimSpace(rest))
	default:
		fmt.Fprintf(w, "unknown command %s, try :help\n", cmd)
	}
	return false
}

func (s *session) showTrace(w io.Writer, arg string) {
	if s.recent == nil {
		fmt.Fprintln(w, "tracing unavailable")
		return
	}
	n := replTraceTail
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			fmt.Fprintln(w, "usage: :trace [N]")
			return
		}
		n = v
	}
	if len(s.recent.Tail(1)) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	if err := s.recent.Dump(w, n, trace.FormatText); err != nil {
		fmt.Fprintln(w, err)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
