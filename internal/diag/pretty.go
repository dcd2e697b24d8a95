package diag

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	PathModeAuto PathMode = iota
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures Pretty.
type PrettyOpts struct {
	Color     bool
	PathMode  PathMode
	BaseDir   string // for PathModeRelative
	ShowNotes bool
	// Source returns the content of a file; nil reads from disk.
	Source func(filename string) ([]byte, error)
}

// Pretty prints every diagnostic of bag as
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//	   <source line>
//	   ^~~~
//
// followed by its notes. Call bag.Sort first for a stable order.
func Pretty(w io.Writer, bag *Bag, opts PrettyOpts) {
	p := printer{w: w, opts: opts, files: make(map[string][]string)}
	for _, d := range bag.Items() {
		p.diagnostic(d)
	}
}

type printer struct {
	w     io.Writer
	opts  PrettyOpts
	files map[string][]string
}

func (p *printer) paint(attr color.Attribute, s string) string {
	if !p.opts.Color {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

func (p *printer) severity(s Severity) string {
	switch s {
	case SevError:
		return p.paint(color.FgRed, s.String())
	case SevWarning:
		return p.paint(color.FgYellow, s.String())
	}
	return p.paint(color.FgCyan, s.String())
}

func (p *printer) path(name string) string {
	switch p.opts.PathMode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(name); err == nil {
			return abs
		}
	case PathModeRelative:
		if rel, err := filepath.Rel(p.opts.BaseDir, name); err == nil {
			return rel
		}
	case PathModeBasename:
		return filepath.Base(name)
	}
	return name
}

func (p *printer) lines(name string) []string {
	if ls, ok := p.files[name]; ok {
		return ls
	}
	read := p.opts.Source
	if read == nil {
		read = os.ReadFile
	}
	var ls []string
	if data, err := read(name); err == nil {
		ls = strings.Split(string(bytes.TrimRight(data, "\n")), "\n")
	}
	p.files[name] = ls
	return ls
}

func (p *printer) diagnostic(d Diagnostic) {
	loc := "<unknown>"
	if d.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", p.path(d.Pos.Filename), d.Pos.Line, d.Pos.Column)
	}
	fmt.Fprintf(p.w, "%s: %s %s: %s\n", p.paint(color.Bold, loc), p.severity(d.Severity), d.Code.ID(), d.Message)
	p.context(d)
	if !p.opts.ShowNotes {
		return
	}
	for _, n := range d.Notes {
		if n.Pos.IsValid() {
			fmt.Fprintf(p.w, "  %s %s:%d:%d: %s\n", p.paint(color.FgCyan, "note"), p.path(n.Pos.Filename), n.Pos.Line, n.Pos.Column, n.Msg)
		} else {
			fmt.Fprintf(p.w, "  %s: %s\n", p.paint(color.FgCyan, "note"), n.Msg)
		}
	}
}

// context prints the source line of d with a caret under the reported
// extent. Columns are byte offsets; the caret is aligned by display width.
func (p *printer) context(d Diagnostic) {
	if !d.Pos.IsValid() || d.Pos.Filename == "" {
		return
	}
	ls := p.lines(d.Pos.Filename)
	if d.Pos.Line < 1 || d.Pos.Line > len(ls) {
		return
	}
	line := strings.ReplaceAll(ls[d.Pos.Line-1], "\t", "    ")
	raw := ls[d.Pos.Line-1]
	col := min(max(d.Pos.Column-1, 0), len(raw))
	prefix := strings.ReplaceAll(raw[:col], "\t", "    ")
	width := 1
	if d.End.IsValid() && d.End.Line == d.Pos.Line && d.End.Column > d.Pos.Column {
		end := min(d.End.Column-1, len(raw))
		width = max(runewidth.StringWidth(raw[col:end]), 1)
	}
	fmt.Fprintf(p.w, "   %s\n", line)
	marker := "^" + strings.Repeat("~", width-1)
	fmt.Fprintf(p.w, "   %s%s\n", strings.Repeat(" ", runewidth.StringWidth(prefix)), p.paint(color.FgGreen, marker))
}

// Short renders one line per diagnostic and note:
//
//	error GEN3001 file.go:3:1 message
func Short(diags []Diagnostic, baseDir string, includeNotes bool) string {
	var sb strings.Builder
	rel := func(name string) string {
		if baseDir == "" {
			return filepath.ToSlash(name)
		}
		if r, err := filepath.Rel(baseDir, name); err == nil {
			return filepath.ToSlash(r)
		}
		return filepath.ToSlash(name)
	}
	line := func(word string, code Code, pos string, msg string) {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s %s %s %s", word, code.ID(), pos, strings.Join(strings.Fields(msg), " "))
	}
	for _, d := range diags {
		line(d.Severity.Word(), d.Code, fmt.Sprintf("%s:%d:%d", rel(d.Pos.Filename), d.Pos.Line, d.Pos.Column), d.Message)
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			line("note", d.Code, fmt.Sprintf("%s:%d:%d", rel(n.Pos.Filename), n.Pos.Line, n.Pos.Column), n.Msg)
		}
	}
	return sb.String()
}
