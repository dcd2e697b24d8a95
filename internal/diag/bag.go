package diag

import (
	"errors"
	"sort"
	"strings"
)

// Bag collects diagnostics up to a limit.
type Bag struct {
	items []Diagnostic
	max   int
}

// NewBag returns a bag holding at most max diagnostics; max <= 0 means no
// limit.
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add appends d. It returns false when the limit is reached.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() int {
	return b.max
}

// HasErrors reports whether any diagnostic is an error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the collected diagnostics. The slice is shared with the
// bag.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends the diagnostics of other, growing the limit if needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	if n := len(b.items) + len(other.items); b.max > 0 && n > b.max {
		b.max = n
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by file, line, column, severity (errors first)
// and code.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Pos.Filename != dj.Pos.Filename {
			return di.Pos.Filename < dj.Pos.Filename
		}
		if di.Pos.Line != dj.Pos.Line {
			return di.Pos.Line < dj.Pos.Line
		}
		if di.Pos.Column != dj.Pos.Column {
			return di.Pos.Column < dj.Pos.Column
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// Dedup drops diagnostics repeating the code, position and message of an
// earlier one.
func (b *Bag) Dedup() {
	type key struct {
		code Code
		pos  string
		msg  string
	}
	seen := make(map[key]bool)
	out := b.items[:0]
	for _, d := range b.items {
		k := key{d.Code, d.Pos.String(), d.Message}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	b.items = out
}

// Err returns the errors of the bag joined into one error, or nil.
func (b *Bag) Err() error {
	var errs []error
	for _, d := range b.items {
		if d.Severity >= SevError {
			errs = append(errs, d)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &Errors{List: errs}
}

// Errors is the error returned by Bag.Err.
type Errors struct {
	List []error
}

func (e *Errors) Error() string {
	parts := make([]string, len(e.List))
	for i, err := range e.List {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "\n")
}

func (e *Errors) Unwrap() []error { return e.List }

// Diagnostics extracts the diagnostics carried by err, if any.
func Diagnostics(err error) []Diagnostic {
	var es *Errors
	if errors.As(err, &es) {
		out := make([]Diagnostic, 0, len(es.List))
		for _, e := range es.List {
			if d, ok := e.(Diagnostic); ok {
				out = append(out, d)
			}
		}
		return out
	}
	var d Diagnostic
	if errors.As(err, &d) {
		return []Diagnostic{d}
	}
	return nil
}
