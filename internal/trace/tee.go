package trace

import "errors"

type tee []Tracer

// Tee returns a tracer that hands a copy of every event to each of
// tracers. Its level is the finest of theirs; each tracer still filters
// by its own level. Nil and disabled tracers are dropped.
func Tee(tracers ...Tracer) Tracer {
	var out tee
	for _, t := range tracers {
		if t != nil && t.Enabled() {
			out = append(out, t)
		}
	}
	switch len(out) {
	case 0:
		return Nop
	case 1:
		return out[0]
	}
	return out
}

func (t tee) Emit(ev *Event) {
	for _, tr := range t {
		cp := *ev
		tr.Emit(&cp)
	}
}

func (t tee) Flush() error {
	var errs []error
	for _, tr := range t {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, tr := range t {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t tee) Level() Level {
	var l Level
	for _, tr := range t {
		l = max(l, tr.Level())
	}
	return l
}

func (t tee) Enabled() bool { return true }
