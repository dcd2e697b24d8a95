package engine

import (
	"strconv"

	"jitkit/internal/trace"
)

// Compile validates and lowers the function. On success the function is
// compiled and no further instructions can be added. On failure the
// function stays in the building state.
func (f *Function) Compile() error {
	t := f.ctx.Tracer()
	span := trace.Begin(t, trace.ScopeCompile, "compile:"+f.Name(), 0)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateCompiled:
		span.End("already compiled")
		return nil
	case StateAbandoned:
		span.End(ErrAbandoned.Error())
		return &CompileError{Func: f.Name(), Err: ErrAbandoned}
	}

	if err := f.validate(); err != nil {
		trace.Failure(t, trace.ScopeCompile, "compile:"+f.Name(), err)
		span.End("invalid")
		return err
	}

	insns := optimize(f.insns, f.optLevel)
	insns = append(insns, Insn{Op: OpDefaultReturn})
	code := lower(f, insns)

	f.code = code
	f.state = StateCompiled
	span.WithExtra("insns", strconv.Itoa(len(f.insns))).
		WithExtra("steps", strconv.Itoa(len(code.steps))).
		WithExtra("opt", strconv.Itoa(f.optLevel)).
		End("")
	return nil
}
