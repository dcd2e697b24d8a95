package engine

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"jitkit/internal/trace"
)

type step func(fr *frame)

type bufSpec struct {
	reg  int
	size int
}

type constSpec struct {
	reg  int
	bits uint64
}

// program is the lowered form of a compiled function.
type program struct {
	fn     *Function
	steps  []step
	nregs  int
	bufs   []bufSpec
	consts []constSpec
	params []*Value
	ret    *TypeDesc
}

type frame struct {
	prog    *program
	regs    []uint64
	bufs    [][]byte
	allocas [][]byte
	link    *frame // frame of the lexically enclosing function
	pc      int
	done    bool
	ret     uint64
	retAddr uint64
}

func (p *program) newFrame(link *frame) *frame {
	fr := &frame{prog: p, regs: make([]uint64, p.nregs), link: link}
	if len(p.bufs) > 0 {
		fr.bufs = make([][]byte, len(p.bufs))
		for i, b := range p.bufs {
			buf := make([]byte, max(b.size, 1))
			fr.bufs[i] = buf
			fr.regs[b.reg] = bufAddr(buf)
		}
	}
	for _, c := range p.consts {
		fr.regs[c.reg] = c.bits
	}
	return fr
}

// invoke runs p with scalar arguments already converted to the parameter
// kinds; aggregate arguments are passed as addresses and copied in.
func (p *program) invoke(link *frame, args []uint64, retAddr uint64) uint64 {
	fr := p.newFrame(link)
	fr.retAddr = retAddr
	for i, pv := range p.params {
		if pv.typ.IsAggregate() {
			memmove(fr.regs[pv.id], args[i], pv.typ.Size())
			continue
		}
		fr.regs[pv.id] = args[i]
	}
	p.run(fr)
	return fr.ret
}

func (p *program) run(fr *frame) {
	defer func() {
		if r := recover(); r != nil {
			if t, ok := r.(*Trap); ok && t.Func == "" {
				t.Func = p.fn.Name()
			}
			panic(r)
		}
	}()
	steps := p.steps
	for !fr.done && fr.pc < len(steps) {
		s := steps[fr.pc]
		fr.pc++
		s(fr)
	}
}

// program returns the compiled code of f, compiling on demand.
func (f *Function) program() (*program, error) {
	f.mu.Lock()
	st, code := f.state, f.code
	f.mu.Unlock()
	switch st {
	case StateCompiled:
		return code, nil
	case StateAbandoned:
		return nil, ErrAbandoned
	}
	if err := f.Compile(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, nil
}

// Apply calls f from the host. args holds one pointer per parameter to the
// argument value; ret points at storage for the result and may be nil when
// the result is not wanted. Traps raised by the function are returned as
// *Trap errors.
func (f *Function) Apply(args []unsafe.Pointer, ret unsafe.Pointer) (err error) {
	p, err := f.program()
	if err != nil {
		return err
	}
	if len(args) != len(p.params) {
		return fmt.Errorf("apply %s: %w: got %d, want %d", f.Name(), ErrBadSignature, len(args), len(p.params))
	}
	regs := make([]uint64, len(args))
	for i, pv := range p.params {
		if pv.typ.IsAggregate() {
			regs[i] = addr(args[i])
		} else {
			regs[i] = loadScalar(addr(args[i]), pv.typ.arith())
		}
	}

	t := f.ctx.Tracer()
	var span *trace.Span
	if t.Enabled() {
		span = trace.Begin(t, trace.ScopeFunction, "apply:"+f.Name(), 0)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			tr, ok := r.(*Trap)
			if !ok {
				re, isRuntime := r.(runtime.Error)
				if !isRuntime {
					panic(r)
				}
				tr = &Trap{Code: TrapMemoryFault, Func: f.Name(), Message: re.Error(), Cause: re}
			}
			err = tr
			trace.Failure(t, trace.ScopeFunction, "apply:"+f.Name(), tr)
		}
		if span != nil {
			span.WithExtra("elapsed", time.Since(start).String()).End(errString(err))
		}
	}()

	var retAddr uint64
	rt := p.ret
	if rt.IsAggregate() && ret != nil {
		retAddr = addr(ret)
	}
	bits := p.invoke(nil, regs, retAddr)
	if ret != nil && !rt.IsAggregate() && rt.Normalize().Kind() != KindVoid {
		storeScalar(addr(ret), rt.arith(), bits)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTrap reports whether err is a trap with the given code.
func IsTrap(err error, code TrapCode) bool {
	var t *Trap
	return errors.As(err, &t) && t.Code == code
}
