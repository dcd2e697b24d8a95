package jit

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"

	"jitkit/internal/engine"
)

// CompiledFunction is a compiled, callable function. It stays callable
// until its context is closed.
type CompiledFunction struct {
	ctx  *Context
	fn   *engine.Function
	pins []any
}

func (cf *CompiledFunction) engineFunction() *engine.Function { return cf.fn }

func (cf *CompiledFunction) Name() string { return cf.fn.Name() }

// Signature returns the function signature.
func (cf *CompiledFunction) Signature() Type { return wrap(cf.fn.Signature()) }

// IsCompiled reports false once the owning context has been closed.
func (cf *CompiledFunction) IsCompiled() bool { return cf.fn.State() == engine.StateCompiled }

// Pointer returns the function pointer of cf, callable from compiled code
// with InsnCallIndirect.
func (cf *CompiledFunction) Pointer() uintptr { return uintptr(cf.fn.Handle()) }

func (cf *CompiledFunction) String() string { return cf.fn.Dump() }

// Apply calls the function with boxed arguments. ret is a pointer to the
// result storage, or nil to discard the result. Traps raised by the
// function are returned as *Trap errors.
//
// In checked builds an argument count or type that does not match the
// signature panics with a *ContractError.
func (cf *CompiledFunction) Apply(ret any, args ...any) error {
	if cf.ctx.Closed() {
		return fmt.Errorf("apply %s: %w", cf.Name(), ErrClosed)
	}
	sig := cf.Signature()
	if Checked {
		checkApply(sig, ret, args)
	}
	ptrs := make([]unsafe.Pointer, len(args))
	for i, a := range args {
		if a == nil {
			contract("apply", "argument %d is nil", i)
		}
		ptrs[i] = hostValue(reflect.ValueOf(a))
	}
	var rp unsafe.Pointer
	finish := func() {}
	if ret != nil {
		rv := reflect.ValueOf(ret)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			contract("apply", "result must be a non-nil pointer, got %T", ret)
		}
		rp, finish = hostResult(rv)
	}
	err := cf.fn.Apply(ptrs, rp)
	runtime.KeepAlive(args)
	runtime.KeepAlive(cf.pins)
	if err != nil {
		return err
	}
	finish()
	return nil
}

func checkApply(sig Type, ret any, args []any) {
	params := sig.Params()
	if len(args) != len(params) {
		contract("apply", "%s expects %d args, but got %d", sig, len(params), len(args))
	}
	for i, a := range args {
		if a == nil {
			continue
		}
		got, err := TypeFor(reflect.TypeOf(a))
		if err != nil {
			panic(err)
		}
		if !compatible(params[i], got) {
			contract("apply", "argument %d of %s should be %s, got %s", i, sig, params[i], got)
		}
	}
	if ret == nil {
		return
	}
	rt := reflect.TypeOf(ret)
	if rt.Kind() != reflect.Pointer {
		return
	}
	want, _ := sig.Return()
	got, err := TypeFor(rt.Elem())
	if err != nil {
		panic(err)
	}
	if want.Normalize().Kind() == KindVoid || !compatible(want, got) {
		contract("apply", "%s returns %s, but got %s", sig, want, got)
	}
}

// matchSignature reports how want differs from have.
func matchSignature(have, want Type) error {
	hp, wp := have.Params(), want.Params()
	if len(hp) != len(wp) {
		return &ContractError{Op: "to closure", Msg: fmt.Sprintf("%s expects %d args, but %s has %d", have, len(hp), want, len(wp))}
	}
	for i := range hp {
		if !compatible(hp[i], wp[i]) {
			return &ContractError{Op: "to closure", Msg: fmt.Sprintf("argument %d of %s is %s, not %s", i, have, hp[i], wp[i])}
		}
	}
	hr, _ := have.Return()
	wr, _ := want.Return()
	if !compatible(hr, wr) {
		return &ContractError{Op: "to closure", Msg: fmt.Sprintf("%s returns %s, not %s", have, hr, wr)}
	}
	return nil
}

// ToClosure converts cf into a Go function of type F. The signature is
// checked once here; traps raised by later calls panic with the *Trap.
func ToClosure[F any](cf *CompiledFunction) (F, error) {
	var zero F
	ft := reflect.TypeFor[F]()
	if ft.Kind() != reflect.Func {
		return zero, &ContractError{Op: "to closure", Want: "func type", Got: ft.String()}
	}
	want, err := TypeFor(ft)
	if err != nil {
		return zero, err
	}
	if err := matchSignature(cf.Signature(), want); err != nil {
		return zero, err
	}
	fn := reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		ptrs := make([]unsafe.Pointer, len(in))
		for i, v := range in {
			ptrs[i] = hostValue(v)
		}
		out := make([]reflect.Value, ft.NumOut())
		switch len(out) {
		case 0:
			if err := cf.fn.Apply(ptrs, nil); err != nil {
				panic(err)
			}
		case 1:
			p := reflect.New(ft.Out(0))
			rp, finish := hostResult(p)
			if err := cf.fn.Apply(ptrs, rp); err != nil {
				panic(err)
			}
			finish()
			out[0] = p.Elem()
		default:
			rt, _ := cf.Signature().Return()
			buf := newBuffer(rt.Size())
			if err := cf.fn.Apply(ptrs, buf); err != nil {
				panic(err)
			}
			off := 0
			for i := range out {
				p := reflect.New(ft.Out(i))
				fromEngine(ft.Out(i), p.UnsafePointer(), unsafe.Add(buf, off))
				off += engineSize(ft.Out(i))
				out[i] = p.Elem()
			}
		}
		runtime.KeepAlive(in)
		runtime.KeepAlive(cf.pins)
		return out
	})
	return fn.Interface().(F), nil
}

// MustClosure is ToClosure for signatures known to match.
func MustClosure[F any](cf *CompiledFunction) F {
	fn, err := ToClosure[F](cf)
	if err != nil {
		panic(err)
	}
	return fn
}
