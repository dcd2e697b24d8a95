package jit

import (
	"reflect"
	"unsafe"

	"jitkit/internal/engine"
)

// InsnOf materializes the Go value v as a constant or an initialized local
// of f. Types implementing Compiler lower themselves. Pointers, strings and
// slices become references to host memory that f keeps alive; function
// values become native function pointers released with the context.
func (f *UncompiledFunction) InsnOf(v any) Val {
	if v == nil {
		contract("insn_of", "nil value")
	}
	rv := reflect.ValueOf(v)
	c := reflect.New(rv.Type()).Elem()
	c.Set(rv)
	return f.lower(c)
}

// Of is InsnOf for a statically typed value.
func Of[T any](f *UncompiledFunction, v T) Val {
	c := reflect.New(reflect.TypeFor[T]()).Elem()
	c.Set(reflect.ValueOf(&v).Elem())
	return f.lower(c)
}

func reflectFunc(op string, fn any) reflect.Value {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		contract(op, "expected a non-nil func, got %T", fn)
	}
	return fv
}

// field returns field i of the addressable struct value rv without the
// read-only flag of unexported fields.
func field(rv reflect.Value, i int) reflect.Value {
	sf := rv.Type().Field(i)
	return reflect.NewAt(sf.Type, unsafe.Add(rv.Addr().UnsafePointer(), sf.Offset)).Elem()
}

// lower emits rv, which must be addressable.
func (f *UncompiledFunction) lower(rv reflect.Value) Val {
	rt := rv.Type()
	if implementsCompiler(rt) {
		return rv.Interface().(Compiler).Compile(f)
	}
	m := lookup(rt)
	if m.err != nil {
		panic(m.err)
	}
	t := m.typ.d

	switch rt.Kind() {
	case reflect.Bool:
		var b int64
		if rv.Bool() {
			b = 1
		}
		return Val{f.fn.ConstInt(t, b)}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Val{f.fn.ConstInt(t, rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Val{f.fn.ConstUint(t, rv.Uint())}
	case reflect.Float32, reflect.Float64:
		return Val{f.fn.ConstFloat(t, rv.Float())}

	case reflect.Pointer, reflect.UnsafePointer:
		f.pin(rv.Interface())
		return Val{f.fn.ConstUint(t, uint64(rv.Pointer()))}

	case reflect.String:
		s := rv.String()
		f.pin(s)
		return f.header(m.typ, uint64(uintptr(unsafe.Pointer(unsafe.StringData(s)))), uint64(len(s)))

	case reflect.Slice:
		f.pin(rv.Interface())
		return f.header(m.typ, uint64(rv.Pointer()), uint64(rv.Len()), uint64(rv.Cap()))

	case reflect.Func:
		if rv.IsNil() {
			return Val{f.fn.ConstUint(t, 0)}
		}
		h, release := engine.RegisterNative(hostNative(rv, 0), t)
		f.ctx.onClose(release)
		return Val{f.fn.ConstUint(t, h)}

	case reflect.Struct:
		if rt.NumField() == 0 {
			return Val{f.fn.NewValue(t)}
		}
		if rt.NumField() == 1 && rt.Implements(tupleType) {
			return f.lower(field(rv, 0))
		}
		out := f.fn.NewValue(t)
		for _, rf := range m.record {
			f.fn.StoreRelative(out, rf.offset, f.lower(field(rv, rf.index)).v)
		}
		return Val{out}
	}
	panic(notCompatible(rt.String()))
}

// header builds a string or slice header local from its words.
func (f *UncompiledFunction) header(t Type, words ...uint64) Val {
	n := t.Normalize()
	out := f.fn.NewValue(t.d)
	for i, w := range words {
		fd, _ := n.Field(i)
		f.fn.StoreRelative(out, fd.Offset, f.fn.ConstUint(fd.Type.d, w))
	}
	return Val{out}
}
