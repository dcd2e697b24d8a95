package jit

import (
	"reflect"
	"unsafe"

	"jitkit/internal/engine"
)

// Host values and engine values share a memory layout except for packed
// records, whose fields sit at flat offsets in the engine and at Go's
// aligned offsets on the host. Everything crossing the boundary goes
// through toEngine and fromEngine.

func engineSize(rt reflect.Type) int {
	m := lookup(rt)
	if m.err != nil {
		panic(m.err)
	}
	return m.typ.Size()
}

// newBuffer allocates zeroed, 8-byte aligned engine storage.
func newBuffer(size int) unsafe.Pointer {
	buf := make([]uint64, max((size+7)/8, 1))
	return unsafe.Pointer(&buf[0])
}

func rejectFunc(op string, rt reflect.Type) {
	if rt.Kind() == reflect.Func {
		contract(op, "%s: function values cross into compiled code as pointers; use InsnOf or Context.NativePointer", rt)
	}
}

// toEngine copies the host value of type rt at src to engine storage at dst.
func toEngine(rt reflect.Type, dst, src unsafe.Pointer) {
	rejectFunc("marshal", rt)
	m := lookup(rt)
	if m.err != nil {
		panic(m.err)
	}
	if m.record == nil {
		copyBytes(dst, src, min(int(rt.Size()), m.typ.Size()))
		return
	}
	for _, f := range m.record {
		toEngine(f.typ, unsafe.Add(dst, f.offset), unsafe.Add(src, rt.Field(f.index).Offset))
	}
}

// fromEngine copies the engine value at src into the host value of type rt
// at dst.
func fromEngine(rt reflect.Type, dst, src unsafe.Pointer) {
	rejectFunc("unmarshal", rt)
	m := lookup(rt)
	if m.err != nil {
		panic(m.err)
	}
	if m.record == nil {
		copyBytes(dst, src, min(int(rt.Size()), m.typ.Size()))
		return
	}
	for _, f := range m.record {
		fromEngine(f.typ, unsafe.Add(dst, rt.Field(f.index).Offset), unsafe.Add(src, f.offset))
	}
}

func copyBytes(dst, src unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

// hostValue returns engine storage holding v.
func hostValue(v reflect.Value) unsafe.Pointer {
	rt := v.Type()
	rejectFunc("apply", rt)
	src := reflect.New(rt)
	src.Elem().Set(v)
	if lookup(rt).record == nil {
		return src.UnsafePointer()
	}
	buf := newBuffer(engineSize(rt))
	toEngine(rt, buf, src.UnsafePointer())
	return buf
}

// hostResult returns engine storage for a result written through the
// non-nil pointer p, and a function that moves the result into *p.
func hostResult(p reflect.Value) (unsafe.Pointer, func()) {
	rt := p.Type().Elem()
	rejectFunc("apply", rt)
	if lookup(rt).record == nil {
		return p.UnsafePointer(), func() {}
	}
	buf := newBuffer(engineSize(rt))
	return buf, func() { fromEngine(rt, p.UnsafePointer(), buf) }
}

// hostNative adapts the Go function fv to the engine calling convention.
// The first skip arguments are not passed to fv. Multiple results are
// written as a packed struct.
func hostNative(fv reflect.Value, skip int) engine.NativeFunc {
	ft := fv.Type()
	return func(args []unsafe.Pointer, ret unsafe.Pointer) {
		in := make([]reflect.Value, ft.NumIn())
		for i := range in {
			v := reflect.New(ft.In(i))
			fromEngine(ft.In(i), v.UnsafePointer(), args[skip+i])
			in[i] = v.Elem()
		}
		var out []reflect.Value
		if ft.IsVariadic() {
			out = fv.CallSlice(in)
		} else {
			out = fv.Call(in)
		}
		if ret == nil {
			return
		}
		off := 0
		for _, o := range out {
			p := reflect.New(o.Type())
			p.Elem().Set(o)
			toEngine(o.Type(), unsafe.Add(ret, off), p.UnsafePointer())
			off += engineSize(o.Type())
		}
	}
}
