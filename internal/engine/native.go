package engine

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Native is a host function callable from compiled code. args holds one
// pointer per argument to its value; ret points at storage for the result
// and is nil for void signatures.
type Native interface {
	Invoke(args []unsafe.Pointer, ret unsafe.Pointer)
}

// NativeFunc adapts a plain function to Native.
type NativeFunc func(args []unsafe.Pointer, ret unsafe.Pointer)

func (fn NativeFunc) Invoke(args []unsafe.Pointer, ret unsafe.Pointer) { fn(args, ret) }

// Function pointers handed to compiled code are opaque handles into this
// registry. Zero is the null function pointer.
var (
	handleSeq atomic.Uint64
	handles   sync.Map // uint64 -> callable
)

type callable struct {
	fn     *Function
	native Native
	sig    *TypeDesc
}

func registerHandle(c callable) uint64 {
	h := handleSeq.Add(1)
	handles.Store(h, c)
	return h
}

func releaseHandle(h uint64) { handles.Delete(h) }

func lookupHandle(h uint64) (callable, bool) {
	v, ok := handles.Load(h)
	if !ok {
		return callable{}, false
	}
	return v.(callable), true
}

// Handle returns the function pointer of f, allocating it on first use.
func (f *Function) Handle() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateAbandoned {
		return 0
	}
	if f.handle == 0 {
		f.handle = registerHandle(callable{fn: f})
	}
	return f.handle
}

// FunctionFromHandle resolves a function pointer produced by Handle.
func FunctionFromHandle(h uint64) *Function {
	c, ok := lookupHandle(h)
	if !ok {
		return nil
	}
	return c.fn
}

// RegisterNative exposes a host function as a function pointer that
// compiled code can call with CallIndirect. The returned release func
// invalidates the pointer.
func RegisterNative(fn Native, sig *TypeDesc) (uint64, func()) {
	sig = Copy(sig)
	h := registerHandle(callable{native: fn, sig: sig})
	var once sync.Once
	return h, func() {
		once.Do(func() {
			releaseHandle(h)
			Free(sig)
		})
	}
}
