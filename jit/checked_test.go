//go:build !jitrelease

package jit

import (
	"testing"
)

func TestContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *UncompiledFunction)
		msg   string
	}{
		{"sqrt of int", func(f *UncompiledFunction) {
			f.InsnSqrt(f.Param(0))
		}, "Value given to sqrt should be float, got int"},
		{"memcpy float size", func(f *UncompiledFunction) {
			p := f.InsnAddressOf(f.NewValue(TypeLong))
			f.InsnMemcpy(p, p, f.InsnOf(8.0))
		}, "Expected integer size for memcpy, but got float64"},
		{"memcpy int destination", func(f *UncompiledFunction) {
			p := f.InsnAddressOf(f.NewValue(TypeLong))
			f.InsnMemcpy(f.Param(0), p, f.InsnOf(uint(8)))
		}, "Expected pointer destination for memcpy, but got int"},
		{"load through int", func(f *UncompiledFunction) {
			f.InsnLoadRelative(f.Param(0), 0, TypeInt)
		}, "Value given to load_relative should be pointer, got int"},
		{"alloca float", func(f *UncompiledFunction) {
			f.InsnAlloca(f.InsnOf(1.5))
		}, "Value given to alloca should be integer, got float64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			f := NewFunc[func(int32) int32](ctx)
			r := mustPanic(t, func() { tt.build(f) })
			ce, ok := r.(*ContractError)
			if !ok {
				t.Fatalf("panic = %v (%T), want *ContractError", r, r)
			}
			if ce.Error() != tt.msg {
				t.Fatalf("message = %q, want %q", ce.Error(), tt.msg)
			}
		})
	}
}

func TestApplyChecksArguments(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	f.InsnReturn(f.Param(0))
	cf := f.MustCompile()

	var got int32
	mustPanic(t, func() { _ = cf.Apply(&got) })
	mustPanic(t, func() { _ = cf.Apply(&got, 1.5) })
	mustPanic(t, func() { _ = cf.Apply(new(float64), int32(1)) })
	mustPanic(t, func() { _ = cf.Apply(&got, func() {}) })
}

func TestReturnFromVoid(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func()](ctx)
	r := mustPanic(t, func() { f.InsnReturn(f.InsnOf(int32(1))) })
	if _, ok := r.(*ContractError); !ok {
		t.Fatalf("panic = %T, want *ContractError", r)
	}
}
