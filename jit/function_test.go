package jit

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"unsafe"
)

func newContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func mustPanic(t *testing.T, fn func()) any {
	t.Helper()
	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()
	if got == nil {
		t.Fatalf("expected a panic")
	}
	return got
}

func TestReturnConstant(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	f.InsnReturn(f.InsnOf(int32(42)))
	cf := f.MustCompile()

	var got int32
	if err := cf.Apply(&got); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestAddParams(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32, int32) int32](ctx)
	f.InsnReturn(f.InsnAdd(f.Param(0), f.Param(1)))
	cf := f.MustCompile()

	var got int32
	if err := cf.Apply(&got, int32(3), int32(4)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestWhileSum(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	sum, i := f.NewValue(TypeInt), f.NewValue(TypeInt)
	f.InsnStore(sum, f.InsnOf(int32(0)))
	f.InsnStore(i, f.InsnOf(int32(1)))
	f.BuildWhile(func() Val {
		return f.InsnLe(i, f.InsnOf(int32(5)))
	}, func() {
		f.InsnStore(sum, f.InsnAdd(sum, i))
		f.InsnStore(i, f.InsnAdd(i, f.InsnOf(int32(1))))
	})
	f.InsnReturn(sum)

	var got int32
	if err := f.MustCompile().Apply(&got); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *UncompiledFunction)
		in    int32
		want  int32
	}{
		{"if taken", func(f *UncompiledFunction) {
			f.BuildIf(f.InsnGt(f.Param(0), f.InsnOf(int32(0))), func() {
				f.InsnReturn(f.InsnOf(int32(1)))
			})
			f.InsnReturn(f.InsnOf(int32(2)))
		}, 5, 1},
		{"if not taken", func(f *UncompiledFunction) {
			f.BuildIfNot(f.InsnGt(f.Param(0), f.InsnOf(int32(0))), func() {
				f.InsnReturn(f.InsnOf(int32(1)))
			})
			f.InsnReturn(f.InsnOf(int32(2)))
		}, 5, 2},
		{"if else", func(f *UncompiledFunction) {
			f.BuildIfElse(f.Param(0), func() {
				f.InsnReturn(f.InsnOf(int32(10)))
			}, func() {
				f.InsnReturn(f.InsnOf(int32(20)))
			})
		}, 0, 20},
		{"do while runs once", func(f *UncompiledFunction) {
			n := f.NewValue(TypeInt)
			f.BuildDoWhile(func() {
				f.InsnStore(n, f.InsnAdd(n, f.InsnOf(int32(1))))
			}, func() Val {
				return f.InsnLt(n, f.Param(0))
			})
			f.InsnReturn(n)
		}, 0, 1},
		{"for", func(f *UncompiledFunction) {
			i, acc := f.NewValue(TypeInt), f.NewValue(TypeInt)
			f.BuildFor(func() Val { return f.InsnLt(i, f.Param(0)) }, func() {
				f.InsnStore(i, f.InsnAdd(i, f.InsnOf(int32(1))))
			}, func() {
				f.InsnStore(acc, f.InsnAdd(acc, f.InsnOf(int32(3))))
			})
			f.InsnReturn(acc)
		}, 4, 12},
		{"loop with exit", func(f *UncompiledFunction) {
			n := f.NewValue(TypeInt)
			f.BuildLoop(func(exit Label) {
				f.InsnStore(n, f.InsnAdd(n, f.InsnOf(int32(2))))
				f.InsnBranchIf(f.InsnGe(n, f.Param(0)), exit)
			})
			f.InsnReturn(n)
		}, 7, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			f := NewFunc[func(int32) int32](ctx)
			tt.build(f)
			var got int32
			if err := f.MustCompile().Apply(&got, tt.in); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIfElseEmissionOrder(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	var ops []string
	f.OnEmit(func(in Insn) { ops = append(ops, in.Op) })
	f.BuildIfElse(f.Param(0), func() {
		f.InsnReturn(f.InsnOf(int32(1)))
	}, func() {
		f.InsnReturn(f.InsnOf(int32(2)))
	})
	f.OnEmit(nil)

	want := []string{"branch_if_not", "return", "branch", "label", "return", "label"}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("emitted %v, want %v", ops, want)
	}
}

func TestUnresolvedLabel(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	f.InsnBranch(f.NewLabel())
	f.InsnReturn(f.InsnOf(int32(0)))

	_, err := f.Compile()
	if !errors.Is(err, ErrUnresolvedLabel) {
		t.Fatalf("Compile error = %v, want ErrUnresolvedLabel", err)
	}
	if f.IsCompiled() {
		t.Fatalf("function compiled despite the unresolved label")
	}
}

func TestCompileFreezes(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	f.InsnReturn(f.InsnOf(int32(1)))
	a := f.MustCompile()
	b := f.MustCompile()
	if a != b {
		t.Fatalf("second Compile returned a different function")
	}

	r := mustPanic(t, func() { f.InsnReturn(f.InsnOf(int32(2))) })
	err, ok := r.(error)
	if !ok || !errors.Is(err, ErrNotBuilding) {
		t.Fatalf("panic = %v, want ErrNotBuilding", r)
	}
}

func TestParamOutOfRange(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	r := mustPanic(t, func() { f.Param(1) })
	if _, ok := r.(*ContractError); !ok {
		t.Fatalf("panic = %T, want *ContractError", r)
	}
}

func TestLabelPlacedTwice(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	l := f.NewLabel()
	f.InsnLabel(l)
	mustPanic(t, func() { f.InsnLabel(l) })
}

func TestForeignLabel(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	g := NewFunc[func() int32](ctx)
	r := mustPanic(t, func() { f.InsnBranch(g.NewLabel()) })
	err, ok := r.(error)
	if !ok || !errors.Is(err, ErrForeignLabel) {
		t.Fatalf("panic = %v, want ErrForeignLabel", r)
	}
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *UncompiledFunction)
		code  TrapCode
	}{
		{"division by zero", func(f *UncompiledFunction) {
			f.InsnReturn(f.InsnDiv(f.InsnOf(int32(1)), f.Param(0)))
		}, TrapDivisionByZero},
		{"least int32 divided by minus one", func(f *UncompiledFunction) {
			minusOne := f.InsnSub(f.Param(0), f.InsnOf(int32(1)))
			f.InsnReturn(f.InsnDiv(f.InsnOf(int32(math.MinInt32)), minusOne))
		}, TrapOverflow},
		{"checked conversion", func(f *UncompiledFunction) {
			big := f.InsnAdd(f.Param(0), f.InsnOf(int32(1000)))
			f.InsnReturn(f.InsnConvert(big, TypeSByte, true))
		}, TrapOverflow},
		{"jump table", func(f *UncompiledFunction) {
			a, b := f.NewLabel(), f.NewLabel()
			f.InsnJumpTable(f.InsnAdd(f.Param(0), f.InsnOf(int32(5))), a, b)
			f.InsnLabel(a)
			f.InsnReturn(f.InsnOf(int32(1)))
			f.InsnLabel(b)
			f.InsnReturn(f.InsnOf(int32(2)))
		}, TrapJumpTable},
		{"throw", func(f *UncompiledFunction) {
			f.InsnUsesCatcher()
			f.InsnThrow(f.Param(0))
		}, TrapThrown},
		{"null check", func(f *UncompiledFunction) {
			f.InsnCheckNull(f.Param(0))
			f.InsnReturn(f.Param(0))
		}, TrapNullPointer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			f := NewFunc[func(int32) int32](ctx)
			tt.build(f)
			var got int32
			err := f.MustCompile().Apply(&got, int32(0))
			if !IsTrap(err, tt.code) {
				t.Fatalf("Apply error = %v, want trap %s", err, tt.code)
			}
		})
	}
}

func TestDivideLeastInt64(t *testing.T) {
	ctx := newContext(t)
	div := NewFunc[func(int64, int64) int64](ctx)
	div.InsnReturn(div.InsnDiv(div.Param(0), div.Param(1)))
	rem := NewFunc[func(int64, int64) int64](ctx)
	rem.InsnReturn(rem.InsnRem(rem.Param(0), rem.Param(1)))

	for _, f := range []*UncompiledFunction{div, rem} {
		cf := f.MustCompile()
		var got int64
		if err := cf.Apply(&got, int64(math.MinInt64), int64(-1)); !IsTrap(err, TrapOverflow) {
			t.Fatalf("Apply(MinInt64, -1) = %d, %v; want overflow trap", got, err)
		}
		if err := cf.Apply(&got, int64(math.MinInt64+1), int64(-1)); err != nil {
			t.Fatalf("Apply(MinInt64+1, -1): %v", err)
		}
	}
}

func TestJumpTable(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	labels := []Label{f.NewLabel(), f.NewLabel(), f.NewLabel()}
	f.InsnJumpTable(f.Param(0), labels...)
	for i, l := range labels {
		f.InsnLabel(l)
		f.InsnReturn(f.InsnOf(int32(10 * (i + 1))))
	}
	add := MustClosure[func(int32) int32](f.MustCompile())
	for i := range labels {
		if got, want := add(int32(i)), int32(10*(i+1)); got != want {
			t.Errorf("case %d: got %d, want %d", i, got, want)
		}
	}
}

func TestToClosure(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32, int32) int32](ctx)
	f.InsnReturn(f.InsnMul(f.Param(0), f.Param(1)))
	cf := f.MustCompile()

	mul, err := ToClosure[func(int32, int32) int32](cf)
	if err != nil {
		t.Fatalf("ToClosure: %v", err)
	}
	if got := mul(6, 7); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}

	if _, err := ToClosure[func(int32) int32](cf); err == nil {
		t.Fatalf("ToClosure accepted a signature with the wrong arity")
	}
	if _, err := ToClosure[func(float64, float64) float64](cf); err == nil {
		t.Fatalf("ToClosure accepted mismatched parameter types")
	}
}

func TestClosureTrapPanics(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int64) int64](ctx)
	f.InsnReturn(f.InsnRem(f.InsnOf(int64(9)), f.Param(0)))
	rem := MustClosure[func(int64) int64](f.MustCompile())

	r := mustPanic(t, func() { rem(0) })
	err, ok := r.(error)
	if !ok || !IsTrap(err, TrapDivisionByZero) {
		t.Fatalf("panic = %v, want division by zero trap", r)
	}
}

type pair struct {
	_ Packed
	A int32
	B int64
}

func TestRecordApply(t *testing.T) {
	ctx := newContext(t)

	mk := NewFunc[func(int32, int64) pair](ctx)
	v := mk.NewValue(Get[pair]())
	p := mk.InsnAddressOf(v)
	mk.InsnStoreRelative(p, 0, mk.Param(0))
	mk.InsnStoreRelative(p, 4, mk.Param(1))
	mk.InsnReturn(v)

	var got pair
	if err := mk.MustCompile().Apply(&got, int32(3), int64(1<<40)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.A != 3 || got.B != 1<<40 {
		t.Fatalf("got %+v", got)
	}

	second := NewFunc[func(pair) int64](ctx)
	second.InsnReturn(second.InsnLoadRelative(second.InsnAddressOf(second.Param(0)), 4, TypeLong))
	var b int64
	if err := second.MustCompile().Apply(&b, pair{A: 1, B: -5}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if b != -5 {
		t.Fatalf("got %d, want -5", b)
	}
}

func TestInsnOfRecord(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() pair](ctx)
	f.InsnReturn(f.InsnOf(pair{A: 7, B: 11}))
	mk := MustClosure[func() pair](f.MustCompile())
	if got := mk(); got.A != 7 || got.B != 11 {
		t.Fatalf("got %+v", got)
	}
}

func TestInsnOfTuple(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() Tuple2[int32, float64]](ctx)
	f.InsnReturn(f.InsnOf(Tuple2[int32, float64]{V0: 4, V1: 2.5}))
	var got Tuple2[int32, float64]
	if err := f.MustCompile().Apply(&got); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.V0 != 4 || got.V1 != 2.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestCallFunc(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	f.InsnReturn(f.InsnCallFunc("double", func(x int32) int32 { return 2 * x }, 0, f.Param(0)))
	double := MustClosure[func(int32) int32](f.MustCompile())
	if got := double(21); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestCallFuncPassesClosure(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	var calls []Insn
	f.OnEmit(func(in Insn) {
		if in.Op == "call_native" {
			calls = append(calls, in)
		}
	})
	f.InsnReturn(f.InsnCallFunc("double", func(x int32) int32 { return 2 * x }, 0, f.Param(0)))
	f.OnEmit(nil)
	if len(calls) != 1 {
		t.Fatalf("call_native emitted %d times", len(calls))
	}
	if args := calls[0].Args; len(args) != 2 || args[1] != f.Param(0) || args[0].Type().Kind() != TypeVoidPtr.Kind() {
		t.Fatalf("call arguments = %v", calls[0])
	}
	var got int32
	if err := f.MustCompile().Apply(&got, int32(21)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestCallFuncString(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int](ctx)
	f.InsnReturn(f.InsnCallFunc("", func(s string) int { return len(s) }, 0, f.InsnOf("hello")))
	var got int
	if err := f.MustCompile().Apply(&got); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestCallFuncPanicTraps(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func() int32](ctx)
	f.InsnReturn(f.InsnCallFunc("boom", func() int32 { panic("boom") }, 0))
	var got int32
	err := f.MustCompile().Apply(&got)
	if !IsTrap(err, TrapNativePanic) {
		t.Fatalf("Apply error = %v, want native panic trap", err)
	}
}

func TestNativePointer(t *testing.T) {
	ctx := newContext(t)
	sig := Get[func(int32) int32]()
	inc := ctx.NativePointer(func(args []unsafe.Pointer, ret unsafe.Pointer) {
		*(*int32)(ret) = *(*int32)(args[0]) + 1
	}, sig)

	f := NewFunc[func(int32) int32](ctx)
	f.InsnReturn(f.InsnCallIndirect(f.InsnOf(inc), sig, 0, f.Param(0)))
	var got int32
	if err := f.MustCompile().Apply(&got, int32(41)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestCallCompiled(t *testing.T) {
	ctx := newContext(t)
	sq := NewFunc[func(int64) int64](ctx)
	sq.SetName("square")
	sq.InsnReturn(sq.InsnMul(sq.Param(0), sq.Param(0)))

	f := NewFunc[func(int64) int64](ctx)
	direct := f.InsnCall("", sq, 0, f.Param(0))
	indirect := f.InsnCallIndirect(f.InsnFuncPointer(sq), sq.Signature(), 0, f.InsnOf(int64(3)))
	f.InsnReturn(f.InsnAdd(direct, indirect))

	var got int64
	if err := f.MustCompile().Apply(&got, int64(4)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 25 {
		t.Fatalf("got %d, want 25", got)
	}
}

func TestNestedImport(t *testing.T) {
	ctx := newContext(t)
	outer := NewFunc[func(int32) int32](ctx)
	acc := outer.NewValue(TypeInt)
	outer.InsnStore(acc, outer.Param(0))

	inner := ctx.NewNestedFunction(Get[func()](), outer)
	p := inner.InsnImport(acc)
	inner.InsnStoreRelative(p, 0, inner.InsnMul(inner.InsnLoadRelative(p, 0, TypeInt), inner.InsnOf(int32(3))))
	inner.InsnReturn(Val{})

	outer.InsnCall("", inner, 0)
	outer.InsnReturn(acc)

	var got int32
	if err := outer.MustCompile().Apply(&got, int32(5)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
}

func TestFloatMath(t *testing.T) {
	tests := []struct {
		name string
		op   func(f *UncompiledFunction, v Val) Val
		in   float64
		want float64
	}{
		{"sqrt", (*UncompiledFunction).InsnSqrt, 16, 4},
		{"floor", (*UncompiledFunction).InsnFloor, 2.7, 2},
		{"ceil", (*UncompiledFunction).InsnCeil, 2.1, 3},
		{"round", (*UncompiledFunction).InsnRound, 2.5, 3},
		{"rint", (*UncompiledFunction).InsnRint, 2.5, 2},
		{"abs", (*UncompiledFunction).InsnAbs, -1.5, 1.5},
		{"neg", (*UncompiledFunction).InsnNeg, 1.5, -1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(t)
			f := NewFunc[func(float64) float64](ctx)
			f.InsnReturn(tt.op(f, f.Param(0)))
			fn := MustClosure[func(float64) float64](f.MustCompile())
			if got := fn(tt.in); got != tt.want {
				t.Fatalf("%s(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
			}
		})
	}
}

func TestMemoryOps(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(unsafe.Pointer) int32](ctx)
	buf := f.Param(0)
	f.InsnStoreElem(buf, f.InsnOf(int32(2)), f.InsnOf(int32(9)))
	tmp := AllocaOf[int64](f)
	f.InsnMemset(tmp, f.InsnOf(int32(0)), f.InsnOf(uint(8)))
	f.InsnMemcpy(tmp, f.InsnLoadElemAddress(buf, f.InsnOf(int32(2)), TypeInt), f.InsnOf(uint(4)))
	f.InsnReturn(f.InsnLoadRelative(tmp, 0, TypeInt))

	arr := [4]int32{}
	var got int32
	err := f.MustCompile().Apply(&got, unsafe.Pointer(&arr))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 9 || arr[2] != 9 {
		t.Fatalf("got %d, arr %v", got, arr)
	}
}

func TestClosedContext(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	f := NewFunc[func() int32](ctx)
	f.InsnReturn(f.InsnOf(int32(1)))
	cf := f.MustCompile()
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got int32
	if err := cf.Apply(&got); !errors.Is(err, ErrClosed) {
		t.Fatalf("Apply after Close = %v, want ErrClosed", err)
	}
	if cf.IsCompiled() {
		t.Fatalf("function still compiled after Close")
	}
	mustPanic(t, func() { NewFunc[func()](ctx) })
}

func TestTraceOutput(t *testing.T) {
	var buf bytes.Buffer
	ctx, err := NewContext(WithTrace(&buf, "function"))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	f := NewFunc[func()](ctx)
	f.SetName("traced")
	f.InsnDefaultReturn()
	f.MustCompile()
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(buf.String(), "new function") {
		t.Fatalf("trace output missing function creation:\n%s", buf.String())
	}
}

func TestDump(t *testing.T) {
	ctx := newContext(t)
	f := NewFunc[func(int32) int32](ctx)
	f.InsnReturn(f.InsnAdd(f.Param(0), f.InsnOf(int32(1))))
	if d := f.String(); !strings.Contains(d, "add") || !strings.Contains(d, "return") {
		t.Fatalf("dump lacks instructions:\n%s", d)
	}
}
