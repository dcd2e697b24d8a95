package jit

import (
	"errors"
	"fmt"

	"jitkit/internal/engine"
	"jitkit/internal/trace"
)

// NativeFunc is a host function called with pointers to its arguments and
// to storage for its result.
type NativeFunc = engine.NativeFunc

// CallFlags modify call instructions.
type CallFlags = engine.CallFlags

const (
	CallNoThrow  = engine.CallNoThrow
	CallNoReturn = engine.CallNoReturn
	CallTail     = engine.CallTail
)

func (f *UncompiledFunction) operands(op string, vs ...Val) {
	for i, v := range vs {
		if !v.IsValid() {
			contract(op, "operand %d is an invalid Val", i)
		}
	}
}

func (f *UncompiledFunction) binary(op engine.Op, a, b Val) Val {
	f.operands(op.String(), a, b)
	return Val{f.fn.Binary(op, a.v, b.v)}
}

func (f *UncompiledFunction) unary(op engine.Op, a Val) Val {
	f.operands(op.String(), a)
	return Val{f.fn.Unary(op, a.v)}
}

func (f *UncompiledFunction) float(op engine.Op, a Val) Val {
	f.operands(op.String(), a)
	expect(op.String(), a, classFloat)
	return Val{f.fn.Unary(op, a.v)}
}

func (f *UncompiledFunction) InsnAdd(a, b Val) Val    { return f.binary(engine.OpAdd, a, b) }
func (f *UncompiledFunction) InsnAddOvf(a, b Val) Val { return f.binary(engine.OpAddOvf, a, b) }
func (f *UncompiledFunction) InsnSub(a, b Val) Val    { return f.binary(engine.OpSub, a, b) }
func (f *UncompiledFunction) InsnSubOvf(a, b Val) Val { return f.binary(engine.OpSubOvf, a, b) }
func (f *UncompiledFunction) InsnMul(a, b Val) Val    { return f.binary(engine.OpMul, a, b) }
func (f *UncompiledFunction) InsnMulOvf(a, b Val) Val { return f.binary(engine.OpMulOvf, a, b) }

// InsnDiv divides a by b. Integer division by zero traps with
// TrapDivisionByZero.
func (f *UncompiledFunction) InsnDiv(a, b Val) Val { return f.binary(engine.OpDiv, a, b) }
func (f *UncompiledFunction) InsnRem(a, b Val) Val { return f.binary(engine.OpRem, a, b) }

func (f *UncompiledFunction) InsnAnd(a, b Val) Val { return f.binary(engine.OpAnd, a, b) }
func (f *UncompiledFunction) InsnOr(a, b Val) Val  { return f.binary(engine.OpOr, a, b) }
func (f *UncompiledFunction) InsnXor(a, b Val) Val { return f.binary(engine.OpXor, a, b) }
func (f *UncompiledFunction) InsnShl(a, b Val) Val { return f.binary(engine.OpShl, a, b) }

// InsnShr shifts right, arithmetically for signed operands.
func (f *UncompiledFunction) InsnShr(a, b Val) Val  { return f.binary(engine.OpShr, a, b) }
func (f *UncompiledFunction) InsnUshr(a, b Val) Val { return f.binary(engine.OpUshr, a, b) }
func (f *UncompiledFunction) InsnSshr(a, b Val) Val { return f.binary(engine.OpSshr, a, b) }

func (f *UncompiledFunction) InsnMin(a, b Val) Val {
	expect("min", a, classPrimitive)
	expect("min", b, classPrimitive)
	return f.binary(engine.OpMin, a, b)
}

func (f *UncompiledFunction) InsnMax(a, b Val) Val {
	expect("max", a, classPrimitive)
	expect("max", b, classPrimitive)
	return f.binary(engine.OpMax, a, b)
}

func (f *UncompiledFunction) InsnPow(a, b Val) Val   { return f.binary(engine.OpPow, a, b) }
func (f *UncompiledFunction) InsnAtan2(a, b Val) Val { return f.binary(engine.OpAtan2, a, b) }

// Comparisons yield an int that is 1 when the relation holds.
func (f *UncompiledFunction) InsnEq(a, b Val) Val { return f.binary(engine.OpEq, a, b) }
func (f *UncompiledFunction) InsnNe(a, b Val) Val { return f.binary(engine.OpNe, a, b) }
func (f *UncompiledFunction) InsnLt(a, b Val) Val { return f.binary(engine.OpLt, a, b) }
func (f *UncompiledFunction) InsnLe(a, b Val) Val { return f.binary(engine.OpLe, a, b) }
func (f *UncompiledFunction) InsnGt(a, b Val) Val { return f.binary(engine.OpGt, a, b) }
func (f *UncompiledFunction) InsnGe(a, b Val) Val { return f.binary(engine.OpGe, a, b) }

// InsnCmpl compares a and b yielding -1, 0 or 1; NaN compares as less.
func (f *UncompiledFunction) InsnCmpl(a, b Val) Val { return f.binary(engine.OpCmpl, a, b) }

// InsnCmpg is InsnCmpl with NaN comparing as greater.
func (f *UncompiledFunction) InsnCmpg(a, b Val) Val { return f.binary(engine.OpCmpg, a, b) }

func (f *UncompiledFunction) InsnNeg(a Val) Val { return f.unary(engine.OpNeg, a) }
func (f *UncompiledFunction) InsnNot(a Val) Val { return f.unary(engine.OpNot, a) }

func (f *UncompiledFunction) InsnAbs(a Val) Val {
	expect("abs", a, classPrimitive)
	return f.unary(engine.OpAbs, a)
}

func (f *UncompiledFunction) InsnSign(a Val) Val {
	expect("sign", a, classPrimitive)
	return f.unary(engine.OpSign, a)
}

func (f *UncompiledFunction) InsnToBool(a Val) Val    { return f.unary(engine.OpToBool, a) }
func (f *UncompiledFunction) InsnToNotBool(a Val) Val { return f.unary(engine.OpToNotBool, a) }

// InsnSqrt requires a floating point operand.
func (f *UncompiledFunction) InsnSqrt(a Val) Val  { return f.float(engine.OpSqrt, a) }
func (f *UncompiledFunction) InsnSin(a Val) Val   { return f.float(engine.OpSin, a) }
func (f *UncompiledFunction) InsnCos(a Val) Val   { return f.float(engine.OpCos, a) }
func (f *UncompiledFunction) InsnTan(a Val) Val   { return f.float(engine.OpTan, a) }
func (f *UncompiledFunction) InsnAsin(a Val) Val  { return f.float(engine.OpAsin, a) }
func (f *UncompiledFunction) InsnAcos(a Val) Val  { return f.float(engine.OpAcos, a) }
func (f *UncompiledFunction) InsnAtan(a Val) Val  { return f.float(engine.OpAtan, a) }
func (f *UncompiledFunction) InsnSinh(a Val) Val  { return f.float(engine.OpSinh, a) }
func (f *UncompiledFunction) InsnCosh(a Val) Val  { return f.float(engine.OpCosh, a) }
func (f *UncompiledFunction) InsnTanh(a Val) Val  { return f.float(engine.OpTanh, a) }
func (f *UncompiledFunction) InsnExp(a Val) Val   { return f.float(engine.OpExp, a) }
func (f *UncompiledFunction) InsnLog(a Val) Val   { return f.float(engine.OpLog, a) }
func (f *UncompiledFunction) InsnLog10(a Val) Val { return f.float(engine.OpLog10, a) }
func (f *UncompiledFunction) InsnFloor(a Val) Val { return f.float(engine.OpFloor, a) }
func (f *UncompiledFunction) InsnCeil(a Val) Val  { return f.float(engine.OpCeil, a) }

// InsnRint rounds half to even.
func (f *UncompiledFunction) InsnRint(a Val) Val { return f.float(engine.OpRint, a) }

// InsnRound rounds half away from zero.
func (f *UncompiledFunction) InsnRound(a Val) Val { return f.float(engine.OpRound, a) }
func (f *UncompiledFunction) InsnTrunc(a Val) Val { return f.float(engine.OpTrunc, a) }

func (f *UncompiledFunction) InsnIsNaN(a Val) Val    { return f.float(engine.OpIsNaN, a) }
func (f *UncompiledFunction) InsnIsFinite(a Val) Val { return f.float(engine.OpIsFinite, a) }
func (f *UncompiledFunction) InsnIsInf(a Val) Val    { return f.float(engine.OpIsInf, a) }

// InsnConvert converts v to t. With overflowCheck set, a value that does
// not fit in t traps with TrapOverflow at run time.
func (f *UncompiledFunction) InsnConvert(v Val, t Type, overflowCheck bool) Val {
	f.operands("convert", v)
	return Val{f.fn.Convert(v.v, t.desc("convert"), overflowCheck)}
}

// InsnStore copies src into the local dst.
func (f *UncompiledFunction) InsnStore(dst, src Val) {
	f.operands("store", dst, src)
	f.fn.Store(dst.v, src.v)
}

// InsnDup copies v into a fresh temporary.
func (f *UncompiledFunction) InsnDup(v Val) Val {
	f.operands("load", v)
	return Val{f.fn.Dup(v.v)}
}

// InsnLoad is InsnDup.
func (f *UncompiledFunction) InsnLoad(v Val) Val { return f.InsnDup(v) }

// InsnLoadRelative loads a value of type t from ptr+offset.
func (f *UncompiledFunction) InsnLoadRelative(ptr Val, offset int, t Type) Val {
	f.operands("load_relative", ptr)
	expect("load_relative", ptr, classPointer)
	return Val{f.fn.LoadRelative(ptr.v, offset, t.desc("load_relative"))}
}

// InsnStoreRelative stores v at ptr+offset.
func (f *UncompiledFunction) InsnStoreRelative(ptr Val, offset int, v Val) {
	f.operands("store_relative", ptr, v)
	expect("store_relative", ptr, classPointer)
	f.fn.StoreRelative(ptr.v, offset, v.v)
}

// InsnAddRelative computes ptr+offset.
func (f *UncompiledFunction) InsnAddRelative(ptr Val, offset int) Val {
	f.operands("add_relative", ptr)
	expect("add_relative", ptr, classPointer)
	return Val{f.fn.AddRelative(ptr.v, offset)}
}

// InsnLoadElem loads element index of type elem from the array at base.
func (f *UncompiledFunction) InsnLoadElem(base, index Val, elem Type) Val {
	f.operands("load_elem", base, index)
	expectRole("load_elem", "index", index, classInt)
	return Val{f.fn.LoadElem(base.v, index.v, elem.desc("load_elem"))}
}

func (f *UncompiledFunction) InsnLoadElemAddress(base, index Val, elem Type) Val {
	f.operands("load_elem_address", base, index)
	expectRole("load_elem_address", "index", index, classInt)
	return Val{f.fn.LoadElemAddress(base.v, index.v, elem.desc("load_elem_address"))}
}

func (f *UncompiledFunction) InsnStoreElem(base, index, v Val) {
	f.operands("store_elem", base, index, v)
	expectRole("store_elem", "index", index, classInt)
	f.fn.StoreElem(base.v, index.v, v.v)
}

// InsnAddressOf returns a pointer to the storage of v.
func (f *UncompiledFunction) InsnAddressOf(v Val) Val {
	f.operands("address_of", v)
	return Val{f.fn.AddressOf(v.v)}
}

// InsnImport returns a pointer to v, a value of an enclosing function.
func (f *UncompiledFunction) InsnImport(v Val) Val {
	f.operands("import", v)
	return Val{f.fn.Import(v.v)}
}

// InsnMemcpy copies size bytes from src to dst. The regions must not
// overlap.
func (f *UncompiledFunction) InsnMemcpy(dst, src, size Val) {
	f.operands("memcpy", dst, src, size)
	expectMemory("memcpy", dst, src, size, classPointer)
	f.fn.Memcpy(dst.v, src.v, size.v)
}

func (f *UncompiledFunction) InsnMemmove(dst, src, size Val) {
	f.operands("memmove", dst, src, size)
	expectMemory("memmove", dst, src, size, classPointer)
	f.fn.Memmove(dst.v, src.v, size.v)
}

// InsnMemset fills size bytes at dst with the low byte of b.
func (f *UncompiledFunction) InsnMemset(dst, b, size Val) {
	f.operands("memset", dst, b, size)
	expectMemory("memset", dst, b, size, classInt)
	f.fn.Memset(dst.v, b.v, size.v)
}

// InsnAlloca reserves size bytes in the frame of the function.
func (f *UncompiledFunction) InsnAlloca(size Val) Val {
	f.operands("alloca", size)
	expect("alloca", size, classInt)
	return Val{f.fn.Alloca(size.v)}
}

// AllocaOf reserves frame storage for one T.
func AllocaOf[T any](f *UncompiledFunction) Val {
	t := Get[T]()
	return f.InsnAlloca(f.InsnOf(uint(t.Size())))
}

// InsnCheckNull traps with TrapNullPointer when v is zero.
func (f *UncompiledFunction) InsnCheckNull(v Val) {
	f.operands("check_null", v)
	f.fn.CheckNull(v.v)
}

func (f *UncompiledFunction) label(op string, l Label) engine.Label {
	if !l.IsValid() {
		contract(op, "invalid Label")
	}
	if l.owner != f.fn {
		panic(fmt.Errorf("%s: %w: %s", op, ErrForeignLabel, l))
	}
	return l.id
}

// InsnLabel places l at the current position. Placing a label twice
// panics.
func (f *UncompiledFunction) InsnLabel(l Label) {
	id := f.label("label", l)
	if err := f.fn.PlaceLabel(id); err != nil {
		if errors.Is(err, ErrLabelPlaced) {
			contract("label", "%s is already placed", l)
		}
		panic(err)
	}
}

func (f *UncompiledFunction) InsnBranch(l Label) { f.fn.Branch(f.label("branch", l)) }

// InsnBranchIf jumps to l when v is non-zero.
func (f *UncompiledFunction) InsnBranchIf(v Val, l Label) {
	f.operands("branch_if", v)
	f.fn.BranchIf(v.v, f.label("branch_if", l))
}

// InsnBranchIfNot jumps to l when v is zero.
func (f *UncompiledFunction) InsnBranchIfNot(v Val, l Label) {
	f.operands("branch_if_not", v)
	f.fn.BranchIfNot(v.v, f.label("branch_if_not", l))
}

// InsnJumpTable jumps to labels[v]. An index outside the table traps with
// TrapJumpTable.
func (f *UncompiledFunction) InsnJumpTable(v Val, labels ...Label) {
	f.operands("jump_table", v)
	expect("jump_table", v, classInt)
	ids := make([]engine.Label, len(labels))
	for i, l := range labels {
		ids[i] = f.label("jump_table", l)
	}
	f.fn.JumpTable(v.v, ids)
}

// InsnReturn returns v. The zero Val returns from a void function.
func (f *UncompiledFunction) InsnReturn(v Val) {
	if Checked && v.IsValid() {
		want, _ := f.Signature().Return()
		if want.Normalize().Kind() == KindVoid {
			contract("return", "%s returns void, got %s", f.Name(), v.Type())
		}
	}
	f.fn.Return(v.v)
}

// InsnReturnPtr returns the value of the result type stored at ptr.
func (f *UncompiledFunction) InsnReturnPtr(ptr Val) {
	f.operands("return_ptr", ptr)
	expect("return_ptr", ptr, classPointer)
	rt, _ := f.Signature().Return()
	f.fn.ReturnPtr(ptr.v, rt.d)
}

// InsnDefaultReturn returns the zero value of the result type.
func (f *UncompiledFunction) InsnDefaultReturn() { f.fn.DefaultReturn() }

// InsnThrow traps with TrapThrown carrying v.
func (f *UncompiledFunction) InsnThrow(v Val) {
	f.operands("throw", v)
	f.fn.Throw(v.v)
}

// InsnUsesCatcher marks the function as containing a catch block.
func (f *UncompiledFunction) InsnUsesCatcher() { f.fn.MarkUsesCatcher() }

func (f *UncompiledFunction) callArgs(op string, sig Type, args []Val) {
	f.operands(op, args...)
	if !Checked {
		return
	}
	params := sig.Params()
	for i, a := range args {
		if i >= len(params) {
			break
		}
		if t := a.Type(); !compatible(params[i], t) && !(params[i].IsPrimitive() && t.IsPrimitive()) {
			contract(op, "argument %d should be %s, got %s", i, params[i], t)
		}
	}
}

// InsnCall calls callee, a function of the same context. Calls to a
// function that is still being built compile it on first use.
func (f *UncompiledFunction) InsnCall(name string, callee Callable, flags CallFlags, args ...Val) Val {
	if callee == nil {
		contract("call", "nil callee")
	}
	cf := callee.engineFunction()
	if cf.Context() != f.fn.Context() {
		contract("call", "%s belongs to another context", cf.Name())
	}
	f.callArgs("call", wrap(cf.Signature()), args)
	if name == "" {
		name = cf.Name()
	}
	return Val{f.fn.Call(cf, name, vals(args), flags)}
}

// InsnCallIndirect calls the function pointer fn with signature sig.
func (f *UncompiledFunction) InsnCallIndirect(fn Val, sig Type, flags CallFlags, args ...Val) Val {
	f.operands("call_indirect", fn)
	expect("call_indirect", fn, classCallable)
	expectSignature("call_indirect", sig)
	f.callArgs("call_indirect", sig, args)
	return Val{f.fn.CallIndirect(fn.v, sig.d, vals(args), flags)}
}

// InsnCallNative calls the host function fn with signature sig.
func (f *UncompiledFunction) InsnCallNative(name string, fn NativeFunc, sig Type, flags CallFlags, args ...Val) Val {
	if fn == nil {
		contract("call_native", "nil native function")
	}
	expectSignature("call_native", sig)
	f.callArgs("call_native", sig, args)
	return Val{f.fn.CallNative(name, fn, sig.d, vals(args), flags)}
}

// InsnCallFunc calls the Go function fn. Its signature is derived from the
// type of fn; arguments and results are marshalled like Apply does.
//
// The call goes through a trampoline of signature (closure, args...) ->
// result: the first argument is the function pointer of fn itself, valid
// until the context is closed.
func (f *UncompiledFunction) InsnCallFunc(name string, fn any, flags CallFlags, args ...Val) Val {
	fv := reflectFunc("call_func", fn)
	sig, err := TypeFor(fv.Type())
	if err != nil {
		panic(err)
	}
	f.pin(fn)
	if name == "" {
		name = fv.Type().String()
	}
	trace.Point(f.ctx.tracer, trace.ScopeInsn, "call_func", name)

	ret, _ := sig.Return()
	tramp := NewSignature(sig.ABI(), ret, append([]Type{TypeVoidPtr}, sig.Params()...)...)
	defer tramp.Release()
	native := hostNative(fv, 1)
	h, release := engine.RegisterNative(native, tramp.d)
	f.ctx.onClose(release)
	self := Val{f.fn.ConstUint(engine.VoidPtr, h)}
	return f.InsnCallNative(name, native, tramp, flags, append([]Val{self}, args...)...)
}

// InsnFuncPointer returns the function pointer of callee.
func (f *UncompiledFunction) InsnFuncPointer(callee Callable) Val {
	if callee == nil {
		contract("func_pointer", "nil callee")
	}
	cf := callee.engineFunction()
	return Val{f.fn.ConstUint(engine.VoidPtr, cf.Handle())}
}
