package engine

var kindTypes = map[Kind]*TypeDesc{
	KindVoid: Void, KindSByte: SByte, KindUByte: UByte, KindShort: Short,
	KindUShort: UShort, KindInt: Int, KindUInt: UInt, KindNInt: NInt,
	KindNUInt: NUInt, KindLong: Long, KindULong: ULong,
	KindFloat32: Float32, KindFloat64: Float64, KindNFloat: NFloat,
}

// TypeOfKind returns the predefined descriptor of a primitive kind.
func TypeOfKind(k Kind) *TypeDesc {
	if t, ok := kindTypes[k]; ok {
		return t
	}
	return nil
}

// promote widens small integers to int and folds non-numeric kinds.
func promote(k Kind) Kind {
	switch k {
	case KindVoid, KindSByte, KindUByte, KindShort, KindUShort:
		return KindInt
	case KindStruct, KindUnion, KindTagged:
		return KindInt
	case KindPointer, KindSignature:
		return KindNUInt
	}
	return k
}

func rank(k Kind) int {
	switch k {
	case KindInt:
		return 1
	case KindUInt:
		return 2
	case KindNInt:
		return 3
	case KindNUInt:
		return 4
	case KindLong:
		return 5
	case KindULong:
		return 6
	case KindFloat32:
		return 7
	case KindFloat64:
		return 8
	case KindNFloat:
		return 9
	}
	return 0
}

// CommonKind returns the arithmetic domain of a binary operation.
func CommonKind(a, b *TypeDesc) Kind {
	ka, kb := promote(a.arith()), promote(b.arith())
	if rank(ka) >= rank(kb) {
		return ka
	}
	return kb
}

func intDomain(k Kind) Kind {
	if k.IsFloat() {
		return KindLong
	}
	return k
}

func floatDomain(k Kind) Kind {
	if k.IsFloat() {
		return k
	}
	return KindFloat64
}

func (f *Function) scalar(op Op, vs ...*Value) {
	for _, v := range vs {
		if v.typ.IsAggregate() {
			usage(op.String(), ErrNotScalar, v.String(), " has type ", v.typ)
		}
	}
}

// Binary emits a two-operand arithmetic, bitwise or comparison instruction.
func (f *Function) Binary(op Op, a, b *Value) *Value {
	f.building(op.String())
	f.own(op.String(), a, b)
	f.scalar(op, a, b)

	work := CommonKind(a.typ, b.typ)
	var rt *TypeDesc
	switch {
	case op.isCompare():
		rt = Int
	case op == OpShl || op == OpShr || op == OpUshr || op == OpSshr:
		work = intDomain(promote(a.typ.arith()))
		rt = TypeOfKind(work)
	case op.isBitwise():
		work = intDomain(work)
		rt = TypeOfKind(work)
	case op == OpPow || op == OpAtan2:
		work = floatDomain(work)
		rt = TypeOfKind(work)
	case (op == OpAdd || op == OpSub || op == OpAddOvf || op == OpSubOvf) && a.typ.Normalize().IsPointer() && !b.typ.Normalize().IsPointer():
		work = KindNUInt
		rt = a.typ
	case (op == OpSub || op == OpSubOvf) && a.typ.Normalize().IsPointer() && b.typ.Normalize().IsPointer():
		work = KindNInt
		rt = NInt
	default:
		rt = TypeOfKind(work)
	}
	dst := f.temp(rt)
	f.emit(Insn{Op: op, Dest: dst, Args: []*Value{a, b}, Work: work})
	return dst
}

// Unary emits a one-operand instruction.
func (f *Function) Unary(op Op, a *Value) *Value {
	f.building(op.String())
	f.own(op.String(), a)
	f.scalar(op, a)

	work := promote(a.typ.arith())
	var rt *TypeDesc
	switch {
	case op == OpNot:
		work = intDomain(work)
		rt = TypeOfKind(work)
	case op == OpSign:
		rt = Int
	case op == OpToBool || op == OpToNotBool:
		work = a.typ.arith()
		rt = Int
	case op.isFloatMath():
		work = floatDomain(work)
		rt = TypeOfKind(work)
	case op.isFloatPredicate():
		work = floatDomain(work)
		rt = Int
	default:
		rt = TypeOfKind(work)
	}
	dst := f.temp(rt)
	f.emit(Insn{Op: op, Dest: dst, Args: []*Value{a}, Work: work})
	return dst
}

// Store copies src into dst, converting scalars to the type of dst.
func (f *Function) Store(dst, src *Value) {
	f.own("store", dst, src)
	if dst.kind == ValueConst {
		usage("store", ErrConstantStore, dst.String())
	}
	f.emit(Insn{Op: OpStore, Args: []*Value{dst, src}})
}

// Dup copies v into a new temporary.
func (f *Function) Dup(v *Value) *Value {
	f.own("load", v)
	dst := f.temp(v.typ)
	f.emit(Insn{Op: OpDup, Dest: dst, Args: []*Value{v}})
	return dst
}

// Convert converts v to t. With check set, values that do not fit raise
// TrapOverflow.
func (f *Function) Convert(v *Value, t *TypeDesc, check bool) *Value {
	f.own("convert", v)
	if v.typ.IsAggregate() || t.IsAggregate() {
		if v.typ.Size() != t.Size() {
			usage("convert", ErrNotScalar, v.typ, " to ", t)
		}
	}
	dst := f.temp(t)
	f.emit(Insn{Op: OpConvert, Dest: dst, Args: []*Value{v}, Type: t, Check: check})
	return dst
}

// LoadRelative loads a value of type t from ptr+offset.
func (f *Function) LoadRelative(ptr *Value, offset int, t *TypeDesc) *Value {
	f.own("load_relative", ptr)
	dst := f.temp(t)
	f.emit(Insn{Op: OpLoadRelative, Dest: dst, Args: []*Value{ptr}, Offset: offset, Type: t})
	return dst
}

// StoreRelative stores v at ptr+offset.
func (f *Function) StoreRelative(ptr *Value, offset int, v *Value) {
	f.own("store_relative", ptr, v)
	f.emit(Insn{Op: OpStoreRelative, Args: []*Value{ptr, v}, Offset: offset, Type: v.typ})
}

// AddRelative computes ptr+offset keeping the pointer type.
func (f *Function) AddRelative(ptr *Value, offset int) *Value {
	f.own("add_relative", ptr)
	dst := f.temp(ptr.typ)
	f.emit(Insn{Op: OpAddRelative, Dest: dst, Args: []*Value{ptr}, Offset: offset})
	return dst
}

// LoadElem loads element index of type elem from the array at base.
func (f *Function) LoadElem(base, index *Value, elem *TypeDesc) *Value {
	f.own("load_elem", base, index)
	dst := f.temp(elem)
	f.emit(Insn{Op: OpLoadElem, Dest: dst, Args: []*Value{base, index}, Type: elem})
	return dst
}

// LoadElemAddress computes the address of element index.
func (f *Function) LoadElemAddress(base, index *Value, elem *TypeDesc) *Value {
	f.own("load_elem_address", base, index)
	dst := f.temp(f.keep(CreatePointer(elem)))
	f.emit(Insn{Op: OpLoadElemAddr, Dest: dst, Args: []*Value{base, index}, Type: elem})
	return dst
}

// StoreElem stores v as element index of the array at base.
func (f *Function) StoreElem(base, index, v *Value) {
	f.own("store_elem", base, index, v)
	f.emit(Insn{Op: OpStoreElem, Args: []*Value{base, index, v}, Type: v.typ})
}

// AddressOf returns a pointer to the storage of v.
func (f *Function) AddressOf(v *Value) *Value {
	f.own("address_of", v)
	dst := f.temp(f.keep(CreatePointer(v.typ)))
	f.emit(Insn{Op: OpAddressOf, Dest: dst, Args: []*Value{v}})
	return dst
}

// Import returns a pointer to v, a value of an enclosing function, as seen
// from the active frame of that function.
func (f *Function) Import(v *Value) *Value {
	f.building("import")
	if v.fn == f {
		return f.AddressOf(v)
	}
	found := false
	for p := f.parent; p != nil; p = p.parent {
		if p == v.fn {
			found = true
			break
		}
	}
	if !found {
		usage("import", ErrForeignValue, v.String(), " is not visible from ", f.Name())
	}
	dst := f.temp(f.keep(CreatePointer(v.typ)))
	f.emit(Insn{Op: OpImport, Dest: dst, Args: []*Value{v}, Callee: v.fn})
	return dst
}

// Memcpy copies size bytes from src to dst. The regions must not overlap.
func (f *Function) Memcpy(dst, src, size *Value) {
	f.own("memcpy", dst, src, size)
	f.emit(Insn{Op: OpMemcpy, Args: []*Value{dst, src, size}})
}

// Memmove copies size bytes from src to dst; the regions may overlap.
func (f *Function) Memmove(dst, src, size *Value) {
	f.own("memmove", dst, src, size)
	f.emit(Insn{Op: OpMemmove, Args: []*Value{dst, src, size}})
}

// Memset fills size bytes at dst with the low byte of b.
func (f *Function) Memset(dst, b, size *Value) {
	f.own("memset", dst, b, size)
	f.emit(Insn{Op: OpMemset, Args: []*Value{dst, b, size}})
}

// Alloca reserves size bytes in the current frame.
func (f *Function) Alloca(size *Value) *Value {
	f.own("alloca", size)
	dst := f.temp(VoidPtr)
	f.emit(Insn{Op: OpAlloca, Dest: dst, Args: []*Value{size}})
	return dst
}

// CheckNull raises TrapNullPointer when v is zero.
func (f *Function) CheckNull(v *Value) {
	f.own("check_null", v)
	f.emit(Insn{Op: OpCheckNull, Args: []*Value{v}})
}

// Branch jumps to l.
func (f *Function) Branch(l Label) {
	f.checkLabel("branch", l)
	f.emit(Insn{Op: OpBranch, Labels: []Label{l}})
}

// BranchIf jumps to l when v is non-zero.
func (f *Function) BranchIf(v *Value, l Label) {
	f.own("branch_if", v)
	f.checkLabel("branch_if", l)
	f.emit(Insn{Op: OpBranchIf, Args: []*Value{v}, Labels: []Label{l}})
}

// BranchIfNot jumps to l when v is zero.
func (f *Function) BranchIfNot(v *Value, l Label) {
	f.own("branch_if_not", v)
	f.checkLabel("branch_if_not", l)
	f.emit(Insn{Op: OpBranchIfNot, Args: []*Value{v}, Labels: []Label{l}})
}

// JumpTable jumps to labels[v]. An index outside the table raises
// TrapJumpTable.
func (f *Function) JumpTable(v *Value, labels []Label) {
	f.own("jump_table", v)
	for _, l := range labels {
		f.checkLabel("jump_table", l)
	}
	ls := make([]Label, len(labels))
	copy(ls, labels)
	f.emit(Insn{Op: OpJumpTable, Args: []*Value{v}, Labels: ls})
}

// Return returns v, converted to the signature result. v may be nil for
// void functions.
func (f *Function) Return(v *Value) {
	if v == nil {
		f.emit(Insn{Op: OpReturn})
		return
	}
	f.own("return", v)
	f.emit(Insn{Op: OpReturn, Args: []*Value{v}})
}

// ReturnPtr returns the value of type t stored at ptr.
func (f *Function) ReturnPtr(ptr *Value, t *TypeDesc) {
	f.own("return_ptr", ptr)
	f.emit(Insn{Op: OpReturnPtr, Args: []*Value{ptr}, Type: t})
}

// DefaultReturn returns the zero value of the result type.
func (f *Function) DefaultReturn() {
	f.emit(Insn{Op: OpDefaultReturn})
}

// Throw raises TrapThrown carrying v.
func (f *Function) Throw(v *Value) {
	f.own("throw", v)
	f.emit(Insn{Op: OpThrow, Args: []*Value{v}})
}

func (f *Function) callArgs(op string, sig *TypeDesc, args []*Value) {
	f.own(op, args...)
	if sig.ABI() != ABIVararg && len(args) != sig.NumParams() {
		usage(op, ErrBadSignature, len(args), " arguments for ", sig)
	}
	if len(args) < sig.NumParams() {
		usage(op, ErrBadSignature, len(args), " arguments for ", sig)
	}
}

func (f *Function) callResult(sig *TypeDesc) *Value {
	return f.temp(sig.Return())
}

// Call emits a direct call of callee.
func (f *Function) Call(callee *Function, name string, args []*Value, flags CallFlags) *Value {
	f.building("call")
	f.callArgs("call", callee.sig, args)
	dst := f.callResult(callee.sig)
	f.emit(Insn{Op: OpCall, Dest: dst, Args: append([]*Value(nil), args...), Callee: callee, Name: name, Flags: flags, Type: callee.sig})
	return dst
}

// CallIndirect calls through the function pointer fn using sig.
func (f *Function) CallIndirect(fn *Value, sig *TypeDesc, args []*Value, flags CallFlags) *Value {
	f.building("call_indirect")
	f.own("call_indirect", fn)
	f.callArgs("call_indirect", sig, args)
	dst := f.callResult(sig)
	all := append([]*Value{fn}, args...)
	f.emit(Insn{Op: OpCallIndirect, Dest: dst, Args: all, Type: f.keep(Copy(sig)), Flags: flags})
	return dst
}

// CallNative calls a host function.
func (f *Function) CallNative(name string, fn Native, sig *TypeDesc, args []*Value, flags CallFlags) *Value {
	f.building("call_native")
	f.callArgs("call_native", sig, args)
	dst := f.callResult(sig)
	f.emit(Insn{Op: OpCallNative, Dest: dst, Args: append([]*Value(nil), args...), Native: fn, Name: name, Type: f.keep(Copy(sig)), Flags: flags})
	return dst
}
