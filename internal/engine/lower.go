package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

type lowerer struct {
	fn  *Function
	pos map[Label]int // label -> step index
}

func lower(f *Function, insns []Insn) *program {
	p := &program{fn: f, nregs: len(f.values), params: f.params, ret: f.sig.Return()}
	for _, v := range f.values {
		switch {
		case v.kind == ValueConst:
			p.consts = append(p.consts, constSpec{reg: v.id, bits: v.bits})
		case v.typ.IsAggregate():
			p.bufs = append(p.bufs, bufSpec{reg: v.id, size: v.typ.Size()})
		}
	}

	lw := &lowerer{fn: f, pos: make(map[Label]int)}
	n := 0
	for _, in := range insns {
		if in.Op == OpLabel {
			lw.pos[in.Labels[0]] = n
			continue
		}
		n++
	}
	p.steps = make([]step, 0, n)
	for _, in := range insns {
		if in.Op == OpLabel {
			continue
		}
		p.steps = append(p.steps, lw.insn(in))
	}
	return p
}

// read returns a loader for v converted to the work kind.
func (lw *lowerer) read(v *Value, work Kind) func(*frame) uint64 {
	k := v.typ.arith()
	id := v.id
	if v.kind == ValueConst {
		b := convertBits(k, v.bits, work)
		return func(*frame) uint64 { return b }
	}
	if k == work || v.typ.IsAggregate() {
		return func(fr *frame) uint64 { return fr.regs[id] }
	}
	return func(fr *frame) uint64 { return convertBits(k, fr.regs[id], work) }
}

func (lw *lowerer) raw(v *Value) func(*frame) uint64 {
	return lw.read(v, v.typ.arith())
}

func truthy(k Kind, bits uint64) bool {
	if classOf(k) == classFloat {
		return asFloat(k, bits) != 0
	}
	return mask(k, bits) != 0
}

func (lw *lowerer) truth(v *Value) func(*frame) bool {
	k := v.typ.arith()
	r := lw.raw(v)
	return func(fr *frame) bool { return truthy(k, r(fr)) }
}

func (lw *lowerer) target(l Label) int {
	pos, ok := lw.pos[l]
	if !ok {
		panic(fmt.Sprintf("engine: label %s has no position", l))
	}
	return pos
}

func (lw *lowerer) insn(in Insn) step {
	switch {
	case in.Op >= OpAdd && in.Op <= OpCmpg:
		return lw.binary(in)
	case in.Op >= OpNeg && in.Op <= OpIsInf:
		return lw.unary(in)
	}

	switch in.Op {
	case OpNop:
		return func(*frame) {}

	case OpStore:
		return lw.copyInto(in.Args[0], in.Args[1])

	case OpDup:
		return lw.copyInto(in.Dest, in.Args[0])

	case OpConvert:
		return lw.convert(in)

	case OpLoadRelative:
		p := lw.read(in.Args[0], KindNUInt)
		off := uint64(int64(in.Offset))
		d := in.Dest.id
		if in.Type.IsAggregate() {
			size := in.Type.Size()
			return func(fr *frame) { memmove(fr.regs[d], p(fr)+off, size) }
		}
		k := in.Type.arith()
		return func(fr *frame) { fr.regs[d] = loadScalar(p(fr)+off, k) }

	case OpStoreRelative:
		p := lw.read(in.Args[0], KindNUInt)
		off := uint64(int64(in.Offset))
		return lw.storeAt(func(fr *frame) uint64 { return p(fr) + off }, in.Args[1])

	case OpAddRelative:
		p := lw.read(in.Args[0], KindNUInt)
		off := uint64(int64(in.Offset))
		d := in.Dest.id
		return func(fr *frame) { fr.regs[d] = p(fr) + off }

	case OpLoadElem, OpLoadElemAddr, OpStoreElem:
		return lw.elem(in)

	case OpAddressOf:
		v, d := in.Args[0], in.Dest.id
		id := v.id
		if v.typ.IsAggregate() {
			return func(fr *frame) { fr.regs[d] = fr.regs[id] }
		}
		return func(fr *frame) { fr.regs[d] = regAddr(fr.regs, id) }

	case OpImport:
		return lw.importValue(in)

	case OpMemcpy, OpMemmove:
		dst := lw.read(in.Args[0], KindNUInt)
		src := lw.read(in.Args[1], KindNUInt)
		n := lw.read(in.Args[2], KindLong)
		return func(fr *frame) { memmove(dst(fr), src(fr), int(int64(n(fr)))) }

	case OpMemset:
		dst := lw.read(in.Args[0], KindNUInt)
		b := lw.read(in.Args[1], KindUByte)
		n := lw.read(in.Args[2], KindLong)
		return func(fr *frame) { memset(dst(fr), byte(b(fr)), int(int64(n(fr)))) }

	case OpAlloca:
		n := lw.read(in.Args[0], KindLong)
		d := in.Dest.id
		return func(fr *frame) {
			size := max(int(int64(n(fr))), 1)
			buf := make([]byte, size)
			fr.allocas = append(fr.allocas, buf)
			fr.regs[d] = bufAddr(buf)
		}

	case OpCheckNull:
		p := lw.read(in.Args[0], KindNUInt)
		return func(fr *frame) {
			if p(fr) == 0 {
				raise(TrapNullPointer, "null pointer")
			}
		}

	case OpBranch:
		t := lw.target(in.Labels[0])
		return func(fr *frame) { fr.pc = t }

	case OpBranchIf, OpBranchIfNot:
		t := lw.target(in.Labels[0])
		c := lw.truth(in.Args[0])
		want := in.Op == OpBranchIf
		return func(fr *frame) {
			if c(fr) == want {
				fr.pc = t
			}
		}

	case OpJumpTable:
		targets := make([]int, len(in.Labels))
		for i, l := range in.Labels {
			targets[i] = lw.target(l)
		}
		idx := lw.read(in.Args[0], KindLong)
		return func(fr *frame) {
			i := int64(idx(fr))
			if i < 0 || i >= int64(len(targets)) {
				raise(TrapJumpTable, "jump table index %d out of range [0, %d)", i, len(targets))
			}
			fr.pc = targets[i]
		}

	case OpReturn:
		return lw.ret(in)

	case OpReturnPtr:
		p := lw.read(in.Args[0], KindNUInt)
		rt := lw.fn.sig.Return()
		if rt.IsAggregate() {
			size := rt.Size()
			return func(fr *frame) {
				if fr.retAddr != 0 {
					memmove(fr.retAddr, p(fr), size)
				}
				fr.done = true
			}
		}
		k := rt.arith()
		return func(fr *frame) {
			fr.ret = loadScalar(p(fr), k)
			fr.done = true
		}

	case OpDefaultReturn:
		rt := lw.fn.sig.Return()
		size := 0
		if rt.IsAggregate() {
			size = rt.Size()
		}
		return func(fr *frame) {
			fr.ret = 0
			if size > 0 && fr.retAddr != 0 {
				memset(fr.retAddr, 0, size)
			}
			fr.done = true
		}

	case OpThrow:
		v := lw.raw(in.Args[0])
		return func(fr *frame) {
			b := v(fr)
			panic(&Trap{Code: TrapThrown, Value: b, Message: fmt.Sprintf("value %#x thrown", b)})
		}

	case OpCall:
		return lw.call(in)

	case OpCallIndirect:
		return lw.callIndirect(in)

	case OpCallNative:
		invoke := lw.nativeCall(in.Name, in.Type, in.Args, in.Dest)
		n := in.Native
		return func(fr *frame) { invoke(fr, n) }
	}
	panic(fmt.Sprintf("engine: cannot lower %s", in.Op))
}

func (lw *lowerer) copyInto(dst, src *Value) step {
	d := dst.id
	if dst.typ.IsAggregate() {
		s := src.id
		size := dst.typ.Size()
		return func(fr *frame) { memmove(fr.regs[d], fr.regs[s], size) }
	}
	r := lw.read(src, dst.typ.arith())
	return func(fr *frame) { fr.regs[d] = r(fr) }
}

func (lw *lowerer) storeAt(at func(*frame) uint64, v *Value) step {
	if v.typ.IsAggregate() {
		id := v.id
		size := v.typ.Size()
		return func(fr *frame) { memmove(at(fr), fr.regs[id], size) }
	}
	k := v.typ.arith()
	r := lw.raw(v)
	return func(fr *frame) { storeScalar(at(fr), k, r(fr)) }
}

func (lw *lowerer) convert(in Insn) step {
	src, d, to := in.Args[0], in.Dest.id, in.Type
	if to.IsAggregate() || src.typ.IsAggregate() {
		return lw.copyInto(in.Dest, src)
	}
	sk, dk := src.typ.arith(), to.arith()
	r := lw.raw(src)
	if to.TagKind() == TagSysBool {
		return func(fr *frame) {
			if truthy(sk, r(fr)) {
				fr.regs[d] = 1
			} else {
				fr.regs[d] = 0
			}
		}
	}
	if in.Check {
		return func(fr *frame) {
			b, err := convertChecked(sk, r(fr), dk)
			if err != nil {
				panic(&Trap{Code: TrapOverflow, Message: fmt.Sprintf("conversion from %s to %s overflows", sk, dk), Cause: err})
			}
			fr.regs[d] = b
		}
	}
	return func(fr *frame) { fr.regs[d] = convertBits(sk, r(fr), dk) }
}

func (lw *lowerer) elem(in Insn) step {
	base := lw.read(in.Args[0], KindNUInt)
	idx := lw.read(in.Args[1], KindLong)
	size := int64(in.Type.Size())
	at := func(fr *frame) uint64 { return base(fr) + uint64(int64(idx(fr))*size) }
	switch in.Op {
	case OpLoadElemAddr:
		d := in.Dest.id
		return func(fr *frame) { fr.regs[d] = at(fr) }
	case OpStoreElem:
		return lw.storeAt(at, in.Args[2])
	}
	d := in.Dest.id
	if in.Type.IsAggregate() {
		n := int(size)
		return func(fr *frame) { memmove(fr.regs[d], at(fr), n) }
	}
	k := in.Type.arith()
	return func(fr *frame) { fr.regs[d] = loadScalar(at(fr), k) }
}

func (lw *lowerer) importValue(in Insn) step {
	owner, v, d := in.Callee, in.Args[0], in.Dest.id
	id := v.id
	agg := v.typ.IsAggregate()
	return func(fr *frame) {
		x := fr.link
		for x != nil && x.prog.fn != owner {
			x = x.link
		}
		if x == nil {
			raise(TrapNoParentFrame, "no active frame of %s", owner.Name())
		}
		if agg {
			fr.regs[d] = x.regs[id]
		} else {
			fr.regs[d] = regAddr(x.regs, id)
		}
	}
}

func (lw *lowerer) ret(in Insn) step {
	rt := lw.fn.sig.Return()
	if len(in.Args) == 0 || rt.Normalize().Kind() == KindVoid {
		return func(fr *frame) {
			fr.ret = 0
			fr.done = true
		}
	}
	v := in.Args[0]
	if rt.IsAggregate() {
		id := v.id
		size := rt.Size()
		return func(fr *frame) {
			if fr.retAddr != 0 {
				memmove(fr.retAddr, fr.regs[id], size)
			}
			fr.done = true
		}
	}
	r := lw.read(v, rt.arith())
	return func(fr *frame) {
		fr.ret = r(fr)
		fr.done = true
	}
}

// findLink locates the frame a nested callee imports values from.
func findLink(fr *frame, parent *Function) *frame {
	if parent == nil {
		return nil
	}
	for x := fr; x != nil; x = x.link {
		if x.prog.fn == parent {
			return x
		}
	}
	return nil
}

func (lw *lowerer) args(args []*Value, sig *TypeDesc) []func(*frame) uint64 {
	out := make([]func(*frame) uint64, len(args))
	for i, a := range args {
		pt := sig.Param(i)
		switch {
		case pt == nil:
			out[i] = lw.raw(a)
		case pt.IsAggregate():
			out[i] = lw.raw(a)
		default:
			out[i] = lw.read(a, pt.arith())
		}
	}
	return out
}

func resolve(f *Function) *program {
	p, err := f.program()
	if err != nil {
		code := TrapCompile
		if errors.Is(err, ErrAbandoned) {
			code = TrapAbandoned
		}
		panic(&Trap{Code: code, Message: fmt.Sprintf("cannot call %s", f.Name()), Cause: err})
	}
	return p
}

type callSite struct {
	conv    []func(*frame) uint64
	dest    int
	retAgg  bool
	retVoid bool
}

func (lw *lowerer) site(args []*Value, sig *TypeDesc, dest *Value) callSite {
	rt := sig.Return()
	return callSite{
		conv:    lw.args(args, sig),
		dest:    dest.id,
		retAgg:  rt.IsAggregate(),
		retVoid: rt.Normalize().Kind() == KindVoid,
	}
}

func (cs callSite) invoke(fr *frame, p *program, callee *Function) {
	args := make([]uint64, len(cs.conv))
	for i, c := range cs.conv {
		args[i] = c(fr)
	}
	var retAddr uint64
	if cs.retAgg {
		retAddr = fr.regs[cs.dest]
	}
	link := findLink(fr, callee.parent)
	if callee.parent != nil && link == nil {
		raise(TrapNoParentFrame, "%s called outside %s", callee.Name(), callee.parent.Name())
	}
	r := p.invoke(link, args, retAddr)
	if !cs.retAgg && !cs.retVoid {
		fr.regs[cs.dest] = r
	}
}

func (lw *lowerer) call(in Insn) step {
	callee := in.Callee
	cs := lw.site(in.Args, in.Type, in.Dest)
	var cached atomic.Pointer[program]
	return func(fr *frame) {
		p := cached.Load()
		if p == nil {
			p = resolve(callee)
			cached.Store(p)
		}
		cs.invoke(fr, p, callee)
	}
}

func (lw *lowerer) callIndirect(in Insn) step {
	fnv := lw.read(in.Args[0], KindNUInt)
	args := in.Args[1:]
	cs := lw.site(args, in.Type, in.Dest)
	native := lw.nativeCall("indirect", in.Type, args, in.Dest)
	return func(fr *frame) {
		h := fnv(fr)
		c, ok := lookupHandle(h)
		if !ok {
			raise(TrapBadFuncPointer, "no function at %#x", h)
		}
		if c.fn != nil {
			cs.invoke(fr, resolve(c.fn), c.fn)
			return
		}
		native(fr, c.native)
	}
}

func (lw *lowerer) nativeCall(name string, sig *TypeDesc, args []*Value, dest *Value) func(*frame, Native) {
	conv := lw.args(args, sig)
	aggs := make([]bool, len(args))
	for i, a := range args {
		aggs[i] = a.typ.IsAggregate()
	}
	rt := sig.Return()
	retAgg := rt.IsAggregate()
	retVoid := rt.Normalize().Kind() == KindVoid
	rk := rt.arith()
	d := dest.id
	n := len(conv)
	return func(fr *frame, fn Native) {
		mem := make([]uint64, n+1)
		ptrs := make([]unsafe.Pointer, n)
		for i, c := range conv {
			b := c(fr)
			if aggs[i] {
				ptrs[i] = ptr(b)
				continue
			}
			mem[i] = b
			ptrs[i] = unsafe.Pointer(&mem[i])
		}
		var ret unsafe.Pointer
		switch {
		case retVoid:
		case retAgg:
			ret = ptr(fr.regs[d])
		default:
			ret = unsafe.Pointer(&mem[n])
		}
		invokeNative(name, fn, ptrs, ret)
		if !retVoid && !retAgg {
			fr.regs[d] = mask(rk, mem[n])
		}
	}
}

func invokeNative(name string, fn Native, args []unsafe.Pointer, ret unsafe.Pointer) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*Trap); ok {
				panic(r)
			}
			panic(&Trap{Code: TrapNativePanic, Message: fmt.Sprintf("native %s panicked: %v", name, r), Recovery: r})
		}
	}()
	fn.Invoke(args, ret)
}
