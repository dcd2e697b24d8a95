package engine

import (
	"fmt"
	"math"
)

func (lw *lowerer) binary(in Insn) step {
	work := in.Work
	x := lw.read(in.Args[0], work)
	y := lw.read(in.Args[1], work)
	d := in.Dest.id
	fn := binaryOp(in.Op, work)
	return func(fr *frame) { fr.regs[d] = fn(x(fr), y(fr)) }
}

func (lw *lowerer) unary(in Insn) step {
	work := in.Work
	x := lw.read(in.Args[0], work)
	d := in.Dest.id
	fn := unaryOp(in.Op, work)
	return func(fr *frame) { fr.regs[d] = fn(x(fr)) }
}

func overflow(op Op, k Kind) {
	raise(TrapOverflow, "%s overflows %s", op, k)
}

func divideByZero() {
	raise(TrapDivisionByZero, "integer division by zero")
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func intBits(v int64) uint64 { return fromInt(KindInt, v) }

func binaryOp(op Op, k Kind) func(a, b uint64) uint64 {
	var fn func(a, b uint64) uint64
	switch {
	case op.isCompare():
		fn = compareOp(op, k)
	case classOf(k) == classFloat:
		fn = floatBinary(op, k)
	case classOf(k) == classUnsigned:
		fn = uintBinary(op, k)
	default:
		fn = intBinary(op, k)
	}
	if fn == nil {
		panic(fmt.Sprintf("engine: %s is not defined on %s", op, k))
	}
	return fn
}

// fitsInt reports whether v is representable in the signed kind k.
func fitsInt(k Kind, v int64) bool {
	bits := width(k) * 8
	if bits >= 64 {
		return true
	}
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	return v >= lo && v <= hi
}

func fitsUint(k Kind, v uint64) bool {
	bits := width(k) * 8
	return bits >= 64 || v < uint64(1)<<bits
}

func intBinary(op Op, k Kind) func(a, b uint64) uint64 {
	wrap := func(g func(x, y int64) int64) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return fromInt(k, g(asInt(k, a), asInt(k, b))) }
	}
	checked := func(g func(x, y int64) (int64, bool)) func(a, b uint64) uint64 {
		return wrap(func(x, y int64) int64 {
			r, ok := g(x, y)
			if !ok || !fitsInt(k, r) {
				overflow(op, k)
			}
			return r
		})
	}
	shift := uint64(width(k)*8 - 1)
	least := int64(-1) << shift
	// x / -1 with x the least value of k has no representable quotient
	divisor := func(x, y int64) {
		switch {
		case y == 0:
			divideByZero()
		case y == -1 && x == least:
			overflow(op, k)
		}
	}
	switch op {
	case OpAdd:
		return wrap(func(x, y int64) int64 { return x + y })
	case OpSub:
		return wrap(func(x, y int64) int64 { return x - y })
	case OpMul:
		return wrap(func(x, y int64) int64 { return x * y })
	case OpAddOvf:
		return checked(addInt64Checked)
	case OpSubOvf:
		return checked(subInt64Checked)
	case OpMulOvf:
		return checked(mulInt64Checked)
	case OpDiv:
		return wrap(func(x, y int64) int64 {
			divisor(x, y)
			return x / y
		})
	case OpRem:
		return wrap(func(x, y int64) int64 {
			divisor(x, y)
			return x % y
		})
	case OpAnd:
		return wrap(func(x, y int64) int64 { return x & y })
	case OpOr:
		return wrap(func(x, y int64) int64 { return x | y })
	case OpXor:
		return wrap(func(x, y int64) int64 { return x ^ y })
	case OpShl:
		return wrap(func(x, y int64) int64 { return x << (uint64(y) & shift) })
	case OpShr, OpSshr:
		return wrap(func(x, y int64) int64 { return x >> (uint64(y) & shift) })
	case OpUshr:
		return func(a, b uint64) uint64 { return fromUint(k, mask(k, a)>>(asUint(k, b)&shift)) }
	case OpMin:
		return wrap(func(x, y int64) int64 { return min(x, y) })
	case OpMax:
		return wrap(func(x, y int64) int64 { return max(x, y) })
	}
	return nil
}

func uintBinary(op Op, k Kind) func(a, b uint64) uint64 {
	wrap := func(g func(x, y uint64) uint64) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return fromUint(k, g(asUint(k, a), asUint(k, b))) }
	}
	checked := func(g func(x, y uint64) (uint64, bool)) func(a, b uint64) uint64 {
		return wrap(func(x, y uint64) uint64 {
			r, ok := g(x, y)
			if !ok || !fitsUint(k, r) {
				overflow(op, k)
			}
			return r
		})
	}
	shift := uint64(width(k)*8 - 1)
	switch op {
	case OpAdd:
		return wrap(func(x, y uint64) uint64 { return x + y })
	case OpSub:
		return wrap(func(x, y uint64) uint64 { return x - y })
	case OpMul:
		return wrap(func(x, y uint64) uint64 { return x * y })
	case OpAddOvf:
		return checked(addUint64Checked)
	case OpSubOvf:
		return checked(subUint64Checked)
	case OpMulOvf:
		return checked(mulUint64Checked)
	case OpDiv:
		return wrap(func(x, y uint64) uint64 {
			if y == 0 {
				divideByZero()
			}
			return x / y
		})
	case OpRem:
		return wrap(func(x, y uint64) uint64 {
			if y == 0 {
				divideByZero()
			}
			return x % y
		})
	case OpAnd:
		return wrap(func(x, y uint64) uint64 { return x & y })
	case OpOr:
		return wrap(func(x, y uint64) uint64 { return x | y })
	case OpXor:
		return wrap(func(x, y uint64) uint64 { return x ^ y })
	case OpShl:
		return wrap(func(x, y uint64) uint64 { return x << (y & shift) })
	case OpShr, OpUshr:
		return wrap(func(x, y uint64) uint64 { return x >> (y & shift) })
	case OpSshr:
		return func(a, b uint64) uint64 {
			s := asUint(k, b) & shift
			return fromInt(k, signExtend(k, a)>>s)
		}
	case OpMin:
		return wrap(func(x, y uint64) uint64 { return min(x, y) })
	case OpMax:
		return wrap(func(x, y uint64) uint64 { return max(x, y) })
	}
	return nil
}

// signExtend reads an unsigned register as the signed value of the same width.
func signExtend(k Kind, bits uint64) int64 {
	switch width(k) {
	case 1:
		return int64(int8(bits))
	case 2:
		return int64(int16(bits))
	case 4:
		return int64(int32(bits))
	default:
		return int64(bits)
	}
}

func floatBinary(op Op, k Kind) func(a, b uint64) uint64 {
	wrap := func(g func(x, y float64) float64) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return fromFloat(k, g(asFloat(k, a), asFloat(k, b))) }
	}
	switch op {
	case OpAdd, OpAddOvf:
		return wrap(func(x, y float64) float64 { return x + y })
	case OpSub, OpSubOvf:
		return wrap(func(x, y float64) float64 { return x - y })
	case OpMul, OpMulOvf:
		return wrap(func(x, y float64) float64 { return x * y })
	case OpDiv:
		return wrap(func(x, y float64) float64 { return x / y })
	case OpRem:
		return wrap(math.Mod)
	case OpMin:
		return wrap(math.Min)
	case OpMax:
		return wrap(math.Max)
	case OpPow:
		return wrap(math.Pow)
	case OpAtan2:
		return wrap(math.Atan2)
	}
	return nil
}

func compareOp(op Op, k Kind) func(a, b uint64) uint64 {
	switch classOf(k) {
	case classFloat:
		return func(a, b uint64) uint64 {
			x, y := asFloat(k, a), asFloat(k, b)
			switch op {
			case OpEq:
				return boolBits(x == y)
			case OpNe:
				return boolBits(x != y)
			case OpLt:
				return boolBits(x < y)
			case OpLe:
				return boolBits(x <= y)
			case OpGt:
				return boolBits(x > y)
			case OpGe:
				return boolBits(x >= y)
			}
			if math.IsNaN(x) || math.IsNaN(y) {
				if op == OpCmpl {
					return intBits(-1)
				}
				return intBits(1)
			}
			return intBits(threeWay(x, y))
		}
	case classUnsigned:
		return func(a, b uint64) uint64 {
			return ordered(op, asUint(k, a), asUint(k, b))
		}
	default:
		return func(a, b uint64) uint64 {
			return ordered(op, asInt(k, a), asInt(k, b))
		}
	}
}

func threeWay[T int64 | uint64 | float64](x, y T) int64 {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func ordered[T int64 | uint64](op Op, x, y T) uint64 {
	switch op {
	case OpEq:
		return boolBits(x == y)
	case OpNe:
		return boolBits(x != y)
	case OpLt:
		return boolBits(x < y)
	case OpLe:
		return boolBits(x <= y)
	case OpGt:
		return boolBits(x > y)
	case OpGe:
		return boolBits(x >= y)
	}
	return intBits(threeWay(x, y))
}

var floatMath = map[Op]func(float64) float64{
	OpSqrt:  math.Sqrt,
	OpSin:   math.Sin,
	OpCos:   math.Cos,
	OpTan:   math.Tan,
	OpAsin:  math.Asin,
	OpAcos:  math.Acos,
	OpAtan:  math.Atan,
	OpSinh:  math.Sinh,
	OpCosh:  math.Cosh,
	OpTanh:  math.Tanh,
	OpExp:   math.Exp,
	OpLog:   math.Log,
	OpLog10: math.Log10,
	OpFloor: math.Floor,
	OpCeil:  math.Ceil,
	OpRint:  math.RoundToEven,
	OpRound: math.Round,
	OpTrunc: math.Trunc,
}

func unaryOp(op Op, k Kind) func(a uint64) uint64 {
	if g, ok := floatMath[op]; ok {
		return func(a uint64) uint64 { return fromFloat(k, g(asFloat(k, a))) }
	}
	switch op {
	case OpToBool:
		return func(a uint64) uint64 { return boolBits(truthy(k, a)) }
	case OpToNotBool:
		return func(a uint64) uint64 { return boolBits(!truthy(k, a)) }
	case OpIsNaN:
		return func(a uint64) uint64 { return boolBits(math.IsNaN(asFloat(k, a))) }
	case OpIsInf:
		return func(a uint64) uint64 { return boolBits(math.IsInf(asFloat(k, a), 0)) }
	case OpIsFinite:
		return func(a uint64) uint64 {
			f := asFloat(k, a)
			return boolBits(!math.IsInf(f, 0) && !math.IsNaN(f))
		}
	}

	switch classOf(k) {
	case classFloat:
		switch op {
		case OpNeg:
			return func(a uint64) uint64 { return fromFloat(k, -asFloat(k, a)) }
		case OpAbs:
			return func(a uint64) uint64 { return fromFloat(k, math.Abs(asFloat(k, a))) }
		case OpSign:
			return func(a uint64) uint64 {
				f := asFloat(k, a)
				if math.IsNaN(f) {
					return 0
				}
				return intBits(threeWay(f, 0))
			}
		}
	case classUnsigned:
		switch op {
		case OpNeg:
			return func(a uint64) uint64 { return fromUint(k, -asUint(k, a)) }
		case OpNot:
			return func(a uint64) uint64 { return fromUint(k, ^asUint(k, a)) }
		case OpAbs:
			return func(a uint64) uint64 { return mask(k, a) }
		case OpSign:
			return func(a uint64) uint64 { return intBits(threeWay(asUint(k, a), 0)) }
		}
	default:
		switch op {
		case OpNeg:
			return func(a uint64) uint64 { return fromInt(k, -asInt(k, a)) }
		case OpNot:
			return func(a uint64) uint64 { return fromInt(k, ^asInt(k, a)) }
		case OpAbs:
			return func(a uint64) uint64 {
				x := asInt(k, a)
				if x < 0 {
					x = -x
				}
				return fromInt(k, x)
			}
		case OpSign:
			return func(a uint64) uint64 { return intBits(threeWay(asInt(k, a), 0)) }
		}
	}
	panic(fmt.Sprintf("engine: %s is not defined on %s", op, k))
}
