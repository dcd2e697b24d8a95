package engine

// Op is an instruction opcode.
type Op uint16

const (
	OpNop Op = iota
	OpLabel

	// binary arithmetic
	OpAdd
	OpAddOvf
	OpSub
	OpSubOvf
	OpMul
	OpMulOvf
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUshr
	OpSshr
	OpMin
	OpMax
	OpPow
	OpAtan2

	// comparisons
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpCmpl
	OpCmpg

	// unary
	OpNeg
	OpNot
	OpAbs
	OpSign
	OpToBool
	OpToNotBool
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpSinh
	OpCosh
	OpTanh
	OpExp
	OpLog
	OpLog10
	OpFloor
	OpCeil
	OpRint
	OpRound
	OpTrunc
	OpIsNaN
	OpIsFinite
	OpIsInf

	// data movement
	OpStore
	OpDup
	OpConvert
	OpLoadRelative
	OpStoreRelative
	OpAddRelative
	OpLoadElem
	OpLoadElemAddr
	OpStoreElem
	OpAddressOf
	OpImport
	OpMemcpy
	OpMemmove
	OpMemset
	OpAlloca
	OpCheckNull

	// control flow
	OpBranch
	OpBranchIf
	OpBranchIfNot
	OpJumpTable
	OpReturn
	OpReturnPtr
	OpDefaultReturn
	OpThrow

	// calls
	OpCall
	OpCallIndirect
	OpCallNative
)

var opNames = map[Op]string{
	OpNop: "nop", OpLabel: "label",
	OpAdd: "add", OpAddOvf: "add_ovf", OpSub: "sub", OpSubOvf: "sub_ovf",
	OpMul: "mul", OpMulOvf: "mul_ovf", OpDiv: "div", OpRem: "rem",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpShl: "shl", OpShr: "shr", OpUshr: "ushr", OpSshr: "sshr",
	OpMin: "min", OpMax: "max", OpPow: "pow", OpAtan2: "atan2",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpCmpl: "cmpl", OpCmpg: "cmpg",
	OpNeg: "neg", OpNot: "not", OpAbs: "abs", OpSign: "sign",
	OpToBool: "to_bool", OpToNotBool: "to_not_bool",
	OpSqrt: "sqrt", OpSin: "sin", OpCos: "cos", OpTan: "tan",
	OpAsin: "asin", OpAcos: "acos", OpAtan: "atan",
	OpSinh: "sinh", OpCosh: "cosh", OpTanh: "tanh",
	OpExp: "exp", OpLog: "log", OpLog10: "log10",
	OpFloor: "floor", OpCeil: "ceil", OpRint: "rint", OpRound: "round", OpTrunc: "trunc",
	OpIsNaN: "is_nan", OpIsFinite: "is_finite", OpIsInf: "is_inf",
	OpStore: "store", OpDup: "load", OpConvert: "convert",
	OpLoadRelative: "load_relative", OpStoreRelative: "store_relative", OpAddRelative: "add_relative",
	OpLoadElem: "load_elem", OpLoadElemAddr: "load_elem_address", OpStoreElem: "store_elem",
	OpAddressOf: "address_of", OpImport: "import",
	OpMemcpy: "memcpy", OpMemmove: "memmove", OpMemset: "memset", OpAlloca: "alloca",
	OpCheckNull: "check_null",
	OpBranch:    "branch", OpBranchIf: "branch_if", OpBranchIfNot: "branch_if_not",
	OpJumpTable: "jump_table", OpReturn: "return", OpReturnPtr: "return_ptr",
	OpDefaultReturn: "default_return", OpThrow: "throw",
	OpCall: "call", OpCallIndirect: "call_indirect", OpCallNative: "call_native",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "op?"
}

// IsTerminator reports whether control never falls through o.
func (o Op) IsTerminator() bool {
	switch o {
	case OpBranch, OpJumpTable, OpReturn, OpReturnPtr, OpDefaultReturn, OpThrow:
		return true
	}
	return false
}

func (o Op) isCompare() bool { return o >= OpEq && o <= OpCmpg }

func (o Op) isFloatMath() bool { return o >= OpSqrt && o <= OpTrunc }

func (o Op) isFloatPredicate() bool { return o >= OpIsNaN && o <= OpIsInf }

func (o Op) isBitwise() bool {
	switch o {
	case OpAnd, OpOr, OpXor, OpNot, OpShl, OpShr, OpUshr, OpSshr:
		return true
	}
	return false
}

// CallFlags modify call instructions.
type CallFlags uint8

const (
	CallNoThrow CallFlags = 1 << iota
	CallNoReturn
	CallTail
)
