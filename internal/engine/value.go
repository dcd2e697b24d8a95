package engine

import (
	"fmt"
	"math"
)

// ValueKind distinguishes how a value is produced.
type ValueKind uint8

const (
	ValueTemp ValueKind = iota
	ValueLocal
	ValueParam
	ValueConst
)

// Value is an SSA-like slot owned by one function. Scalars occupy one
// register; aggregates own a zeroed frame buffer and their register holds
// the buffer address.
type Value struct {
	fn    *Function
	id    int
	typ   *TypeDesc
	kind  ValueKind
	bits  uint64 // constant payload
	param int
}

func (v *Value) Function() *Function { return v.fn }
func (v *Value) Type() *TypeDesc     { return v.typ }
func (v *Value) ID() int             { return v.id }
func (v *Value) Kind() ValueKind     { return v.kind }
func (v *Value) IsConstant() bool    { return v.kind == ValueConst }
func (v *Value) IsParam() bool       { return v.kind == ValueParam }
func (v *Value) IsTemporary() bool   { return v.kind == ValueTemp }

// ConstBits returns the register image of a constant.
func (v *Value) ConstBits() uint64 { return v.bits }

// ConstInt decodes a constant as a signed integer.
func (v *Value) ConstInt() int64 { return asInt(v.typ.arith(), v.bits) }

// ConstFloat decodes a constant as a float.
func (v *Value) ConstFloat() float64 { return asFloat(v.typ.arith(), v.bits) }

func (v *Value) String() string {
	if v == nil {
		return "_"
	}
	switch v.kind {
	case ValueConst:
		k := v.typ.arith()
		switch classOf(k) {
		case classFloat:
			f := asFloat(k, v.bits)
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return fmt.Sprintf("%v", f)
			}
			return fmt.Sprintf("%g", f)
		case classUnsigned:
			return fmt.Sprintf("%d", asUint(k, v.bits))
		default:
			return fmt.Sprintf("%d", asInt(k, v.bits))
		}
	case ValueParam:
		return fmt.Sprintf("p%d", v.param)
	case ValueLocal:
		return fmt.Sprintf("l%d", v.id)
	default:
		return fmt.Sprintf("t%d", v.id)
	}
}
