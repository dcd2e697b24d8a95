package jit

import (
	"jitkit/internal/engine"
)

// Kind classifies a descriptor.
type Kind = engine.Kind

const (
	KindVoid      = engine.KindVoid
	KindSByte     = engine.KindSByte
	KindUByte     = engine.KindUByte
	KindShort     = engine.KindShort
	KindUShort    = engine.KindUShort
	KindInt       = engine.KindInt
	KindUInt      = engine.KindUInt
	KindNInt      = engine.KindNInt
	KindNUInt     = engine.KindNUInt
	KindLong      = engine.KindLong
	KindULong     = engine.KindULong
	KindFloat32   = engine.KindFloat32
	KindFloat64   = engine.KindFloat64
	KindNFloat    = engine.KindNFloat
	KindStruct    = engine.KindStruct
	KindUnion     = engine.KindUnion
	KindSignature = engine.KindSignature
	KindPointer   = engine.KindPointer
	KindTagged    = engine.KindTagged
)

// ABI is the calling convention of a signature.
type ABI = engine.ABI

const (
	CDecl    = engine.ABICdecl
	VarArg   = engine.ABIVararg
	StdCall  = engine.ABIStdcall
	FastCall = engine.ABIFastcall
)

// TagKind identifies the payload of a tagged type.
type TagKind = engine.TagKind

const (
	TagName       = engine.TagName
	TagStructName = engine.TagStructName
	TagConst      = engine.TagConst
	TagVolatile   = engine.TagVolatile
	TagSysBool    = engine.TagSysBool
	TagSysChar    = engine.TagSysChar
	TagFirstUser  = engine.TagFirstUser

	// TagGoSlice marks the descriptor of a Go slice header. The payload is
	// the element Type.
	TagGoSlice = engine.TagFirstUser + 1
)

// Type is a handle to a type descriptor. Two Types are equal when they
// refer to the same descriptor; structurally identical descriptors built
// separately are different Types.
//
// Types returned by the New* constructors hold one reference that the
// caller drops with Release. Predefined types and types returned by Get
// live for the whole process.
type Type struct {
	d *engine.TypeDesc
}

// Predefined descriptors.
var (
	TypeVoid    = Type{engine.Void}
	TypeSByte   = Type{engine.SByte}
	TypeUByte   = Type{engine.UByte}
	TypeShort   = Type{engine.Short}
	TypeUShort  = Type{engine.UShort}
	TypeInt     = Type{engine.Int}
	TypeUInt    = Type{engine.UInt}
	TypeNInt    = Type{engine.NInt}
	TypeNUInt   = Type{engine.NUInt}
	TypeLong    = Type{engine.Long}
	TypeULong   = Type{engine.ULong}
	TypeFloat32 = Type{engine.Float32}
	TypeFloat64 = Type{engine.Float64}
	TypeNFloat  = Type{engine.NFloat}
	TypeVoidPtr = Type{engine.VoidPtr}
	TypeSysBool = Type{engine.SysBool}
	TypeSysChar = Type{engine.SysChar}
)

func wrap(d *engine.TypeDesc) Type { return Type{d: d} }

func descs(ts []Type) []*engine.TypeDesc {
	out := make([]*engine.TypeDesc, len(ts))
	for i, t := range ts {
		out[i] = t.desc("type list")
	}
	return out
}

func (t Type) desc(op string) *engine.TypeDesc {
	if t.d == nil {
		contract(op, "invalid (zero) Type")
	}
	return t.d
}

// NewStruct creates a naturally aligned struct of the given fields.
func NewStruct(fields ...Type) Type {
	return wrap(engine.CreateStruct(descs(fields), false))
}

// NewPackedStruct creates a struct without padding between fields.
func NewPackedStruct(fields ...Type) Type {
	return wrap(engine.CreateStruct(descs(fields), true))
}

// NewUnion creates a union of the given fields.
func NewUnion(fields ...Type) Type {
	return wrap(engine.CreateUnion(descs(fields)))
}

// NewPointer creates a pointer to ref. A pointer to void is TypeVoidPtr.
func NewPointer(ref Type) Type {
	return wrap(engine.CreatePointer(ref.desc("create pointer")))
}

// NewSignature creates a function signature. A zero ret means void.
func NewSignature(abi ABI, ret Type, params ...Type) Type {
	if ret.d == nil {
		ret = TypeVoid
	}
	return wrap(engine.CreateSignature(abi, ret.d, descs(params)))
}

// NewTagged wraps base with a tag and a payload. free, when non nil,
// receives the payload once the descriptor is released or the payload is
// replaced.
func NewTagged(base Type, kind TagKind, data any, free func(any)) Type {
	return wrap(engine.CreateTagged(base.desc("create tagged"), kind, data, free))
}

// Member is a named field used by Struct, Union and Signature.
type Member struct {
	Name string
	Type Type
}

// M pairs a name with a type.
func M(name string, t Type) Member { return Member{Name: name, Type: t} }

func split(ms []Member) ([]Type, []string) {
	ts := make([]Type, len(ms))
	names := make([]string, len(ms))
	for i, m := range ms {
		ts[i], names[i] = m.Type, m.Name
	}
	return ts, names
}

// Struct creates a named-field struct.
func Struct(members ...Member) Type {
	ts, names := split(members)
	t := NewStruct(ts...)
	t.SetNames(names...)
	return t
}

// Union creates a named-field union.
func Union(members ...Member) Type {
	ts, names := split(members)
	t := NewUnion(ts...)
	t.SetNames(names...)
	return t
}

// Signature creates a cdecl signature with named parameters.
func Signature(ret Type, params ...Member) Type {
	ts, names := split(params)
	t := NewSignature(CDecl, ret, ts...)
	t.SetNames(names...)
	return t
}

// Retain adds a reference to t.
func (t Type) Retain() Type {
	engine.Copy(t.d)
	return t
}

// Release drops a reference to t. Predefined types ignore it.
func (t Type) Release() { engine.Free(t.d) }

// IsValid reports whether t refers to a descriptor.
func (t Type) IsValid() bool { return t.d != nil }

func (t Type) Kind() Kind   { return t.desc("kind").Kind() }
func (t Type) Size() int    { return t.desc("size").Size() }
func (t Type) Align() int   { return t.desc("alignment").Align() }
func (t Type) ABI() ABI     { return t.desc("abi").ABI() }
func (t Type) Packed() bool { return t.desc("packed").Packed() }

func (t Type) String() string {
	if t.d == nil {
		return "<invalid>"
	}
	return t.d.String()
}

// Ref returns the pointee of a pointer or the base of a tagged type.
func (t Type) Ref() (Type, bool) {
	r := t.desc("ref").Ref()
	return wrap(r), r != nil
}

// Return returns the result type of a signature.
func (t Type) Return() (Type, bool) {
	r := t.desc("return").Return()
	return wrap(r), r != nil
}

// Field is one struct or union member.
type Field struct {
	Index  int
	Name   string
	Type   Type
	Offset int
}

func (t Type) NumFields() int { return t.desc("fields").NumFields() }

// Field returns member i.
func (t Type) Field(i int) (Field, bool) {
	f, ok := t.desc("field").Field(i)
	if !ok {
		return Field{}, false
	}
	return Field{Index: i, Name: f.Name, Type: wrap(f.Type), Offset: f.Offset}, true
}

// Fields returns all members in declaration order.
func (t Type) Fields() []Field {
	out := make([]Field, t.NumFields())
	for i := range out {
		out[i], _ = t.Field(i)
	}
	return out
}

// FindName looks a member up by name.
func (t Type) FindName(name string) (Field, bool) {
	i := t.desc("find name").FindName(name)
	if i == engine.NotFound {
		return Field{}, false
	}
	if t.d.IsSignature() {
		return Field{Index: i, Name: t.d.ParamName(i), Type: wrap(t.d.Param(i))}, true
	}
	return t.Field(i)
}

// SetNames names members or parameters in order. It reports false when t
// has no members or fewer members than names.
func (t Type) SetNames(names ...string) bool {
	return t.desc("set names").SetNames(names)
}

func (t Type) NumParams() int { return t.desc("params").NumParams() }

// Params returns the parameter types of a signature.
func (t Type) Params() []Type {
	out := make([]Type, t.NumParams())
	for i := range out {
		out[i] = wrap(t.d.Param(i))
	}
	return out
}

// ParamName returns the name of parameter i, if any.
func (t Type) ParamName(i int) string { return t.desc("param name").ParamName(i) }

// SetSizeAndAlignment overrides the layout of a struct or union. Negative
// arguments keep the computed value.
func (t Type) SetSizeAndAlignment(size, align int64) error {
	return t.desc("set size").SetSizeAndAlignment(size, align)
}

func (t Type) TagKind() TagKind { return t.desc("tag kind").TagKind() }

// TaggedData returns the payload of a tagged type.
func (t Type) TaggedData() any { return t.desc("tagged data").TaggedData() }

// SetTaggedData replaces the payload of a tagged type.
func (t Type) SetTaggedData(data any, free func(any)) {
	t.desc("set tagged data").SetTaggedData(data, free)
}

// Normalize strips tags.
func (t Type) Normalize() Type { return wrap(t.desc("normalize").Normalize()) }

func (t Type) IsPrimitive() bool { return t.Normalize().d.IsPrimitive() }
func (t Type) IsInt() bool       { return t.Normalize().Kind().IsInt() }
func (t Type) IsFloat() bool     { return t.Normalize().Kind().IsFloat() }
func (t Type) IsPointer() bool   { return t.Normalize().d.IsPointer() }
func (t Type) IsStruct() bool    { return t.desc("is struct").IsStruct() }
func (t Type) IsUnion() bool     { return t.desc("is union").IsUnion() }
func (t Type) IsSignature() bool { return t.desc("is signature").IsSignature() }
func (t Type) IsTagged() bool    { return t.desc("is tagged").IsTagged() }
func (t Type) IsBool() bool      { return t.d != nil && t.d.TagKind() == TagSysBool }
