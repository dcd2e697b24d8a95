package engine

import "jitkit/internal/layout"

// Kind classifies a type descriptor.
type Kind uint8

const (
	KindVoid Kind = iota
	KindSByte
	KindUByte
	KindShort
	KindUShort
	KindInt
	KindUInt
	KindNInt
	KindNUInt
	KindLong
	KindULong
	KindFloat32
	KindFloat64
	KindNFloat
	KindStruct
	KindUnion
	KindSignature
	KindPointer
	KindTagged
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindSByte:     "sbyte",
	KindUByte:     "ubyte",
	KindShort:     "short",
	KindUShort:    "ushort",
	KindInt:       "int",
	KindUInt:      "uint",
	KindNInt:      "nint",
	KindNUInt:     "nuint",
	KindLong:      "long",
	KindULong:     "ulong",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindNFloat:    "nfloat",
	KindStruct:    "struct",
	KindUnion:     "union",
	KindSignature: "signature",
	KindPointer:   "pointer",
	KindTagged:    "tagged",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind?"
}

// IsInt reports whether k is one of the integer kinds.
func (k Kind) IsInt() bool { return k >= KindSByte && k <= KindULong }

// IsFloat reports whether k is one of the floating point kinds.
func (k Kind) IsFloat() bool { return k >= KindFloat32 && k <= KindNFloat }

// IsPrimitive reports whether k is void, an integer or a float.
func (k Kind) IsPrimitive() bool { return k <= KindNFloat }

type numClass uint8

const (
	classSigned numClass = iota
	classUnsigned
	classFloat
)

// classOf folds pointer-like kinds into unsigned arithmetic.
func classOf(k Kind) numClass {
	switch k {
	case KindSByte, KindShort, KindInt, KindNInt, KindLong:
		return classSigned
	case KindFloat32, KindFloat64, KindNFloat:
		return classFloat
	default:
		return classUnsigned
	}
}

// width returns the storage size of a scalar kind in bytes.
func width(k Kind) int {
	switch k {
	case KindSByte, KindUByte:
		return 1
	case KindShort, KindUShort:
		return 2
	case KindInt, KindUInt, KindFloat32:
		return 4
	case KindNInt, KindNUInt, KindPointer, KindSignature:
		return layout.Host().PtrSize
	case KindLong, KindULong, KindFloat64, KindNFloat:
		return 8
	default:
		return 0
	}
}

// ABI is the calling convention recorded on a signature.
type ABI uint8

const (
	ABICdecl ABI = iota
	ABIVararg
	ABIStdcall
	ABIFastcall
)

func (a ABI) String() string {
	switch a {
	case ABICdecl:
		return "cdecl"
	case ABIVararg:
		return "vararg"
	case ABIStdcall:
		return "stdcall"
	case ABIFastcall:
		return "fastcall"
	default:
		return "abi?"
	}
}

// TagKind identifies the meaning of a tagged type. Values below
// TagFirstUser are reserved by the engine.
type TagKind int32

const (
	TagName       TagKind = 10000
	TagStructName TagKind = 10001
	TagConst      TagKind = 10007
	TagVolatile   TagKind = 10008
	TagSysBool    TagKind = 10009
	TagSysChar    TagKind = 10010

	TagFirstUser TagKind = 20000
)
