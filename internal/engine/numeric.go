package engine

import (
	"math"

	"fortio.org/safecast"
)

// Scalars live in uint64 registers holding the little-endian memory image of
// the value: the low width(k) bytes are significant, higher bytes are
// ignored on read.

func mask(k Kind, u uint64) uint64 {
	switch width(k) {
	case 1:
		return u & 0xff
	case 2:
		return u & 0xffff
	case 4:
		return u & 0xffffffff
	default:
		return u
	}
}

func asInt(k Kind, bits uint64) int64 {
	switch k {
	case KindSByte:
		return int64(int8(bits))
	case KindShort:
		return int64(int16(bits))
	case KindInt:
		return int64(int32(bits))
	case KindNInt, KindLong:
		if width(k) == 4 {
			return int64(int32(bits))
		}
		return int64(bits)
	case KindFloat32, KindFloat64, KindNFloat:
		return int64(asFloat(k, bits))
	default:
		return int64(mask(k, bits))
	}
}

func asUint(k Kind, bits uint64) uint64 {
	switch classOf(k) {
	case classSigned:
		return uint64(asInt(k, bits))
	case classFloat:
		f := asFloat(k, bits)
		if f < 0 {
			return uint64(int64(f))
		}
		return uint64(f)
	default:
		return mask(k, bits)
	}
}

func asFloat(k Kind, bits uint64) float64 {
	switch k {
	case KindFloat32:
		return float64(math.Float32frombits(uint32(bits)))
	case KindFloat64, KindNFloat:
		return math.Float64frombits(bits)
	}
	if classOf(k) == classSigned {
		return float64(asInt(k, bits))
	}
	return float64(mask(k, bits))
}

func fromInt(k Kind, v int64) uint64 {
	switch k {
	case KindFloat32:
		return uint64(math.Float32bits(float32(v)))
	case KindFloat64, KindNFloat:
		return math.Float64bits(float64(v))
	}
	return mask(k, uint64(v))
}

func fromUint(k Kind, v uint64) uint64 {
	switch k {
	case KindFloat32:
		return uint64(math.Float32bits(float32(v)))
	case KindFloat64, KindNFloat:
		return math.Float64bits(float64(v))
	}
	return mask(k, v)
}

func fromFloat(k Kind, v float64) uint64 {
	switch classOf(k) {
	case classFloat:
		if k == KindFloat32 {
			return uint64(math.Float32bits(float32(v)))
		}
		return math.Float64bits(v)
	case classSigned:
		return fromInt(k, int64(v))
	default:
		if v < 0 {
			return mask(k, uint64(int64(v)))
		}
		return mask(k, uint64(v))
	}
}

// convertBits converts a register value between kinds with wrapping and
// truncating semantics.
func convertBits(src Kind, bits uint64, dst Kind) uint64 {
	if src == dst {
		return bits
	}
	switch classOf(src) {
	case classFloat:
		return fromFloat(dst, asFloat(src, bits))
	case classUnsigned:
		return fromUint(dst, asUint(src, bits))
	default:
		return fromInt(dst, asInt(src, bits))
	}
}

type integer interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

func checkedTo[Out integer](src Kind, bits uint64) (Out, error) {
	switch classOf(src) {
	case classFloat:
		f := asFloat(src, bits)
		if !math.IsInf(f, 0) && !math.IsNaN(f) {
			f = math.Trunc(f)
		}
		return safecast.Convert[Out](f)
	case classUnsigned:
		return safecast.Conv[Out](asUint(src, bits))
	default:
		return safecast.Conv[Out](asInt(src, bits))
	}
}

// convertChecked converts like convertBits but reports values that do not
// fit the destination kind.
func convertChecked(src Kind, bits uint64, dst Kind) (uint64, error) {
	if src == dst {
		return bits, nil
	}
	if classOf(dst) == classFloat {
		return convertBits(src, bits, dst), nil
	}
	var (
		out uint64
		err error
	)
	switch width(dst) {
	case 1:
		if classOf(dst) == classSigned {
			var v int8
			v, err = checkedTo[int8](src, bits)
			out = fromInt(dst, int64(v))
		} else {
			var v uint8
			v, err = checkedTo[uint8](src, bits)
			out = uint64(v)
		}
	case 2:
		if classOf(dst) == classSigned {
			var v int16
			v, err = checkedTo[int16](src, bits)
			out = fromInt(dst, int64(v))
		} else {
			var v uint16
			v, err = checkedTo[uint16](src, bits)
			out = uint64(v)
		}
	case 4:
		if classOf(dst) == classSigned {
			var v int32
			v, err = checkedTo[int32](src, bits)
			out = fromInt(dst, int64(v))
		} else {
			var v uint32
			v, err = checkedTo[uint32](src, bits)
			out = uint64(v)
		}
	default:
		if classOf(dst) == classSigned {
			var v int64
			v, err = checkedTo[int64](src, bits)
			out = uint64(v)
		} else {
			var v uint64
			v, err = checkedTo[uint64](src, bits)
			out = v
		}
	}
	return out, err
}

// Overflow-checked arithmetic on the full 64-bit domain. Narrower kinds are
// checked by converting the wide result back with convertChecked.

func addInt64Checked(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func subInt64Checked(a, b int64) (int64, bool) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, false
	}
	return a - b, true
}

func mulInt64Checked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}

func addUint64Checked(a, b uint64) (uint64, bool) {
	r := a + b
	return r, r >= a
}

func subUint64Checked(a, b uint64) (uint64, bool) {
	return a - b, a >= b
}

func mulUint64Checked(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	return r, r/b == a
}
