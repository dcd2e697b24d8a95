package engine

import (
	"math"
	"testing"
)

func TestConvertBits(t *testing.T) {
	tests := []struct {
		name     string
		src      Kind
		bits     uint64
		dst      Kind
		wantInt  int64
		wantUint uint64
	}{
		{"sign extend sbyte", KindSByte, 0xff, KindLong, -1, 0},
		{"zero extend ubyte", KindUByte, 0xff, KindLong, 255, 0},
		{"truncate long to short", KindLong, 0x12345, KindShort, 0x2345, 0},
		{"negative int to uint", KindInt, fromInt(KindInt, -1), KindUInt, 0, 0xffffffff},
		{"float to int truncates", KindFloat64, math.Float64bits(-2.9), KindInt, -2, 0},
	}
	for _, tt := range tests {
		got := convertBits(tt.src, tt.bits, tt.dst)
		if classOf(tt.dst) == classUnsigned {
			if asUint(tt.dst, got) != tt.wantUint {
				t.Errorf("%s: got %#x, want %#x", tt.name, asUint(tt.dst, got), tt.wantUint)
			}
			continue
		}
		if asInt(tt.dst, got) != tt.wantInt {
			t.Errorf("%s: got %d, want %d", tt.name, asInt(tt.dst, got), tt.wantInt)
		}
	}
}

func TestConvertChecked(t *testing.T) {
	tests := []struct {
		src  Kind
		bits uint64
		dst  Kind
		ok   bool
	}{
		{KindInt, fromInt(KindInt, 127), KindSByte, true},
		{KindInt, fromInt(KindInt, 128), KindSByte, false},
		{KindInt, fromInt(KindInt, -1), KindUInt, false},
		{KindULong, math.MaxUint64, KindLong, false},
		{KindFloat64, math.Float64bits(3.75), KindUByte, true},
		{KindFloat64, math.Float64bits(1e300), KindLong, false},
		{KindLong, fromInt(KindLong, 1<<40), KindFloat32, true},
	}
	for _, tt := range tests {
		_, err := convertChecked(tt.src, tt.bits, tt.dst)
		if (err == nil) != tt.ok {
			t.Errorf("%s(%#x) -> %s: err = %v, want ok=%v", tt.src, tt.bits, tt.dst, err, tt.ok)
		}
	}
}

func TestBinaryOps(t *testing.T) {
	tests := []struct {
		op   Op
		k    Kind
		a, b int64
		want int64
	}{
		{OpUshr, KindInt, -16, 2, 0x3ffffffc},
		{OpShr, KindInt, -16, 2, -4},
		{OpShl, KindInt, 1, 33, 2},
		{OpRem, KindInt, -7, 3, -1},
		{OpMin, KindLong, -3, 2, -3},
		{OpCmpl, KindInt, 2, 5, -1},
		{OpCmpg, KindInt, 5, 5, 0},
		{OpLt, KindUInt, -1, 1, 0},
	}
	for _, tt := range tests {
		fn := binaryOp(tt.op, tt.k)
		got := fn(fromInt(tt.k, tt.a), fromInt(tt.k, tt.b))
		rk := tt.k
		if tt.op.isCompare() {
			rk = KindInt
		}
		if asInt(rk, got) != tt.want {
			t.Errorf("%s %s(%d, %d) = %d, want %d", tt.k, tt.op, tt.a, tt.b, asInt(rk, got), tt.want)
		}
	}
}

func TestFloatCompareNaN(t *testing.T) {
	nan := math.Float64bits(math.NaN())
	one := math.Float64bits(1)
	if got := asInt(KindInt, binaryOp(OpCmpl, KindFloat64)(nan, one)); got != -1 {
		t.Errorf("cmpl(NaN, 1) = %d, want -1", got)
	}
	if got := asInt(KindInt, binaryOp(OpCmpg, KindFloat64)(nan, one)); got != 1 {
		t.Errorf("cmpg(NaN, 1) = %d, want 1", got)
	}
	if got := binaryOp(OpNe, KindFloat64)(nan, nan); got != 1 {
		t.Errorf("NaN != NaN = %d, want 1", got)
	}
}
