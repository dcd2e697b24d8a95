package engine

import (
	"errors"
	"testing"

	"jitkit/internal/layout"
)

func TestPrimitiveSizes(t *testing.T) {
	ptr := layout.Host().PtrSize
	tests := []struct {
		typ  *TypeDesc
		size int
	}{
		{SByte, 1}, {UByte, 1}, {Short, 2}, {UShort, 2},
		{Int, 4}, {UInt, 4}, {NInt, ptr}, {NUInt, ptr},
		{Long, 8}, {ULong, 8}, {Float32, 4}, {Float64, 8},
		{VoidPtr, ptr}, {SysBool, 1}, {SysChar, 1},
	}
	for _, tt := range tests {
		if tt.typ.Size() != tt.size {
			t.Errorf("%s: size %d, want %d", tt.typ, tt.typ.Size(), tt.size)
		}
		if !tt.typ.Fixed() {
			t.Errorf("%s should be predefined", tt.typ)
		}
	}
}

func TestStructOffsets(t *testing.T) {
	natural := CreateStruct([]*TypeDesc{Int, Long, UByte}, false)
	defer Free(natural)
	packed := CreateStruct([]*TypeDesc{Int, Long, UByte}, true)
	defer Free(packed)

	wantNatural := []int{0, 8, 16}
	wantPacked := []int{0, 4, 12}
	for i := range 3 {
		f, _ := natural.Field(i)
		if f.Offset != wantNatural[i] {
			t.Errorf("natural field %d at %d, want %d", i, f.Offset, wantNatural[i])
		}
		f, _ = packed.Field(i)
		if f.Offset != wantPacked[i] {
			t.Errorf("packed field %d at %d, want %d", i, f.Offset, wantPacked[i])
		}
	}
	if natural.Size() != 24 || packed.Size() != 13 {
		t.Errorf("sizes = %d/%d, want 24/13", natural.Size(), packed.Size())
	}
	if _, ok := natural.Field(3); ok {
		t.Error("Field(3) should not exist")
	}
}

func TestRefcountAndTagFree(t *testing.T) {
	freed := 0
	base := CreateStruct([]*TypeDesc{Int}, false)
	tagged := CreateTagged(base, TagFirstUser, "payload", func(d any) {
		if d.(string) == "payload" {
			freed++
		}
	})
	Free(base)
	if base.Refs() != 1 {
		t.Fatalf("base refs = %d, want 1 (held by tagged)", base.Refs())
	}

	Copy(tagged)
	Free(tagged)
	if freed != 0 {
		t.Fatal("tag data released while a reference remains")
	}
	if tagged.TaggedData() != "payload" {
		t.Fatalf("tag data = %v", tagged.TaggedData())
	}
	Free(tagged)
	if freed != 1 {
		t.Fatalf("free hook ran %d times, want 1", freed)
	}
	if base.Refs() != 0 {
		t.Fatalf("base refs = %d after release, want 0", base.Refs())
	}
}

func TestSetTaggedDataReleasesOld(t *testing.T) {
	var released []string
	free := func(d any) { released = append(released, d.(string)) }
	tagged := CreateTagged(Int, TagFirstUser+1, "a", free)
	tagged.SetTaggedData("b", free)
	Free(tagged)
	if len(released) != 2 || released[0] != "a" || released[1] != "b" {
		t.Fatalf("released = %v", released)
	}
}

func TestNames(t *testing.T) {
	st := CreateStruct([]*TypeDesc{Int, Float64}, false)
	defer Free(st)
	if !st.SetNames([]string{"count", "café"}) {
		t.Fatal("SetNames failed")
	}
	if got := st.FindName("count"); got != 0 {
		t.Errorf("FindName(count) = %d", got)
	}
	if got := st.FindName("café"); got != 1 {
		t.Errorf("FindName of composed form = %d, want 1", got)
	}
	if got := st.FindName("missing"); got != NotFound {
		t.Errorf("FindName(missing) = %d", got)
	}
	if st.SetNames([]string{"a", "b", "c"}) {
		t.Error("SetNames accepted more names than fields")
	}
	if Int.SetNames([]string{"x"}) {
		t.Error("SetNames accepted a primitive")
	}
}

func TestSignatureQueries(t *testing.T) {
	sig := CreateSignature(ABICdecl, Long, []*TypeDesc{Int, VoidPtr})
	defer Free(sig)
	if sig.NumParams() != 2 || sig.Param(1) != VoidPtr || sig.Return() != Long {
		t.Fatalf("unexpected signature %s", sig)
	}
	if sig.Param(2) != nil {
		t.Error("Param(2) should be nil")
	}
	if Int.Return() != nil || Int.Ref() != nil {
		t.Error("primitive should have no return or referent")
	}
	if got := sig.String(); got != "func(int, *void) long" {
		t.Errorf("String() = %q", got)
	}
}

func TestSetSizeAndAlignment(t *testing.T) {
	st := CreateStruct([]*TypeDesc{NUInt, NUInt}, false)
	defer Free(st)
	if err := st.SetSizeAndAlignment(16, 8); err != nil {
		t.Fatal(err)
	}
	err := st.SetSizeAndAlignment(-1, 3)
	var le *layout.Error
	if !errors.As(err, &le) || le.Kind != layout.ErrBadAlignment {
		t.Fatalf("want bad alignment error, got %v", err)
	}
	if err := Int.SetSizeAndAlignment(8, 8); err == nil {
		t.Fatal("primitive layout override should fail")
	}
}

func TestPredefinedIgnoreRefcount(t *testing.T) {
	Copy(Int)
	Free(Int)
	Free(Int)
	if Int.Refs() != 1 || Int.Size() != 4 {
		t.Fatal("predefined descriptor was affected by Copy/Free")
	}
}
