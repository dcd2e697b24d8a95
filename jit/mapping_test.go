package jit

import (
	"errors"
	"reflect"
	"testing"
	"unsafe"

	"jitkit/internal/derive"
)

func TestPrimitiveMapping(t *testing.T) {
	tests := []struct {
		rt   reflect.Type
		want Type
	}{
		{reflect.TypeFor[int8](), TypeSByte},
		{reflect.TypeFor[uint8](), TypeUByte},
		{reflect.TypeFor[int16](), TypeShort},
		{reflect.TypeFor[uint16](), TypeUShort},
		{reflect.TypeFor[int32](), TypeInt},
		{reflect.TypeFor[uint32](), TypeUInt},
		{reflect.TypeFor[int64](), TypeLong},
		{reflect.TypeFor[uint64](), TypeULong},
		{reflect.TypeFor[int](), TypeNInt},
		{reflect.TypeFor[uint](), TypeNUInt},
		{reflect.TypeFor[uintptr](), TypeNUInt},
		{reflect.TypeFor[float32](), TypeFloat32},
		{reflect.TypeFor[float64](), TypeFloat64},
		{reflect.TypeFor[bool](), TypeSysBool},
		{reflect.TypeFor[unsafe.Pointer](), TypeVoidPtr},
		{reflect.TypeFor[struct{}](), TypeVoid},
	}
	for _, tt := range tests {
		t.Run(tt.rt.String(), func(t *testing.T) {
			got, err := TypeFor(tt.rt)
			if err != nil {
				t.Fatalf("TypeFor: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

type level int16

func TestNamedIntegerPassesThrough(t *testing.T) {
	if got := Get[level](); got != TypeShort {
		t.Fatalf("got %s, want short", got)
	}
}

func TestGetIsStable(t *testing.T) {
	if Get[pair]() != Get[pair]() {
		t.Fatalf("Get returned different descriptors for the same type")
	}
	if Get[*int32]() != Get[*int32]() {
		t.Fatalf("pointer descriptors differ")
	}
	a, b := NewStruct(TypeInt), NewStruct(TypeInt)
	defer a.Release()
	defer b.Release()
	if a == b {
		t.Fatalf("separately created structs compare equal")
	}
}

type ringA struct {
	_    Packed
	Next *ringB
}

type ringB struct {
	_    Packed
	Back *ringA
}

func TestMutualRecursionRefs(t *testing.T) {
	ta := Get[ringA]()
	f, ok := ta.Field(0)
	if !ok || !f.Type.IsPointer() {
		t.Fatalf("field 0 of %s = %v", ta, f.Type)
	}
	tb, ok := f.Type.Ref()
	if !ok || !tb.IsStruct() {
		t.Fatalf("pointee = %v", tb)
	}
	// each descriptor is referenced only by its parent
	if n := f.Type.d.Refs(); n != 1 {
		t.Errorf("*ringB refs = %d, want 1", n)
	}
	if n := tb.d.Refs(); n != 1 {
		t.Errorf("ringB refs = %d, want 1", n)
	}
	back, _ := tb.Field(0)
	if back.Type != TypeVoidPtr {
		t.Errorf("ringB.Back = %s, want a void pointer", back.Type)
	}
}

type flat struct {
	_ Packed
	A int32
	B int64
	C uint8
}

func TestPackedOffsets(t *testing.T) {
	ty := Get[flat]()
	if !ty.Packed() {
		t.Fatalf("%s is not packed", ty)
	}
	want := []struct {
		name   string
		offset int
	}{{"A", 0}, {"B", 4}, {"C", 12}}
	fields := ty.Fields()
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, w := range want {
		if fields[i].Name != w.name || fields[i].Offset != w.offset {
			t.Errorf("field %d = %s@%d, want %s@%d", i, fields[i].Name, fields[i].Offset, w.name, w.offset)
		}
	}
	if ty.Size() != 13 {
		t.Errorf("size = %d, want 13", ty.Size())
	}
	if f, ok := ty.FindName("B"); !ok || f.Type != TypeLong {
		t.Errorf("FindName(B) = %+v, %v", f, ok)
	}
}

type loose struct {
	A int32
}

func TestUnpackedStructRejected(t *testing.T) {
	_, err := TypeOf[loose]()
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if ge.Code != derive.CodeNotPacked || !errors.Is(err, derive.ErrNotPacked) {
		t.Fatalf("err = %v, want %s", err, derive.CodeNotPacked)
	}
	mustPanic(t, func() { Get[loose]() })
}

func TestUnsupportedKinds(t *testing.T) {
	for _, rt := range []reflect.Type{
		reflect.TypeFor[map[string]int](),
		reflect.TypeFor[chan int](),
		reflect.TypeFor[complex128](),
		reflect.TypeFor[any](),
	} {
		_, err := TypeFor(rt)
		if !errors.Is(err, derive.ErrNotCompatible) {
			t.Errorf("%s: err = %v, want ErrNotCompatible", rt, err)
		}
	}
}

func TestStringMapping(t *testing.T) {
	ty := Get[string]()
	if ty.Size() != int(unsafe.Sizeof("")) {
		t.Fatalf("size = %d, want %d", ty.Size(), unsafe.Sizeof(""))
	}
	if f, ok := ty.FindName("len"); !ok || f.Type != TypeNUInt {
		t.Fatalf("len field = %+v, %v", f, ok)
	}
}

func TestSliceMapping(t *testing.T) {
	ty := Get[[]int32]()
	if !ty.IsTagged() || ty.TagKind() != TagGoSlice {
		t.Fatalf("%s is not a slice tag", ty)
	}
	if elem, _ := ty.TaggedData().(Type); elem != TypeInt {
		t.Fatalf("payload = %v, want int", ty.TaggedData())
	}
	if ty.Size() != int(unsafe.Sizeof([]int32(nil))) {
		t.Fatalf("size = %d", ty.Size())
	}
}

func TestFuncMapping(t *testing.T) {
	sig := Get[func(int32, float64) int64]()
	if !sig.IsSignature() || sig.NumParams() != 2 {
		t.Fatalf("got %s", sig)
	}
	if ret, _ := sig.Return(); ret != TypeLong {
		t.Fatalf("return = %s", ret)
	}

	multi := Get[func() (int32, int64)]()
	ret, _ := multi.Return()
	if !ret.IsStruct() || !ret.Packed() || ret.Size() != 12 {
		t.Fatalf("multiple results = %s", ret)
	}
}

func TestTuples(t *testing.T) {
	if Get[Tuple1[float32]]() != TypeFloat32 {
		t.Fatalf("Tuple1 is not transparent")
	}
	ty := Get[Tuple3[uint8, int32, uint8]]()
	if ty.Size() != 6 {
		t.Fatalf("size = %d, want 6", ty.Size())
	}
	if f, _ := ty.Field(1); f.Offset != 1 || f.Name != "" {
		t.Fatalf("field 1 = %+v", f)
	}
}

type node struct {
	_    Packed
	Next *node
	V    int32
}

func TestRecursiveRecord(t *testing.T) {
	ty := Get[node]()
	f, _ := ty.Field(0)
	if !f.Type.IsPointer() {
		t.Fatalf("Next = %s, want a pointer", f.Type)
	}
	if v, _ := ty.Field(1); v.Offset != int(unsafe.Sizeof(uintptr(0))) {
		t.Fatalf("V at %d", v.Offset)
	}
}

type celsius struct {
	_ Packed
	V float64
}

func (celsius) JITType() Type { return TypeFloat64 }

func (c celsius) Compile(f *UncompiledFunction) Val { return f.InsnOf(c.V + 273.15) }

func TestCompilerOverride(t *testing.T) {
	if Get[celsius]() != TypeFloat64 {
		t.Fatalf("Compiler type ignored")
	}
	ctx := newContext(t)
	f := NewFunc[func() float64](ctx)
	f.InsnReturn(f.InsnOf(celsius{V: 10}))
	var got float64
	if err := f.MustCompile().Apply(&got); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := (celsius{V: 10}).V + 273.15; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTypeConstructors(t *testing.T) {
	st := Struct(M("x", TypeInt), M("y", TypeFloat64))
	defer st.Release()
	if st.Size() != 16 || st.Align() != 8 {
		t.Fatalf("struct layout %d/%d", st.Size(), st.Align())
	}
	if f, ok := st.FindName("y"); !ok || f.Offset != 8 {
		t.Fatalf("y = %+v, %v", f, ok)
	}
	if _, ok := st.FindName("z"); ok {
		t.Fatalf("found a missing field")
	}

	u := Union(M("i", TypeLong), M("b", TypeUByte))
	defer u.Release()
	if u.Size() != 8 {
		t.Fatalf("union size %d", u.Size())
	}

	p := NewPointer(TypeInt)
	defer p.Release()
	if ref, ok := p.Ref(); !ok || ref != TypeInt {
		t.Fatalf("Ref = %s, %v", ref, ok)
	}
	if _, ok := TypeInt.Ref(); ok {
		t.Fatalf("non-pointer has a Ref")
	}

	sig := Signature(TypeVoid, M("n", TypeInt))
	defer sig.Release()
	if sig.ParamName(0) != "n" {
		t.Fatalf("param name %q", sig.ParamName(0))
	}
}
