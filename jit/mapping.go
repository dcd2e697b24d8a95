package jit

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"jitkit/internal/derive"
)

// Compiler is implemented by Go types that describe their own descriptor
// and lowering. JITType must not depend on the receiver; Compile lowers the
// receiver into f and must only emit into f.
//
// jitgen derive generates Compiler implementations for declarations marked
// with //jit:derive.
type Compiler interface {
	JITType() Type
	Compile(f *UncompiledFunction) Val
}

// Packed marks a struct as a packed record. Records are laid out without
// padding: every field starts at the sum of the sizes before it.
//
//	type Point struct {
//		_    jit.Packed
//		X, Y int32
//	}
type Packed struct{}

var (
	compilerType = reflect.TypeFor[Compiler]()
	packedType   = reflect.TypeFor[Packed]()
)

// recordField maps a Go struct field onto its offset in the descriptor.
type recordField struct {
	index  int          // Go field index
	offset int          // offset in the engine layout
	typ    reflect.Type // Go field type
}

type mapping struct {
	typ    Type
	record []recordField // set when the engine layout differs from Go's
	err    error
	// uncached marks a cyclic result built inside another derivation.
	uncached bool
}

// Mappings are computed once per Go type and kept for the life of the
// process, so Get[T] always returns the same descriptor.
var mappings sync.Map // reflect.Type -> *mapping

// Get returns the descriptor of T. It panics with a *GenerationError when
// T cannot be mapped.
func Get[T any]() Type {
	t, err := TypeOf[T]()
	if err != nil {
		panic(err)
	}
	return t
}

// TypeOf returns the descriptor of T.
func TypeOf[T any]() (Type, error) {
	return TypeFor(reflect.TypeFor[T]())
}

// TypeFor returns the descriptor of the Go type rt.
func TypeFor(rt reflect.Type) (Type, error) {
	if rt == nil {
		return Type{}, &GenerationError{Type: "<nil>", Msg: "nil type"}
	}
	m := lookup(rt)
	return m.typ, m.err
}

func lookup(rt reflect.Type) *mapping {
	if m, ok := mappings.Load(rt); ok {
		return m.(*mapping)
	}
	d := &deriver{active: make(map[reflect.Type]bool)}
	m, _ := d.derive(rt)
	m = store(rt, m)
	for _, t := range d.discarded {
		t.Release()
	}
	return m
}

func store(rt reflect.Type, m *mapping) *mapping {
	actual, loaded := mappings.LoadOrStore(rt, m)
	if loaded && m.typ.IsValid() && actual.(*mapping).typ != m.typ {
		m.typ.Release()
	}
	return actual.(*mapping)
}

// deriver walks Go types by reflection. Types that refer back to a type
// still being derived see a pointer to void in its place; such results
// are not cached.
type deriver struct {
	active map[reflect.Type]bool
	// discarded holds the references of uncached descriptors taken
	// through sub. The descriptors built from them keep their own.
	discarded []Type
}

func (d *deriver) derive(rt reflect.Type) (*mapping, bool) {
	if m, ok := mappings.Load(rt); ok {
		return m.(*mapping), false
	}
	if d.active[rt] {
		return &mapping{typ: TypeVoidPtr}, true
	}
	d.active[rt] = true
	defer delete(d.active, rt)

	m, cyclic := d.build(rt)
	if len(d.active) > 1 && cyclic {
		m.uncached = true
		return m, true
	}
	return store(rt, m), cyclic
}

func (d *deriver) sub(rt reflect.Type) (Type, bool, error) {
	m, cyclic := d.derive(rt)
	if m.uncached && m.typ.IsValid() {
		d.discarded = append(d.discarded, m.typ)
	}
	return m.typ, cyclic, m.err
}

func implementsCompiler(rt reflect.Type) bool {
	if !rt.Implements(compilerType) {
		return false
	}
	// *T inherits the methods of T; only a pointer receiver makes *T the
	// implementing type.
	return rt.Kind() != reflect.Pointer || !rt.Elem().Implements(compilerType)
}

func (d *deriver) build(rt reflect.Type) (*mapping, bool) {
	if implementsCompiler(rt) {
		c := reflect.Zero(rt).Interface().(Compiler)
		t := c.JITType()
		if !t.IsValid() {
			return &mapping{err: &GenerationError{Type: rt.String(), Msg: "JITType returned an invalid Type"}}, false
		}
		return &mapping{typ: t, record: compilerRecord(rt, t)}, false
	}

	switch rt.Kind() {
	case reflect.Bool:
		return &mapping{typ: TypeSysBool}, false
	case reflect.Int8:
		return &mapping{typ: TypeSByte}, false
	case reflect.Uint8:
		return &mapping{typ: TypeUByte}, false
	case reflect.Int16:
		return &mapping{typ: TypeShort}, false
	case reflect.Uint16:
		return &mapping{typ: TypeUShort}, false
	case reflect.Int32:
		return &mapping{typ: TypeInt}, false
	case reflect.Uint32:
		return &mapping{typ: TypeUInt}, false
	case reflect.Int64:
		return &mapping{typ: TypeLong}, false
	case reflect.Uint64:
		return &mapping{typ: TypeULong}, false
	case reflect.Int:
		return &mapping{typ: TypeNInt}, false
	case reflect.Uint, reflect.Uintptr:
		return &mapping{typ: TypeNUInt}, false
	case reflect.Float32:
		return &mapping{typ: TypeFloat32}, false
	case reflect.Float64:
		return &mapping{typ: TypeFloat64}, false
	case reflect.UnsafePointer:
		return &mapping{typ: TypeVoidPtr}, false

	case reflect.Pointer:
		if d.active[rt.Elem()] {
			return &mapping{typ: TypeVoidPtr}, true
		}
		elem, cyclic, err := d.sub(rt.Elem())
		if err != nil {
			return &mapping{err: wrapGen(rt, err)}, cyclic
		}
		return &mapping{typ: NewPointer(elem)}, cyclic

	case reflect.String:
		t := NewStruct(Get[*uint8](), TypeNUInt)
		t.SetNames("data", "len")
		if err := t.SetSizeAndAlignment(int64(unsafe.Sizeof("")), int64(unsafe.Alignof(""))); err != nil {
			t.Release()
			return &mapping{err: wrapGen(rt, err)}, false
		}
		return &mapping{typ: t}, false

	case reflect.Slice:
		elem, cyclic, err := d.sub(rt.Elem())
		if err != nil {
			return &mapping{err: wrapGen(rt, err)}, cyclic
		}
		ptr := NewPointer(elem)
		hdr := NewStruct(ptr, TypeNUInt, TypeNUInt)
		ptr.Release()
		hdr.SetNames("data", "len", "cap")
		t := NewTagged(hdr, TagGoSlice, elem, nil)
		hdr.Release()
		return &mapping{typ: t}, cyclic

	case reflect.Func:
		return d.signature(rt)

	case reflect.Struct:
		return d.structType(rt)
	}
	return &mapping{err: notCompatible(rt.String())}, false
}

func wrapGen(rt reflect.Type, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return &GenerationError{Type: rt.String(), Code: ge.Code, Msg: fmt.Sprintf("%s: %s", ge.Type, ge.Msg), Err: err}
	}
	return &GenerationError{Type: rt.String(), Msg: err.Error(), Err: err}
}

func (d *deriver) signature(rt reflect.Type) (*mapping, bool) {
	cyclic := false
	params := make([]Type, rt.NumIn())
	for i := range params {
		t, c, err := d.sub(rt.In(i))
		if err != nil {
			return &mapping{err: wrapGen(rt, err)}, cyclic || c
		}
		params[i], cyclic = t, cyclic || c
	}
	ret := TypeVoid
	var results Type
	switch rt.NumOut() {
	case 0:
	case 1:
		t, c, err := d.sub(rt.Out(0))
		if err != nil {
			return &mapping{err: wrapGen(rt, err)}, cyclic || c
		}
		ret, cyclic = t, cyclic || c
	default:
		outs := make([]Type, rt.NumOut())
		for i := range outs {
			t, c, err := d.sub(rt.Out(i))
			if err != nil {
				return &mapping{err: wrapGen(rt, err)}, cyclic || c
			}
			outs[i], cyclic = t, cyclic || c
		}
		results = NewPackedStruct(outs...)
		ret = results
	}
	sig := NewSignature(CDecl, ret, params...)
	if results.IsValid() {
		results.Release()
	}
	return &mapping{typ: sig}, cyclic
}

var derived sync.Map // reflect.Type -> Type

// Derived caches the descriptor build returns for T. Concurrent first
// calls may each run build; only one result is kept. Generated JITType
// methods use it so repeated calls return the same descriptor.
func Derived[T any](build func() Type) Type {
	rt := reflect.TypeFor[T]()
	if t, ok := derived.Load(rt); ok {
		return t.(Type)
	}
	t := build()
	actual, loaded := derived.LoadOrStore(rt, t)
	if loaded && t.IsValid() && actual.(Type) != t {
		t.Release()
	}
	return actual.(Type)
}

// tuple is implemented by Tuple1 to Tuple5.
type tuple interface{ isTuple() }

var tupleType = reflect.TypeFor[tuple]()

func (d *deriver) structType(rt reflect.Type) (*mapping, bool) {
	if rt.NumField() == 0 {
		return &mapping{typ: TypeVoid}, false
	}
	isTuple := rt.Implements(tupleType)
	if isTuple && rt.NumField() == 1 {
		ft := rt.Field(0).Type
		m, cyclic := d.derive(ft)
		return &mapping{typ: m.typ, err: m.err, record: []recordField{{index: 0, typ: ft}}}, cyclic
	}

	packed := isTuple
	var fields []reflect.StructField
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if sf.Type == packedType {
			packed = true
			continue
		}
		fields = append(fields, sf)
	}
	if !packed {
		return &mapping{err: notPacked(rt.String())}, false
	}

	cyclic := false
	types := make([]Type, len(fields))
	in := make([]derive.Field, len(fields))
	for i, sf := range fields {
		t, c, err := d.sub(sf.Type)
		if err != nil {
			return &mapping{err: wrapGen(rt, err)}, cyclic || c
		}
		types[i], cyclic = t, cyclic || c
		name := sf.Name
		if isTuple {
			name = ""
		}
		in[i] = derive.Field{Name: name, Size: t.Size()}
	}
	plan, err := derive.Record(rt.String(), in, true)
	if err != nil {
		return &mapping{err: notPacked(rt.String())}, cyclic
	}
	t := NewPackedStruct(types...)
	if names := plan.Names(); names != nil {
		t.SetNames(names...)
	}
	rec := make([]recordField, len(fields))
	for i, mb := range plan.Members {
		rec[i] = recordField{index: fields[i].Index[0], offset: mb.Offset, typ: fields[i].Type}
	}
	return &mapping{typ: t, record: rec}, cyclic
}

// compilerRecord recovers the field mapping of a struct whose Compiler
// implementation describes it as a packed record of its non-marker fields.
func compilerRecord(rt reflect.Type, t Type) []recordField {
	if rt.Kind() != reflect.Struct || !t.IsStruct() || !t.Packed() {
		return nil
	}
	var rec []recordField
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if sf.Type == packedType {
			continue
		}
		rec = append(rec, recordField{index: i, typ: sf.Type})
	}
	if len(rec) != t.NumFields() {
		return nil
	}
	for i := range rec {
		f, _ := t.Field(i)
		rec[i].offset = f.Offset
	}
	return rec
}

// Tuple1 is a one-element tuple. It maps to the descriptor of its element.
type Tuple1[A any] struct{ V0 A }

// Tuple2 maps to a packed struct of its elements.
type Tuple2[A, B any] struct {
	V0 A
	V1 B
}

type Tuple3[A, B, C any] struct {
	V0 A
	V1 B
	V2 C
}

type Tuple4[A, B, C, D any] struct {
	V0 A
	V1 B
	V2 C
	V3 D
}

type Tuple5[A, B, C, D, E any] struct {
	V0 A
	V1 B
	V2 C
	V3 D
	V4 E
}

func (Tuple1[A]) isTuple()             {}
func (Tuple2[A, B]) isTuple()          {}
func (Tuple3[A, B, C]) isTuple()       {}
func (Tuple4[A, B, C, D]) isTuple()    {}
func (Tuple5[A, B, C, D, E]) isTuple() {}
