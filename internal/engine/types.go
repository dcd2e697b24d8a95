package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"jitkit/internal/layout"
)

// NotFound is returned by FindName when no field or parameter matches.
const NotFound = -1

// Field is a member of a struct or union, or a parameter of a signature.
type Field struct {
	Name   string
	Type   *TypeDesc
	Offset int
}

// TypeDesc is a reference counted type descriptor. Predefined descriptors
// are fixed: Copy and Free leave them untouched.
type TypeDesc struct {
	kind   Kind
	size   int
	align  int
	packed bool
	fixed  bool
	refs   atomic.Int32

	fields []Field // struct/union members, signature parameters
	ret    *TypeDesc
	abi    ABI
	ref    *TypeDesc // pointee or tagged base

	tagKind TagKind
	tagMu   sync.Mutex
	tagData any
	tagFree func(any)
}

func newFixed(k Kind) *TypeDesc {
	w := width(k)
	tl := layout.Scalar(w)
	return &TypeDesc{kind: k, size: tl.Size, align: tl.Align, fixed: true}
}

// Predefined descriptors.
var (
	Void    = &TypeDesc{kind: KindVoid, size: 0, align: 1, fixed: true}
	SByte   = newFixed(KindSByte)
	UByte   = newFixed(KindUByte)
	Short   = newFixed(KindShort)
	UShort  = newFixed(KindUShort)
	Int     = newFixed(KindInt)
	UInt    = newFixed(KindUInt)
	NInt    = newFixed(KindNInt)
	NUInt   = newFixed(KindNUInt)
	Long    = newFixed(KindLong)
	ULong   = newFixed(KindULong)
	Float32 = newFixed(KindFloat32)
	Float64 = newFixed(KindFloat64)
	NFloat  = newFixed(KindNFloat)
	VoidPtr = fixedPointer(Void)
	SysBool = fixedTagged(UByte, TagSysBool)
	SysChar = fixedTagged(SByte, TagSysChar)
)

func fixedPointer(ref *TypeDesc) *TypeDesc {
	pl := layout.Host().PtrLayout()
	return &TypeDesc{kind: KindPointer, size: pl.Size, align: pl.Align, ref: ref, fixed: true}
}

func fixedTagged(base *TypeDesc, kind TagKind) *TypeDesc {
	return &TypeDesc{kind: KindTagged, size: base.size, align: base.align, ref: base, tagKind: kind, fixed: true}
}

func fresh(t *TypeDesc) *TypeDesc {
	t.refs.Store(1)
	return t
}

// CreateStruct builds a struct descriptor over copies of the given members.
func CreateStruct(members []*TypeDesc, packed bool) *TypeDesc {
	return createAggregate(KindStruct, members, packed)
}

// CreateUnion builds a union descriptor over copies of the given members.
func CreateUnion(members []*TypeDesc) *TypeDesc {
	return createAggregate(KindUnion, members, false)
}

func createAggregate(k Kind, members []*TypeDesc, packed bool) *TypeDesc {
	t := &TypeDesc{kind: k, packed: packed}
	t.fields = make([]Field, len(members))
	tls := make([]layout.TypeLayout, len(members))
	for i, m := range members {
		t.fields[i] = Field{Type: Copy(m)}
		tls[i] = layout.TypeLayout{Size: m.size, Align: m.align}
	}
	var tl layout.TypeLayout
	if k == KindUnion {
		tl = layout.Union(tls)
	} else {
		tl = layout.Struct(tls, packed)
	}
	for i := range t.fields {
		t.fields[i].Offset = tl.FieldOffsets[i]
	}
	t.size, t.align = tl.Size, tl.Align
	return fresh(t)
}

// CreatePointer builds a pointer descriptor. A pointer to void returns the
// predefined VoidPtr.
func CreatePointer(ref *TypeDesc) *TypeDesc {
	if ref == Void {
		return VoidPtr
	}
	pl := layout.Host().PtrLayout()
	return fresh(&TypeDesc{kind: KindPointer, size: pl.Size, align: pl.Align, ref: Copy(ref)})
}

// CreateSignature builds a function signature descriptor.
func CreateSignature(abi ABI, ret *TypeDesc, params []*TypeDesc) *TypeDesc {
	if ret == nil {
		ret = Void
	}
	pl := layout.Host().PtrLayout()
	t := &TypeDesc{kind: KindSignature, size: pl.Size, align: pl.Align, abi: abi, ret: Copy(ret)}
	t.fields = make([]Field, len(params))
	for i, p := range params {
		t.fields[i] = Field{Type: Copy(p)}
	}
	return fresh(t)
}

// CreateTagged wraps base with a tag kind and optional data. free, when non
// nil, is called with the data once the descriptor is released or the data
// is replaced.
func CreateTagged(base *TypeDesc, kind TagKind, data any, free func(any)) *TypeDesc {
	t := &TypeDesc{
		kind:    KindTagged,
		size:    base.size,
		align:   base.align,
		ref:     Copy(base),
		tagKind: kind,
		tagData: data,
		tagFree: free,
	}
	return fresh(t)
}

// Copy adds a reference to t and returns it.
func Copy(t *TypeDesc) *TypeDesc {
	if t != nil && !t.fixed {
		t.refs.Add(1)
	}
	return t
}

// Free drops a reference to t. The last reference releases the tag data and
// the references held on component types.
func Free(t *TypeDesc) {
	if t == nil || t.fixed {
		return
	}
	if t.refs.Add(-1) != 0 {
		return
	}
	t.tagMu.Lock()
	data, free := t.tagData, t.tagFree
	t.tagData, t.tagFree = nil, nil
	t.tagMu.Unlock()
	if free != nil {
		free(data)
	}
	for _, f := range t.fields {
		Free(f.Type)
	}
	Free(t.ret)
	Free(t.ref)
}

// Refs reports the current reference count. Fixed descriptors report 1.
func (t *TypeDesc) Refs() int32 {
	if t.fixed {
		return 1
	}
	return t.refs.Load()
}

func (t *TypeDesc) Kind() Kind { return t.kind }
func (t *TypeDesc) Size() int  { return t.size }
func (t *TypeDesc) Align() int { return t.align }

// Packed reports whether a struct was laid out without padding.
func (t *TypeDesc) Packed() bool { return t.packed }

// Fixed reports whether t is a predefined descriptor.
func (t *TypeDesc) Fixed() bool { return t.fixed }

// SetSizeAndAlignment overrides the layout of a struct or union. Negative
// values keep the computed setting.
func (t *TypeDesc) SetSizeAndAlignment(size, align int64) error {
	if t.kind != KindStruct && t.kind != KindUnion {
		return fmt.Errorf("cannot override the layout of %s", t)
	}
	if size >= 0 {
		n, err := layout.Checked(size)
		if err != nil {
			return err
		}
		t.size = n
	}
	if align >= 0 {
		n, err := layout.CheckAlign(align)
		if err != nil {
			return err
		}
		t.align = n
	}
	return nil
}

// Ref returns the pointee of a pointer or the base of a tagged type.
func (t *TypeDesc) Ref() *TypeDesc {
	if t.kind == KindPointer || t.kind == KindTagged {
		return t.ref
	}
	return nil
}

// Return returns the result type of a signature.
func (t *TypeDesc) Return() *TypeDesc {
	if t.kind == KindSignature {
		return t.ret
	}
	return nil
}

// ABI returns the calling convention of a signature.
func (t *TypeDesc) ABI() ABI { return t.abi }

// NumFields returns the number of struct or union members.
func (t *TypeDesc) NumFields() int {
	if t.kind == KindStruct || t.kind == KindUnion {
		return len(t.fields)
	}
	return 0
}

// Field returns member i of a struct or union.
func (t *TypeDesc) Field(i int) (Field, bool) {
	if i < 0 || i >= t.NumFields() {
		return Field{}, false
	}
	return t.fields[i], true
}

// NumParams returns the parameter count of a signature.
func (t *TypeDesc) NumParams() int {
	if t.kind == KindSignature {
		return len(t.fields)
	}
	return 0
}

// Param returns the type of parameter i of a signature.
func (t *TypeDesc) Param(i int) *TypeDesc {
	if i < 0 || i >= t.NumParams() {
		return nil
	}
	return t.fields[i].Type
}

// ParamName returns the name assigned to parameter i, if any.
func (t *TypeDesc) ParamName(i int) string {
	if i < 0 || i >= t.NumParams() {
		return ""
	}
	return t.fields[i].Name
}

// SetNames names the members of a struct or union or the parameters of a
// signature. It fails when there are more names than members.
func (t *TypeDesc) SetNames(names []string) bool {
	switch t.kind {
	case KindStruct, KindUnion, KindSignature:
	default:
		return false
	}
	if len(names) > len(t.fields) {
		return false
	}
	for i, n := range names {
		t.fields[i].Name = norm.NFC.String(n)
	}
	return true
}

// FindName returns the index of the member or parameter called name.
func (t *TypeDesc) FindName(name string) int {
	name = norm.NFC.String(name)
	for i, f := range t.fields {
		if f.Name != "" && f.Name == name {
			return i
		}
	}
	return NotFound
}

// TagKind returns the tag of a tagged type, or zero.
func (t *TypeDesc) TagKind() TagKind {
	if t.kind == KindTagged {
		return t.tagKind
	}
	return 0
}

// TaggedData returns the data attached to a tagged type.
func (t *TypeDesc) TaggedData() any {
	if t.kind != KindTagged {
		return nil
	}
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	return t.tagData
}

// SetTaggedData replaces the tag data, releasing the previous data.
func (t *TypeDesc) SetTaggedData(data any, free func(any)) {
	if t.kind != KindTagged || t.fixed {
		return
	}
	t.tagMu.Lock()
	old, oldFree := t.tagData, t.tagFree
	t.tagData, t.tagFree = data, free
	t.tagMu.Unlock()
	if oldFree != nil {
		oldFree(old)
	}
}

// Normalize strips tags and returns the underlying descriptor.
func (t *TypeDesc) Normalize() *TypeDesc {
	for t != nil && t.kind == KindTagged {
		t = t.ref
	}
	return t
}

// RemoveTags is an alias of Normalize kept for the descriptor API.
func (t *TypeDesc) RemoveTags() *TypeDesc { return t.Normalize() }

// arith returns the kind used when values of t take part in arithmetic.
func (t *TypeDesc) arith() Kind {
	n := t.Normalize()
	if n == nil {
		return KindVoid
	}
	switch n.kind {
	case KindPointer, KindSignature:
		return KindNUInt
	}
	return n.kind
}

func (t *TypeDesc) IsPrimitive() bool { return t.kind.IsPrimitive() }
func (t *TypeDesc) IsStruct() bool    { return t.kind == KindStruct }
func (t *TypeDesc) IsUnion() bool     { return t.kind == KindUnion }
func (t *TypeDesc) IsSignature() bool { return t.kind == KindSignature }
func (t *TypeDesc) IsPointer() bool   { return t.kind == KindPointer }
func (t *TypeDesc) IsTagged() bool    { return t.kind == KindTagged }

// IsAggregate reports whether values of t live in memory buffers rather
// than scalar registers.
func (t *TypeDesc) IsAggregate() bool {
	n := t.Normalize()
	return n != nil && (n.kind == KindStruct || n.kind == KindUnion)
}

func (t *TypeDesc) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *TypeDesc) write(sb *strings.Builder) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	switch t.kind {
	case KindPointer:
		sb.WriteByte('*')
		t.ref.write(sb)
	case KindTagged:
		switch t.tagKind {
		case TagSysBool:
			sb.WriteString("bool")
		case TagSysChar:
			sb.WriteString("char")
		default:
			fmt.Fprintf(sb, "tagged(%d, ", t.tagKind)
			t.ref.write(sb)
			sb.WriteByte(')')
		}
	case KindStruct, KindUnion:
		if t.packed {
			sb.WriteString("packed ")
		}
		sb.WriteString(t.kind.String())
		sb.WriteByte('{')
		t.writeFields(sb)
		sb.WriteByte('}')
	case KindSignature:
		sb.WriteString("func(")
		t.writeFields(sb)
		sb.WriteByte(')')
		if t.ret != nil && t.ret.kind != KindVoid {
			sb.WriteByte(' ')
			t.ret.write(sb)
		}
	default:
		sb.WriteString(t.kind.String())
	}
}

func (t *TypeDesc) writeFields(sb *strings.Builder) {
	for i, f := range t.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		if f.Name != "" {
			sb.WriteString(f.Name)
			sb.WriteByte(' ')
		}
		f.Type.write(sb)
	}
}
