package gen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"jitkit/internal/derive"
	"jitkit/internal/diag"
	"jitkit/internal/directive"
)

// Namespace is the directive namespace read by the generator.
const Namespace = "derive"

// DefaultJITPath is the import path of package jit.
const DefaultJITPath = "jitkit/jit"

// Package is a parsed and type-checked Go package.
type Package struct {
	Name  string
	Path  string
	Fset  *token.FileSet
	Files []*ast.File
	Types *types.Package
	Info  *types.Info
}

// Kind tells records from enums.
type Kind uint8

const (
	KindRecord Kind = iota + 1
	KindEnum
)

// Item is a declaration that passed validation and gets generated
// methods.
type Item struct {
	Name string
	Kind Kind
	// TypeParams are the names of the type parameters of a generic
	// declaration, in order.
	TypeParams []string
	// Repr is the representation type of an enum.
	Repr string
	// Fields are the record members in declaration order, without the
	// jit.Packed marker.
	Fields []Field
	// Names holds the member names when every member is named.
	Names []string
	Pos   token.Position
}

// Receiver returns the receiver type of the generated methods, e.g.
// "Pair[A, B]".
func (it Item) Receiver() string {
	if len(it.TypeParams) == 0 {
		return it.Name
	}
	return it.Name + "[" + strings.Join(it.TypeParams, ", ") + "]"
}

// Field is one record member.
type Field struct {
	Name string
	Type types.Type
	// Opaque fields point at a type derived in the same package; they
	// are described as pointers to void so descriptors never recurse.
	Opaque bool
}

// Blank reports whether the field cannot be read by name.
func (f Field) Blank() bool { return f.Name == "_" }

// Analyze finds the //jit:derive declarations of pkg and validates them.
// Every problem of the package is reported; items with errors are left
// out of the result.
func Analyze(pkg *Package, jitPath string) ([]Item, *diag.Bag) {
	if jitPath == "" {
		jitPath = DefaultJITPath
	}
	a := &analyzer{
		pkg:     pkg,
		jitPath: jitPath,
		bag:     diag.NewBag(0),
		derived: make(map[*types.TypeName]bool),
	}

	reg := directive.NewRegistry()
	for _, f := range pkg.Files {
		reg.CollectFromFile(pkg.Fset, f)
	}
	scenarios := reg.FilterByNamespace(Namespace)

	for _, s := range scenarios {
		if s.Spec == nil {
			continue
		}
		if tn, ok := pkg.Types.Scope().Lookup(s.Spec.Name.Name).(*types.TypeName); ok {
			a.derived[tn] = true
		}
	}

	seen := make(map[*ast.TypeSpec]bool)
	var items []Item
	for _, s := range scenarios {
		if s.Spec != nil && seen[s.Spec] {
			a.errorf(s.Pos, diag.GenDuplicateType, "%s is marked with //jit:%s more than once", s.Spec.Name.Name, Namespace)
			continue
		}
		if s.Spec != nil {
			seen[s.Spec] = true
		}
		if it, ok := a.scenario(s); ok {
			items = append(items, it)
		}
	}
	a.bag.Sort()
	return items, a.bag
}

type analyzer struct {
	pkg     *Package
	jitPath string
	bag     *diag.Bag
	derived map[*types.TypeName]bool
}

func (a *analyzer) errorf(pos token.Pos, code diag.Code, format string, args ...any) {
	a.bag.Add(diag.Errorf(code, a.pkg.Fset.Position(pos), format, args...))
}

func (a *analyzer) scenario(s directive.Scenario) (Item, bool) {
	ok := true
	for _, arg := range s.Args {
		if arg != "packed" {
			a.errorf(s.Pos, diag.GenBadDirective, "unknown //jit:%s argument %q", Namespace, arg)
			ok = false
		}
	}
	if s.Spec == nil || s.Spec.Assign.IsValid() {
		a.errorf(s.Pos, diag.GenNotCompatible, "%s", derive.MsgNotCompatible)
		return Item{}, false
	}

	name := s.Spec.Name.Name
	tn, _ := a.pkg.Types.Scope().Lookup(name).(*types.TypeName)
	if tn == nil {
		a.errorf(s.Spec.Name.Pos(), diag.GenUnsupportedGen, "%s is not a package-level type", name)
		return Item{}, false
	}

	shape := derive.ShapeOther
	var st *types.Struct
	var repr *types.Basic
	switch u := tn.Type().Underlying().(type) {
	case *types.Struct:
		shape, st = derive.ShapeRecord, u
	case *types.Basic:
		if u.Info()&types.IsInteger != 0 {
			shape, repr = derive.ShapeIntEnum, u
		}
	}

	packed := s.Has("packed") || (st != nil && a.hasMarker(st))
	if err := derive.Check(name, shape, packed); err != nil {
		switch {
		case errors.Is(err, derive.ErrNotPacked):
			a.errorf(s.Pos, diag.GenNotPacked, "%s", derive.MsgNotPacked)
		default:
			a.errorf(s.Pos, diag.GenNotCompatible, "%s", derive.MsgNotCompatible)
		}
		return Item{}, false
	}

	it := Item{Name: name, Pos: a.pkg.Fset.Position(s.Spec.Name.Pos())}
	if tps := s.Spec.TypeParams; tps != nil {
		for _, f := range tps.List {
			for _, n := range f.Names {
				it.TypeParams = append(it.TypeParams, n.Name)
			}
		}
	}

	if repr != nil {
		if s.Has("packed") {
			a.errorf(s.Pos, diag.GenBadDirective, "packed applies to structs only")
			return Item{}, false
		}
		it.Kind = KindEnum
		it.Repr = repr.Name()
		return it, ok
	}

	it.Kind = KindRecord
	fields, fieldsOK := a.fields(st)
	it.Fields = fields
	if !ok || !fieldsOK {
		return Item{}, false
	}

	in := make([]derive.Field, len(fields))
	for i, f := range fields {
		in[i] = derive.Field{Name: f.Name}
	}
	plan, err := derive.Record(name, in, true)
	if err != nil {
		a.errorf(s.Pos, diag.GenNotPacked, "%s", derive.MsgNotPacked)
		return Item{}, false
	}
	it.Names = plan.Names()
	return it, true
}

func (a *analyzer) fields(st *types.Struct) ([]Field, bool) {
	var out []Field
	ok := true
	for v := range st.Fields() {
		if a.isMarker(v.Type()) {
			continue
		}
		if reason := a.mappable(v.Type(), make(map[*types.TypeName]bool)); reason != "" {
			a.errorf(v.Pos(), diag.GenFieldType, "field %s: %s", v.Name(), reason)
			ok = false
		}
		out = append(out, Field{Name: v.Name(), Type: v.Type(), Opaque: a.opaque(v.Type())})
	}
	return out, ok
}

func (a *analyzer) isMarker(t types.Type) bool {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := n.Obj()
	return obj.Name() == "Packed" && obj.Pkg() != nil && obj.Pkg().Path() == a.jitPath
}

func (a *analyzer) hasMarker(st *types.Struct) bool {
	for i := range st.NumFields() {
		if a.isMarker(st.Field(i).Type()) {
			return true
		}
	}
	return false
}

// opaque reports whether t is a pointer to a type derived in this run.
func (a *analyzer) opaque(t types.Type) bool {
	p, ok := types.Unalias(t).(*types.Pointer)
	if !ok {
		return false
	}
	n, ok := types.Unalias(p.Elem()).(*types.Named)
	return ok && a.derived[n.Obj()]
}

func isCompiler(t types.Type) bool {
	ms := types.NewMethodSet(t)
	return ms.Lookup(nil, "JITType") != nil && ms.Lookup(nil, "Compile") != nil
}

// mappable returns why t has no descriptor, or "" when it has one.
func (a *analyzer) mappable(t types.Type, visiting map[*types.TypeName]bool) string {
	switch t := types.Unalias(t).(type) {
	case *types.Basic:
		switch {
		case t.Kind() == types.Invalid:
			return "type is invalid"
		case t.Info()&types.IsComplex != 0:
			return fmt.Sprintf("complex type %s has no JIT descriptor", t)
		}
		return ""
	case *types.TypeParam:
		return ""
	case *types.Pointer:
		if a.opaque(t) {
			return ""
		}
		return a.mappable(t.Elem(), visiting)
	case *types.Slice:
		return a.mappable(t.Elem(), visiting)
	case *types.Signature:
		if t.Variadic() {
			return "variadic function types have no JIT descriptor"
		}
		for v := range t.Params().Variables() {
			if r := a.mappable(v.Type(), visiting); r != "" {
				return r
			}
		}
		for v := range t.Results().Variables() {
			if r := a.mappable(v.Type(), visiting); r != "" {
				return r
			}
		}
		return ""
	case *types.Named:
		obj := t.Obj()
		if a.derived[obj] || visiting[obj] || isCompiler(t) {
			return ""
		}
		visiting[obj] = true
		if st, ok := t.Underlying().(*types.Struct); ok {
			return a.structType(obj.Name(), st, a.isTuple(obj), visiting)
		}
		return a.mappable(t.Underlying(), visiting)
	case *types.Struct:
		return a.structType(types.TypeString(t, nil), t, false, visiting)
	case *types.Array:
		return fmt.Sprintf("array type %s has no JIT descriptor", t)
	case *types.Map:
		return fmt.Sprintf("map type %s has no JIT descriptor", t)
	case *types.Chan:
		return fmt.Sprintf("channel type %s has no JIT descriptor", t)
	case *types.Interface:
		return fmt.Sprintf("interface type %s has no JIT descriptor", t)
	}
	return fmt.Sprintf("type %s has no JIT descriptor", t)
}

func (a *analyzer) isTuple(obj *types.TypeName) bool {
	return obj.Pkg() != nil && obj.Pkg().Path() == a.jitPath && strings.HasPrefix(obj.Name(), "Tuple")
}

func (a *analyzer) structType(name string, st *types.Struct, packed bool, visiting map[*types.TypeName]bool) string {
	if st.NumFields() == 0 {
		return ""
	}
	if !packed && !a.hasMarker(st) {
		return fmt.Sprintf("struct %s is not packed", name)
	}
	for i := range st.NumFields() {
		if r := a.mappable(st.Field(i).Type(), visiting); r != "" {
			return r
		}
	}
	return ""
}
