package gen

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"jitkit/internal/derive"
	"jitkit/internal/diag"
)

const testJIT = "example.com/jit"

const fakeJIT = `package jit

type Packed struct{}

type Tuple2[A, B any] struct {
	V0 A
	V1 B
}
`

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

func check(t *testing.T, src string) *Package {
	t.Helper()
	fset := token.NewFileSet()
	jf, err := parser.ParseFile(fset, "jit.go", fakeJIT, 0)
	if err != nil {
		t.Fatalf("parse jit: %v", err)
	}
	jitPkg, err := (&types.Config{}).Check(testJIT, fset, []*ast.File{jf}, nil)
	if err != nil {
		t.Fatalf("check jit: %v", err)
	}
	f, err := parser.ParseFile(fset, "shapes.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	conf := types.Config{Importer: importerFunc(func(path string) (*types.Package, error) {
		switch path {
		case testJIT:
			return jitPkg, nil
		case "unsafe":
			return types.Unsafe, nil
		}
		return nil, errors.New("unexpected import " + path)
	})}
	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	tp, err := conf.Check("example.com/shapes", fset, []*ast.File{f}, info)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return &Package{Name: tp.Name(), Path: tp.Path(), Fset: fset, Files: []*ast.File{f}, Types: tp, Info: info}
}

const shapes = `package shapes

import (
	"unsafe"

	"example.com/jit"
)

//jit:derive packed
type Point struct {
	X, Y int32
}

//jit:derive
type Color uint8

//jit:derive packed
type Pair[A, B any] struct {
	First  A
	Second B
}

//jit:derive
type Node struct {
	_     jit.Packed
	Value float64
	Next  *Node
	Raw   unsafe.Pointer
	Both  jit.Tuple2[int32, float64]
}

//jit:derive packed
type Padded struct {
	Tag int8
	_   int16
	At  Point
	Hue Color
}

type untouched struct{ m map[string]int }
`

func TestAnalyze(t *testing.T) {
	items, bag := Analyze(check(t, shapes), testJIT)
	if bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	want := []struct {
		name   string
		kind   Kind
		recv   string
		fields int
		named  bool
	}{
		{"Point", KindRecord, "Point", 2, true},
		{"Color", KindEnum, "Color", 0, false},
		{"Pair", KindRecord, "Pair[A, B]", 2, true},
		{"Node", KindRecord, "Node", 4, true},
		{"Padded", KindRecord, "Padded", 4, false},
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		it := items[i]
		if it.Name != w.name || it.Kind != w.kind || it.Receiver() != w.recv || len(it.Fields) != w.fields || (it.Names != nil) != w.named {
			t.Errorf("item %d = %s kind=%d recv=%s fields=%d names=%v, want %+v", i, it.Name, it.Kind, it.Receiver(), len(it.Fields), it.Names, w)
		}
	}
	if items[1].Repr != "uint8" {
		t.Errorf("Color repr = %q", items[1].Repr)
	}
	node := items[3]
	if !node.Fields[1].Opaque || node.Fields[0].Opaque || node.Fields[2].Opaque {
		t.Errorf("Node opaque flags = %v %v %v", node.Fields[0].Opaque, node.Fields[1].Opaque, node.Fields[2].Opaque)
	}
	if !items[4].Fields[1].Blank() {
		t.Errorf("Padded._ not blank")
	}
}

func TestAnalyzeDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		decl string
		code diag.Code
		msg  string
	}{
		{"not packed", "//jit:derive\ntype S struct{ X int32 }", diag.GenNotPacked, derive.MsgNotPacked},
		{"string type", "//jit:derive\ntype S string", diag.GenNotCompatible, derive.MsgNotCompatible},
		{"float type", "//jit:derive\ntype S float64", diag.GenNotCompatible, derive.MsgNotCompatible},
		{"func", "//jit:derive\nfunc f() {}", diag.GenNotCompatible, derive.MsgNotCompatible},
		{"var", "//jit:derive\nvar v int", diag.GenNotCompatible, derive.MsgNotCompatible},
		{"alias", "//jit:derive\ntype S = int32", diag.GenNotCompatible, derive.MsgNotCompatible},
		{"map field", "//jit:derive packed\ntype S struct{ M map[string]int }", diag.GenFieldType, "field M: map type map[string]int has no JIT descriptor"},
		{"array field", "//jit:derive packed\ntype S struct{ A [4]int32 }", diag.GenFieldType, "array type"},
		{"complex field", "//jit:derive packed\ntype S struct{ C complex128 }", diag.GenFieldType, "complex type"},
		{"unpacked nested", "type In struct{ X int32 }\n\n//jit:derive packed\ntype S struct{ I In }", diag.GenFieldType, "struct In is not packed"},
		{"bad argument", "//jit:derive aligned\ntype S struct{ X int32 }", diag.GenBadDirective, `unknown //jit:derive argument "aligned"`},
		{"packed enum", "//jit:derive packed\ntype E int16", diag.GenBadDirective, "packed applies to structs only"},
		{"duplicate", "type (\n\t//jit:derive packed\n\tS struct{ X int32 }\n)\n\n//jit:derive\ntype E int8\n\ntype (\n\t//jit:derive\n\t//jit:derive\n\tF int8\n)", diag.GenDuplicateType, "F is marked with //jit:derive more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, bag := Analyze(check(t, "package shapes\n\n"+tt.decl+"\n"), testJIT)
			if !bag.HasErrors() {
				t.Fatalf("no diagnostics, items %v", items)
			}
			d := bag.Items()[0]
			if d.Code != tt.code || !strings.Contains(d.Message, tt.msg) {
				t.Fatalf("got %s %q, want %s containing %q", d.Code.ID(), d.Message, tt.code.ID(), tt.msg)
			}
			if tt.code == diag.GenDuplicateType {
				return
			}
			for _, it := range items {
				if it.Name == "S" {
					t.Errorf("item %s was not skipped", it.Name)
				}
			}
		})
	}
}

func TestAnalyzeReportsEveryItem(t *testing.T) {
	src := `package shapes

//jit:derive
type A struct{ X int32 }

//jit:derive packed
type Good struct{ X int32 }

//jit:derive
type B string
`
	items, bag := Analyze(check(t, src), testJIT)
	if len(items) != 1 || items[0].Name != "Good" {
		t.Fatalf("items = %v, want only Good", items)
	}
	ds := bag.Items()
	if len(ds) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(ds), ds)
	}
	if ds[0].Code != diag.GenNotPacked || ds[0].Pos.Line != 3 {
		t.Errorf("first = %s line %d", ds[0].Code.ID(), ds[0].Pos.Line)
	}
	if ds[1].Code != diag.GenNotCompatible || ds[1].Pos.Line != 9 {
		t.Errorf("second = %s line %d", ds[1].Code.ID(), ds[1].Pos.Line)
	}
	if ds[0].Error() != "shapes.go:3:1: "+derive.MsgNotPacked+" [GEN3001]" {
		t.Errorf("Error() = %q", ds[0].Error())
	}
}

func TestEmit(t *testing.T) {
	pkg := check(t, shapes)
	items, bag := Analyze(pkg, testJIT)
	if bag.Len() != 0 {
		t.Fatalf("diagnostics: %v", bag.Items())
	}
	src, err := Emit(pkg.Types, items, testJIT, "jit_derive.go")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	out := string(src)
	if !strings.HasPrefix(out, Header+"\n") {
		t.Errorf("missing header:\n%s", out)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "jit_derive.go", src, 0); err != nil {
		t.Fatalf("generated file does not parse: %v\n%s", err, out)
	}
	for _, want := range []string{
		"package shapes\n",
		`"example.com/jit"`,
		`"unsafe"`,
		"func (Point) JITType() jit.Type {",
		"return jit.Derived[Point](func() jit.Type {",
		`t.SetNames("X", "Y")`,
		"func (v Point) Compile(f *jit.UncompiledFunction) jit.Val {",
		"out := f.NewValue(v.JITType())",
		"p := f.InsnAddressOf(out)",
		"f.InsnStoreRelative(p, offset, jit.Of(f, v.X))",
		"offset += jit.Get[int32]().Size()",
		"f.InsnStoreRelative(p, offset, jit.Of(f, v.Y))",
		"func (Color) JITType() jit.Type { return jit.Get[uint8]() }",
		"func (v Color) Compile(f *jit.UncompiledFunction) jit.Val { return jit.Of(f, uint8(v)) }",
		"func (Pair[A, B]) JITType() jit.Type {",
		"return jit.Derived[Pair[A, B]](func() jit.Type {",
		"jit.Get[A](),",
		"func (v Pair[A, B]) Compile(f *jit.UncompiledFunction) jit.Val {",
		"jit.TypeVoidPtr,",
		"jit.Of(f, unsafe.Pointer(v.Next))",
		"jit.Get[unsafe.Pointer](),",
		"jit.Get[jit.Tuple2[int32, float64]](),",
		"jit.Of(f, *new(int16))",
		"jit.Get[Point](),",
		"jit.Get[Color](),",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("generated file lacks %q", want)
		}
	}
	if strings.Contains(out, "jit.Packed") {
		t.Errorf("marker field was emitted:\n%s", out)
	}
	if strings.Contains(out, `SetNames("Tag"`) {
		t.Errorf("names set on a record with a blank field")
	}
	// the last field of a record does not advance the offset
	if strings.Contains(out, "offset += jit.Get[B]().Size()") {
		t.Errorf("trailing offset update")
	}
}

func TestEmitEmptyRecord(t *testing.T) {
	pkg := check(t, "package shapes\n\n//jit:derive packed\ntype Unit struct{}\n")
	items, _ := Analyze(pkg, testJIT)
	src, err := Emit(pkg.Types, items, testJIT, "jit_derive.go")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	for _, want := range []string{"return jit.TypeVoid", "out := f.NewValue(v.JITType())"} {
		if !strings.Contains(string(src), want) {
			t.Errorf("generated file lacks %q:\n%s", want, src)
		}
	}
	if strings.Contains(string(src), "InsnAddressOf") {
		t.Errorf("empty record takes an address:\n%s", src)
	}
}

func TestImportSetAliases(t *testing.T) {
	s := newImportSet(nil)
	if got := s.add("a/x", "x"); got != "x" {
		t.Errorf("first = %q", got)
	}
	if got := s.add("b/x", "x"); got != "x2" {
		t.Errorf("second = %q", got)
	}
	if got := s.add("a/x", "x"); got != "x" {
		t.Errorf("repeat = %q", got)
	}
}

func TestParsePos(t *testing.T) {
	tests := []struct {
		in        string
		file      string
		line, col int
	}{
		{"a.go:3:7", "a.go", 3, 7},
		{"/x/y/a.go:12", "/x/y/a.go", 12, 0},
		{"C:/src/a.go:1:2", "C:/src/a.go", 1, 2},
		{"", "", 0, 0},
		{"-", "", 0, 0},
	}
	for _, tt := range tests {
		p := parsePos(tt.in)
		if p.Filename != tt.file || p.Line != tt.line || p.Column != tt.col {
			t.Errorf("parsePos(%q) = %v, want %s:%d:%d", tt.in, p, tt.file, tt.line, tt.col)
		}
	}
}
