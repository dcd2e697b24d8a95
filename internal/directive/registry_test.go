package directive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
		ns   string
		args []string
	}{
		{"//jit:derive", true, "derive", nil},
		{"//jit:derive packed", true, "derive", []string{"packed"}},
		{"//jit:derive  packed  extra", true, "derive", []string{"packed", "extra"}},
		{"// jit:derive", false, "", nil},
		{"//jit: derive", false, "", nil},
		{"//jit:", false, "", nil},
		{"//go:generate jitgen derive", false, "", nil},
		{"/* jit:derive */", false, "", nil},
	}
	for _, tt := range tests {
		d, ok := Parse(&ast.Comment{Text: tt.text})
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if d.Namespace != tt.ns {
			t.Errorf("Parse(%q) namespace = %q, want %q", tt.text, d.Namespace, tt.ns)
		}
		if len(d.Args) != len(tt.args) {
			t.Errorf("Parse(%q) args = %q, want %q", tt.text, d.Args, tt.args)
			continue
		}
		for i := range tt.args {
			if d.Args[i] != tt.args[i] {
				t.Errorf("Parse(%q) args = %q, want %q", tt.text, d.Args, tt.args)
			}
		}
	}
}

func TestRegistry_FilterByNamespace(t *testing.T) {
	r := NewRegistry()

	r.Add(&Scenario{Directive: Directive{Namespace: "derive"}, Index: 0, SourceFile: "a.go"})
	r.Add(&Scenario{Directive: Directive{Namespace: "derive"}, Index: 1, SourceFile: "a.go"})
	r.Add(&Scenario{Directive: Directive{Namespace: "inline"}, Index: 0, SourceFile: "a.go"})
	r.Add(&Scenario{Directive: Directive{Namespace: "other"}, Index: 0, SourceFile: "b.go"})

	if got := len(r.FilterByNamespace("derive")); got != 2 {
		t.Errorf("expected 2 derive scenarios, got %d", got)
	}
	if got := len(r.FilterByNamespace("derive", "inline")); got != 3 {
		t.Errorf("expected 3 scenarios for derive+inline, got %d", got)
	}
	if got := len(r.FilterByNamespace()); got != 4 {
		t.Errorf("expected all 4 scenarios, got %d", got)
	}
	if got := len(r.FilterByNamespace("missing")); got != 0 {
		t.Errorf("expected 0 scenarios, got %d", got)
	}
	if r.Count("derive") != 2 || r.Len() != 4 {
		t.Errorf("Count = %d, Len = %d", r.Count("derive"), r.Len())
	}
}

const source = `package shapes

//jit:derive packed
type Point struct {
	X, Y int32
}

type (
	// Color is an enum.
	//jit:derive
	Color uint8

	Plain struct{}
)

//jit:derive
func helper() {}

//jit:derive
var x int
`

func TestCollectFromFile(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "shapes.go", source, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := NewRegistry()
	r.CollectFromFile(fset, file)

	got := r.FilterByNamespace("derive")
	want := []struct {
		name   string
		spec   bool
		packed bool
		line   int
	}{
		{"Point", true, true, 3},
		{"Color", true, false, 10},
		{"helper", false, false, 16},
		{"x", false, false, 19},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d scenarios, want %d", len(got), len(want))
	}
	for i, w := range want {
		s := got[i]
		if s.Name() != w.name || (s.Spec != nil) != w.spec || s.Has("packed") != w.packed {
			t.Errorf("scenario %d = %s spec=%v packed=%v, want %+v", i, s.Name(), s.Spec != nil, s.Has("packed"), w)
		}
		if line := fset.Position(s.Pos).Line; line != w.line {
			t.Errorf("scenario %d line = %d, want %d", i, line, w.line)
		}
		if s.Index != i || s.SourceFile != "shapes.go" {
			t.Errorf("scenario %d index=%d file=%q", i, s.Index, s.SourceFile)
		}
	}
}
