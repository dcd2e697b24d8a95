package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"jitkit/internal/gen"
	"jitkit/internal/trace"
	"jitkit/jit"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newTestSession(t *testing.T) *session {
	t.Helper()
	ctx, err := jit.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return newSession(ctx)
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"Auto", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Errorf("explicit modes ignored")
	}
}

func TestSessionEval(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"func() int32 { return 6 * 7 }", "42"},
		{"func(a, b int32) int32 { return a + b }(3, 4)", "7"},
		{"func(a, b int32) int32 { return a - b }(-3, 1<<4)", "-19"},
		{"func(x float64) float64 { return x * 2 }(1.25)", "2.5"},
		{"func() {}", ""},
	}
	s := newTestSession(t)
	for _, tt := range tests {
		got, err := s.eval(tt.src)
		if err != nil {
			t.Errorf("eval(%q): %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("eval(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestSessionEvalErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"func(a int32) int32 { return a }", "takes 1 arguments, got 0"},
		{"func(a int8) int8 { return a }(300)", "cannot be represented as int8"},
		{"func(a uint32) uint32 { return a }(-1)", "cannot be represented as uint32"},
		{"func(a int32) int32 { return a }(x)", "argument 0"},
		{"func(a int32) int32 { return a }(true)", "cannot be represented as int32"},
		{"func(a int32) int32 { return a }(1, 2)", "takes 1 arguments, got 2"},
		{"f(1)", "expected a function literal"},
		{"func( int32 {", "<jitlang>:1"},
		{"func() int32 { go f() }", "GEN4001"},
	}
	s := newTestSession(t)
	for _, tt := range tests {
		_, err := s.eval(tt.src)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("eval(%q) error = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestConstArg(t *testing.T) {
	v, err := constArg("1 << 10", reflect.TypeFor[int64]())
	if err != nil || v.Int() != 1024 {
		t.Fatalf("constArg = %v, %v", v, err)
	}
	v, err = constArg("3", reflect.TypeFor[float32]())
	if err != nil || v.Float() != 3 {
		t.Fatalf("constArg = %v, %v", v, err)
	}
	v, err = constArg("1 < 2", reflect.TypeFor[bool]())
	if err != nil || !v.Bool() {
		t.Fatalf("constArg = %v, %v", v, err)
	}
	if _, err := constArg("1.5", reflect.TypeFor[int32]()); err == nil {
		t.Fatalf("fractional int accepted")
	}
	if _, err := constArg("len(x)", reflect.TypeFor[int32]()); err == nil {
		t.Fatalf("non-constant accepted")
	}
	if _, err := constArg(`"s"`, reflect.TypeFor[string]()); err == nil {
		t.Fatalf("string parameter accepted")
	}
}

func TestReplHandle(t *testing.T) {
	s := newTestSession(t)
	var out bytes.Buffer
	steps := []struct {
		input string
		want  string
	}{
		{":def add func(a, b int32) int32 { return a + b }", "defined add\n"},
		{"func() int32 { return add(2, 3) }", "= 5\n"},
		{"func(x int32) int32 { return add(x, x) }(21)", "= 42\n"},
		{":funcs", "add\n"},
		{":def 1x func() {}", "is not an identifier"},
		{":def", "usage: :def NAME LITERAL\n"},
		{":nope", "unknown command :nope"},
		{":dump", "listings on\n"},
		{":dump", "listings off\n"},
		{"   ", ""},
	}
	for _, st := range steps {
		out.Reset()
		if s.handle(&out, st.input) {
			t.Fatalf("%q ended the session", st.input)
		}
		if !strings.Contains(out.String(), st.want) || st.want == "" && out.Len() != 0 {
			t.Errorf("%q printed %q, want %q", st.input, out.String(), st.want)
		}
	}
	if !s.handle(&out, ":quit") {
		t.Fatalf(":quit did not end the session")
	}
}

func TestReplTrace(t *testing.T) {
	var out bytes.Buffer
	if newTestSession(t).handle(&out, ":trace"); out.String() != "tracing unavailable\n" {
		t.Fatalf(":trace without a ring printed %q", out.String())
	}

	recent := trace.NewRingTracer(64, trace.LevelFunction)
	ctx, err := jit.NewContext(jit.WithTracer(recent))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	s := newSession(ctx)
	s.recent = recent

	steps := []struct {
		input string
		want  []string
	}{
		{":trace", []string{"• context (opt="}},
		{"func(a, b int32) int32 { return a + b }(1, 2)", []string{"= 3\n"}},
		{":trace", []string{"→ compile:", "← apply:"}},
		{":trace 1", []string{"← apply:"}},
		{":trace x", []string{"usage: :trace [N]\n"}},
		{"func(a, b int32) int32 { return a / b }(1, 0)", nil},
		{":trace 3", []string{"! apply:"}},
	}
	for _, st := range steps {
		out.Reset()
		s.handle(&out, st.input)
		for _, want := range st.want {
			if !strings.Contains(out.String(), want) {
				t.Errorf("%q printed %q, want %q", st.input, out.String(), want)
			}
		}
	}
	out.Reset()
	s.handle(&out, ":trace 1")
	if strings.Count(out.String(), "\n") != 1 {
		t.Errorf(":trace 1 printed %q", out.String())
	}

	recent.Reset()
	out.Reset()
	s.handle(&out, ":trace")
	if out.String() != "no events\n" {
		t.Errorf(":trace on an empty ring printed %q", out.String())
	}
}

func TestUnbalanced(t *testing.T) {
	tests := map[string]bool{
		"func() int32 {":                    true,
		"func() int32 { return 1 }":         false,
		"func(a int32) int32 { return a }(": true,
		":help":                             false,
	}
	for in, want := range tests {
		if got := unbalanced(in); got != want {
			t.Errorf("unbalanced(%q) = %v", in, got)
		}
	}
}

func TestEvalCommand(t *testing.T) {
	out, err := execute(t, "eval", "func(a, b int32) int32 { return a * b }", "6", "7")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out != "42\n" {
		t.Fatalf("output = %q", out)
	}
	out, err = execute(t, "eval", "--dump", "func() int32 { return 1 }")
	if err != nil || !strings.HasSuffix(out, "1\n") || len(out) <= 2 {
		t.Fatalf("eval --dump = %q, %v", out, err)
	}
	out, err = execute(t, "eval", "--timings", "func() int32 { return 2 }")
	if err != nil || !strings.HasPrefix(out, "2\ntimings:\n") || !strings.Contains(out, "compile") || !strings.Contains(out, "run") {
		t.Fatalf("eval --timings = %q, %v", out, err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json", "--full")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if payload["tool"] != "jitgen" || payload["version"] == "" || payload["git_commit"] == "" {
		t.Fatalf("payload = %v", payload)
	}
	if _, err := execute(t, "version", "--format", "xml"); err == nil {
		t.Fatalf("unknown format accepted")
	}
}

const jitStub = `package jit

type Type struct{}

func (Type) Size() int                { return 0 }
func (Type) SetNames(...string) bool { return true }

type Val struct{}

type UncompiledFunction struct{}

func (*UncompiledFunction) NewValue(Type) Val               { return Val{} }
func (*UncompiledFunction) InsnAddressOf(Val) Val           { return Val{} }
func (*UncompiledFunction) InsnStoreRelative(Val, int, Val) {}

var TypeVoid, TypeVoidPtr Type

func Get[T any]() Type                      { return Type{} }
func Of[T any](*UncompiledFunction, T) Val  { return Val{} }
func Derived[T any](build func() Type) Type { return build() }
func NewPackedStruct(...Type) Type          { return Type{} }
`

func TestDeriveAndCheck(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	dir := t.TempDir()
	files := map[string]string{
		"go.mod":     "module jitkit\n\ngo 1.22\n",
		"jit/jit.go": jitStub,
		"shapes.go":  "package shapes\n\n//jit:derive packed\ntype Point struct{ X, Y int32 }\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := execute(t, "check", "-C", dir, "--no-cache", ".")
	if !errors.Is(err, errReported) || !strings.Contains(out, "stale: "+gen.DefaultOutput) {
		t.Fatalf("check before derive = %q, %v", out, err)
	}

	out, err = execute(t, "derive", "-C", dir, "--no-cache", "--ui", "off", ".")
	if err != nil {
		t.Fatalf("derive: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wrote "+gen.DefaultOutput+" (1 types)") {
		t.Fatalf("derive output = %q", out)
	}

	if out, err := execute(t, "check", "-C", dir, "--no-cache", "."); err != nil {
		t.Fatalf("check after derive = %q, %v", out, err)
	}
}
