package gen

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"jitkit/internal/diag"
)

func TestCache(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	src := filepath.Join(dir, "a.go")
	if err := os.WriteFile(src, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	key, err := Hash([]string{src}, DefaultJITPath)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	var p Payload
	if ok, err := c.Get(key, &p); ok || err != nil {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}
	in := &Payload{Package: "a", Items: []string{"Point"}, Source: []byte("package a\n")}
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := c.Get(key, &p); !ok || err != nil {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if p.Package != "a" || len(p.Items) != 1 || p.Items[0] != "Point" || string(p.Source) != "package a\n" || p.Schema != cacheSchemaVersion {
		t.Fatalf("payload = %+v", p)
	}

	if err := os.WriteFile(src, []byte("package a\n\nvar x int\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := Hash([]string{src}, DefaultJITPath)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if changed == key {
		t.Fatalf("digest did not change with the source")
	}
	if other, _ := Hash([]string{src}, "other/jit"); other == changed {
		t.Fatalf("digest ignores settings")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := c.Get(key, &p); ok {
		t.Fatalf("entry survived Clear")
	}
}

func TestCacheConcurrentPut(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Digest{byte(i % 2)}
			if err := c.Put(key, &Payload{Package: "p"}); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()
	var p Payload
	if ok, err := c.Get(Digest{1}, &p); !ok || err != nil {
		t.Fatalf("Get = %v, %v", ok, err)
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, DefaultOutput)

	r := &PackageResult{Output: out, Source: []byte(Header + "\n\npackage a\n")}
	if err := write(r); err != nil || !r.Written {
		t.Fatalf("first write: written=%v err=%v", r.Written, err)
	}
	r = &PackageResult{Output: out, Source: []byte(Header + "\n\npackage a\n")}
	if err := write(r); err != nil || r.Written {
		t.Fatalf("unchanged write: written=%v err=%v", r.Written, err)
	}
	r = &PackageResult{Output: out}
	if err := write(r); err != nil || !r.Removed {
		t.Fatalf("remove: removed=%v err=%v", r.Removed, err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("generated file still exists: %v", err)
	}

	// hand-written files are never removed
	if err := os.WriteFile(out, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r = &PackageResult{Output: out}
	if err := write(r); err != nil || r.Removed {
		t.Fatalf("removed a hand-written file: removed=%v err=%v", r.Removed, err)
	}
}

// jitStub stands in for package jit so generated files type-check inside
// the test module.
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

func Get[T any]() Type                          { return Type{} }
func Of[T any](*UncompiledFunction, T) Val      { return Val{} }
func Derived[T any](build func() Type) Type     { return build() }
func NewPackedStruct(...Type) Type              { return Type{} }
`

// writeModule lays out a module named jitkit holding files and a stub of
// package jit.
func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	dir := t.TempDir()
	files["go.mod"] = "module jitkit\n\ngo 1.22\n"
	files["jit/jit.go"] = jitStub
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRun(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"shapes.go":      "package shapes\n\n//jit:derive packed\ntype Point struct {\n\tX, Y int32\n}\n\n//jit:derive\ntype Color uint8\n",
		"other/other.go": "package other\n\nfunc F() int { return 1 }\n",
	})
	cache, err := OpenCache(filepath.Join(dir, ".jitkit", "cache"))
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu     sync.Mutex
		events []Event
	)
	sink := SinkFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	res, err := Run(context.Background(), []string{"./..."}, Options{Dir: dir, Cache: cache, Jobs: 2, Sink: sink})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasErrors() {
		t.Fatalf("diagnostics: %s", diag.Short(res.Bag.Items(), dir, false))
	}
	out := filepath.Join(dir, DefaultOutput)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("generated file: %v", err)
	}
	for _, want := range []string{Header, "func (Point) JITType() jit.Type {", "func (v Color) Compile(", `"jitkit/jit"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("generated file lacks %q", want)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "other", DefaultOutput)); !os.IsNotExist(err) {
		t.Errorf("file generated for a package without directives")
	}
	if got := res.Written(); len(got) != 1 || got[0] != out {
		t.Errorf("Written() = %v", got)
	}
	sawDone := false
	for _, e := range events {
		if e.Package == "jitkit" && e.Stage == StageWrite && e.Status == StatusDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Errorf("no write event in %v", events)
	}

	again, err := Run(context.Background(), []string{"."}, Options{Dir: dir, Cache: cache})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(again.Packages) != 1 || !again.Packages[0].Cached || again.Packages[0].Written {
		t.Fatalf("second run = %+v", again.Packages)
	}

	// without the cache the package is loaded with its generated file
	fresh, err := Run(context.Background(), []string{"."}, Options{Dir: dir})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if fresh.HasErrors() {
		t.Fatalf("diagnostics: %s", diag.Short(fresh.Bag.Items(), dir, false))
	}
	if p := fresh.Packages[0]; p.Cached || p.Written || len(p.Items) != 2 {
		t.Fatalf("third run = %+v", p)
	}
}

func TestRunWritesNothingOnError(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"good/good.go": "package good\n\n//jit:derive packed\ntype Point struct{ X int32 }\n",
		"bad/bad.go":   "package bad\n\n//jit:derive\ntype Loose struct{ X int32 }\n",
	})
	res, err := Run(context.Background(), []string{"./..."}, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.HasErrors() {
		t.Fatalf("no diagnostics")
	}
	d := res.Bag.Items()[0]
	if d.Code != diag.GenNotPacked || filepath.Base(d.Pos.Filename) != "bad.go" || d.Pos.Line != 3 {
		t.Fatalf("diagnostic = %v", d)
	}
	if _, err := os.Stat(filepath.Join(dir, "good", DefaultOutput)); !os.IsNotExist(err) {
		t.Fatalf("good package was written despite errors")
	}
}

func TestRunCheck(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"shapes.go": "package shapes\n\n//jit:derive packed\ntype Point struct{ X int32 }\n",
	})
	res, err := Run(context.Background(), nil, Options{Dir: dir, Check: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasErrors() || len(res.Packages) != 1 || len(res.Packages[0].Source) == 0 {
		t.Fatalf("result = %+v", res.Packages)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultOutput)); !os.IsNotExist(err) {
		t.Fatalf("check mode wrote a file")
	}
	if stale, err := res.Packages[0].Stale(); err != nil || !stale {
		t.Fatalf("Stale before generation = %v, %v", stale, err)
	}

	if _, err := Run(context.Background(), nil, Options{Dir: dir}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stale, err := res.Packages[0].Stale(); err != nil || stale {
		t.Fatalf("Stale after generation = %v, %v", stale, err)
	}
}
