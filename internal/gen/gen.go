// Package gen implements jitgen derive: it reads Go packages, finds the
// declarations marked with //jit:derive and writes JITType and Compile
// methods for them into a generated file next to the sources.
//
//	//jit:derive packed
//	type Point struct {
//		X, Y int32
//	}
//
//	//jit:derive
//	type Color uint8
//
// Records must be packed: their descriptor is a packed struct of the
// field descriptors and Compile stores every field at the running sum of
// the sizes before it. Enums delegate to their representation type.
package gen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"jitkit/internal/diag"
	"jitkit/internal/trace"
)

// DefaultOutput is the name of the generated file in every package.
const DefaultOutput = "jit_derive.go"

// Options configures Run.
type Options struct {
	// Dir is the directory patterns are resolved in; empty means the
	// working directory.
	Dir string
	// Output is the file name written into each package directory.
	Output string
	// JITPath is the import path of package jit.
	JITPath string
	// Jobs bounds the number of packages processed at once.
	Jobs int
	// Cache, when set, skips loading packages whose sources are unchanged.
	Cache *Cache
	// Check reports diagnostics without writing anything.
	Check bool

	Sink ProgressSink
	// Tracer receives the derive spans; nil means the tracer of the
	// context passed to Run.
	Tracer trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.JITPath == "" {
		o.JITPath = DefaultJITPath
	}
	if o.Jobs <= 0 {
		o.Jobs = runtime.GOMAXPROCS(0)
	}
	return o
}

// PackageResult describes what happened to one package.
type PackageResult struct {
	Path string
	Dir  string
	// Output is the path of the generated file.
	Output string
	// Items are the names of the derived declarations.
	Items  []string
	Source []byte

	Cached  bool
	Written bool
	Removed bool

	Diagnostics []diag.Diagnostic
}

// Result is the outcome of Run.
type Result struct {
	Packages []PackageResult
	// Bag holds the diagnostics of every package, sorted.
	Bag *diag.Bag
}

// HasErrors reports whether any package failed.
func (r *Result) HasErrors() bool { return r.Bag.HasErrors() }

// Written returns the paths of the files written or removed.
func (r *Result) Written() []string {
	var out []string
	for _, p := range r.Packages {
		if p.Written || p.Removed {
			out = append(out, p.Output)
		}
	}
	return out
}

const (
	listMode = packages.NeedName | packages.NeedFiles
	loadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
		packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports
)

// Run derives the packages matching patterns. Problems in the sources are
// returned as diagnostics in the Result; the error reports failures of the
// tool itself. Nothing is written when any package has an error.
func Run(ctx context.Context, patterns []string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	if opts.Tracer != nil {
		ctx = trace.WithTracer(ctx, opts.Tracer)
	}
	span, ctx := trace.Start(ctx, trace.ScopeTool, "derive")

	listed, err := packages.Load(&packages.Config{Context: ctx, Dir: opts.Dir, Mode: listMode}, patterns...)
	if err != nil {
		span.End("list failed")
		return nil, fmt.Errorf("list packages: %w", err)
	}
	for _, p := range listed {
		emit(opts.Sink, Event{Package: p.PkgPath, Stage: StageLoad, Status: StatusQueued})
	}

	results := make([]PackageResult, len(listed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(min(opts.Jobs, len(listed)), 1))
	for i, p := range listed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := generate(gctx, opts, p)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.End("canceled")
		return nil, err
	}

	res := &Result{Packages: results, Bag: diag.NewBag(0)}
	for _, r := range results {
		for _, d := range r.Diagnostics {
			res.Bag.Add(d)
		}
	}
	res.Bag.Sort()

	if !opts.Check && !res.HasErrors() {
		for i := range res.Packages {
			r := &res.Packages[i]
			start := time.Now()
			if err := write(r); err != nil {
				emit(opts.Sink, Event{Package: r.Path, Stage: StageWrite, Status: StatusError, Err: err})
				span.End("write failed")
				return res, err
			}
			status := StatusSkipped
			if r.Written || r.Removed {
				status = StatusDone
			}
			emit(opts.Sink, Event{Package: r.Path, Stage: StageWrite, Status: status, Elapsed: time.Since(start)})
		}
	}
	span.End(fmt.Sprintf("%d packages, %d diagnostics", len(results), res.Bag.Len()))
	return res, nil
}

func generate(ctx context.Context, opts Options, listed *packages.Package) (PackageResult, error) {
	r := PackageResult{Path: listed.PkgPath}
	span, ctx := trace.Start(ctx, trace.ScopeTool, "derive "+listed.PkgPath)
	defer func() { span.End(fmt.Sprintf("%d items, cached=%v", len(r.Items), r.Cached)) }()

	start := time.Now()
	fail := func(stage Stage, ds []diag.Diagnostic) (PackageResult, error) {
		r.Diagnostics = ds
		emit(opts.Sink, Event{Package: r.Path, Stage: stage, Status: StatusError, Err: diagError(ds), Elapsed: time.Since(start)})
		return r, nil
	}

	if len(listed.GoFiles) > 0 {
		r.Dir = filepath.Dir(listed.GoFiles[0])
		r.Output = filepath.Join(r.Dir, opts.Output)
	}
	if ds := loadDiagnostics(listed.Errors, r.Output); len(ds) > 0 {
		return fail(StageLoad, ds)
	}
	if len(listed.GoFiles) == 0 {
		emit(opts.Sink, Event{Package: r.Path, Stage: StageLoad, Status: StatusSkipped})
		return r, nil
	}

	var sources []string
	for _, f := range listed.GoFiles {
		if f != r.Output {
			sources = append(sources, f)
		}
	}

	var key Digest
	if opts.Cache != nil {
		var err error
		if key, err = Hash(sources, opts.JITPath, opts.Output); err != nil {
			return fail(StageLoad, []diag.Diagnostic{diag.Errorf(diag.GenRead, token.Position{Filename: r.Dir}, "%v", err)})
		}
		var p Payload
		if ok, err := opts.Cache.Get(key, &p); err == nil && ok {
			r.Items, r.Source, r.Cached = p.Items, p.Source, true
			emit(opts.Sink, Event{Package: r.Path, Stage: StageEmit, Status: StatusCached, Elapsed: time.Since(start)})
			return r, nil
		}
	}

	emit(opts.Sink, Event{Package: r.Path, Stage: StageLoad, Status: StatusWorking})
	cfg := &packages.Config{Context: ctx, Dir: r.Dir, Mode: loadMode}
	loaded, err := packages.Load(cfg, ".")
	if err != nil {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}
		return fail(StageLoad, []diag.Diagnostic{diag.Errorf(diag.GenPackageLoad, token.Position{Filename: r.Dir}, "%v", err)})
	}
	if len(loaded) != 1 {
		return fail(StageLoad, []diag.Diagnostic{diag.Errorf(diag.GenPackageLoad, token.Position{Filename: r.Dir}, "expected one package, found %d", len(loaded))})
	}
	lp := loaded[0]
	if ds := loadDiagnostics(lp.Errors, r.Output); len(ds) > 0 {
		return fail(StageLoad, ds)
	}

	emit(opts.Sink, Event{Package: r.Path, Stage: StageAnalyze, Status: StatusWorking})
	pkg := &Package{Name: lp.Name, Path: lp.PkgPath, Fset: lp.Fset, Types: lp.Types, Info: lp.TypesInfo}
	for _, f := range lp.Syntax {
		if lp.Fset.Position(f.Package).Filename != r.Output {
			pkg.Files = append(pkg.Files, f)
		}
	}
	items, bag := Analyze(pkg, opts.JITPath)
	if bag.HasErrors() {
		return fail(StageAnalyze, bag.Items())
	}
	for _, it := range items {
		r.Items = append(r.Items, it.Name)
	}

	if len(items) > 0 {
		emit(opts.Sink, Event{Package: r.Path, Stage: StageEmit, Status: StatusWorking})
		src, err := Emit(lp.Types, items, opts.JITPath, r.Output)
		if err != nil {
			return r, err
		}
		r.Source = src
	}
	if opts.Cache != nil {
		if err := opts.Cache.Put(key, &Payload{Package: r.Path, Items: r.Items, Source: r.Source}); err != nil {
			trace.Point(trace.FromContext(ctx), trace.ScopeTool, "cache", err.Error())
		}
	}
	emit(opts.Sink, Event{Package: r.Path, Stage: StageEmit, Status: StatusDone, Elapsed: time.Since(start)})
	return r, nil
}

// write brings the generated file of r up to date: it is written when
// its content changes and removed when nothing is derived any more.
func write(r *PackageResult) error {
	if r.Output == "" {
		return nil
	}
	old, err := os.ReadFile(r.Output)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if len(r.Source) == 0 {
		if err == nil && bytes.HasPrefix(old, []byte(Header)) {
			if err := os.Remove(r.Output); err != nil {
				return err
			}
			r.Removed = true
		}
		return nil
	}
	if err == nil && bytes.Equal(old, r.Source) {
		return nil
	}
	if err := os.WriteFile(r.Output, r.Source, 0o644); err != nil {
		return err
	}
	r.Written = true
	return nil
}

// Stale reports whether the generated file on disk differs from what
// write would leave there.
func (r *PackageResult) Stale() (bool, error) {
	if r.Output == "" {
		return false, nil
	}
	old, err := os.ReadFile(r.Output)
	if errors.Is(err, os.ErrNotExist) {
		return len(r.Source) > 0, nil
	}
	if err != nil {
		return false, err
	}
	if len(r.Source) == 0 {
		return bytes.HasPrefix(old, []byte(Header)), nil
	}
	return !bytes.Equal(old, r.Source), nil
}

func diagError(ds []diag.Diagnostic) error {
	if len(ds) == 0 {
		return nil
	}
	if len(ds) == 1 {
		return ds[0]
	}
	return fmt.Errorf("%w (and %d more)", ds[0], len(ds)-1)
}

// loadDiagnostics converts package errors, leaving out those located in
// the generated file skip.
func loadDiagnostics(errs []packages.Error, skip string) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, e := range errs {
		pos := parsePos(e.Pos)
		if skip != "" && (pos.Filename == skip || !filepath.IsAbs(pos.Filename) && filepath.Base(pos.Filename) == filepath.Base(skip)) {
			continue
		}
		code := diag.GenPackageLoad
		if e.Kind == packages.ParseError {
			code = diag.GenParse
		}
		out = append(out, diag.NewError(code, pos, e.Msg))
	}
	return out
}

// parsePos parses "file:line:col" or "file:line" as printed by go list
// and the type checker.
func parsePos(s string) token.Position {
	if s == "" || s == "-" {
		return token.Position{}
	}
	var nums []int
	rest := s
	for range 2 {
		i := strings.LastIndexByte(rest, ':')
		if i < 0 {
			break
		}
		n, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		rest = rest[:i]
	}
	p := token.Position{Filename: rest}
	if len(nums) > 0 {
		p.Line = nums[0]
	}
	if len(nums) > 1 {
		p.Column = nums[1]
	}
	return p
}
