package jitlang

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"reflect"
	"strings"

	"jitkit/internal/diag"
	"jitkit/internal/trace"
	"jitkit/jit"
)

// Filename is the file name reported in positions of snippets.
const Filename = "<jitlang>"

// Diagnostic is one problem found in a snippet.
type Diagnostic = diag.Diagnostic

// Error carries every diagnostic of a snippet that failed to translate.
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "jitlang: no diagnostics"
	case 1:
		return e.Diagnostics[0].Error()
	}
	var sb strings.Builder
	for i, d := range e.Diagnostics {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.Error())
	}
	return sb.String()
}

// Unwrap exposes the diagnostics to errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		out[i] = d
	}
	return out
}

// Env binds the names a snippet may use besides its parameters and
// locals.
type Env struct {
	// Funcs maps names to callees: a jit.Callable of the same context or
	// a Go func value.
	Funcs map[string]any
	// Consts maps names to Go values lowered with InsnOf.
	Consts map[string]any
}

func (e *Env) fn(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.Funcs[name]
	return v, ok
}

func (e *Env) konst(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.Consts[name]
	return v, ok
}

// Parse parses src as a function literal.
func Parse(fset *token.FileSet, src string) (*ast.FuncLit, error) {
	expr, err := parser.ParseExprFrom(fset, Filename, src, parser.SkipObjectResolution)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) {
			bag := diag.NewBag(0)
			for _, e := range list {
				bag.Add(diag.NewError(diag.GenParse, e.Pos, e.Msg))
			}
			return nil, &Error{Diagnostics: bag.Items()}
		}
		return nil, err
	}
	lit, ok := expr.(*ast.FuncLit)
	if !ok {
		d := diag.Errorf(diag.LangUnsupported, fset.Position(expr.Pos()), "expected a function literal, got %s", construct(expr))
		return nil, &Error{Diagnostics: []Diagnostic{d}}
	}
	return lit, nil
}

// Signature returns the Go function type declared by lit.
func Signature(fset *token.FileSet, lit *ast.FuncLit) (reflect.Type, error) {
	bag := diag.NewBag(0)
	rt := signature(fset, bag, lit.Type)
	if bag.HasErrors() {
		return nil, &Error{Diagnostics: bag.Items()}
	}
	return rt, nil
}

func signature(fset *token.FileSet, bag *diag.Bag, ft *ast.FuncType) reflect.Type {
	var in, out []reflect.Type
	for _, fl := range fieldTypes(ft.Params) {
		in = append(in, goType(fset, bag, fl))
	}
	results := fieldTypes(ft.Results)
	if len(results) > 1 {
		bag.Add(diag.NewError(diag.LangUnsupported, fset.Position(ft.Results.Pos()), "multiple results are not supported"))
	}
	for _, fl := range results {
		out = append(out, goType(fset, bag, fl))
	}
	if bag.HasErrors() {
		return nil
	}
	return reflect.FuncOf(in, out, false)
}

// fieldTypes expands a field list to one type expression per name.
func fieldTypes(fl *ast.FieldList) []ast.Expr {
	if fl == nil {
		return nil
	}
	var out []ast.Expr
	for _, f := range fl.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for range n {
			out = append(out, f.Type)
		}
	}
	return out
}

// Build parses src and translates it into a new function of ctx. The
// function is returned uncompiled so it can be called from other
// functions or compiled later.
func Build(ctx *jit.Context, src string, env *Env) (*jit.UncompiledFunction, error) {
	fset := token.NewFileSet()
	lit, err := Parse(fset, src)
	if err != nil {
		return nil, err
	}
	rt, err := Signature(fset, lit)
	if err != nil {
		return nil, err
	}
	sig, err := jit.TypeFor(rt)
	if err != nil {
		return nil, err
	}
	f := ctx.NewFunction(sig)
	if err := translate(fset, f, lit, env); err != nil {
		f.Abandon()
		return nil, err
	}
	return f, nil
}

// Compile is Build followed by Compile.
func Compile(ctx *jit.Context, src string, env *Env) (*jit.CompiledFunction, error) {
	f, err := Build(ctx, src, env)
	if err != nil {
		return nil, err
	}
	return f.Compile()
}

// Translate emits the body of the function literal src into f, which must
// take as many parameters as the literal declares. Parameter names bind
// to the parameters of f by position.
func Translate(f *jit.UncompiledFunction, src string, env *Env) error {
	fset := token.NewFileSet()
	lit, err := Parse(fset, src)
	if err != nil {
		return err
	}
	if n := len(fieldTypes(lit.Type.Params)); n != f.NumParams() {
		d := diag.Errorf(diag.LangArity, fset.Position(lit.Pos()), "literal declares %d parameters, %s takes %d", n, f.Name(), f.NumParams())
		return &Error{Diagnostics: []Diagnostic{d}}
	}
	return translate(fset, f, lit, env)
}

func translate(fset *token.FileSet, f *jit.UncompiledFunction, lit *ast.FuncLit, env *Env) error {
	tracer := f.Context().Tracer()
	span := trace.Begin(tracer, trace.ScopeCompile, "jitlang", 0)
	l := newLowerer(fset, f, env)
	l.lowerFunc(lit)
	span.End(fmt.Sprintf("%d diagnostics", l.bag.Len()))
	if l.bag.HasErrors() {
		l.bag.Dedup()
		l.bag.Sort()
		return &Error{Diagnostics: l.bag.Items()}
	}
	return nil
}
