package main

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"maps"
	"reflect"
	"slices"
	"strings"

	"jitkit/internal/observ"
	"jitkit/internal/trace"
	"jitkit/jit"
	"jitkit/jitlang"
)

// session compiles jitlang snippets into one context. Functions defined
// with define can be called by later snippets.
type session struct {
	ctx   *jit.Context
	env   *jitlang.Env
	dump  bool
	timer *observ.Timer
	// recent holds the latest trace events for :trace.
	recent *trace.RingTracer
}

func newSession(ctx *jit.Context) *session {
	return &session{ctx: ctx, env: &jitlang.Env{Funcs: make(map[string]any)}}
}

// eval runs src, which is a function literal optionally followed by a
// call with constant arguments:
//
//	func() int32 { return 6 * 7 }
//	func(a, b int32) int32 { return a + b }(3, 4)
func (s *session) eval(src string) (string, error) {
	fset := token.NewFileSet()
	expr, err := parser.ParseExprFrom(fset, jitlang.Filename, src, parser.SkipObjectResolution)
	if err != nil {
		// reparse for the positioned diagnostics
		_, perr := jitlang.Parse(token.NewFileSet(), src)
		if perr == nil {
			perr = err
		}
		return "", perr
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return s.run(src, nil)
	}
	lit, ok := call.Fun.(*ast.FuncLit)
	if !ok || call.Ellipsis.IsValid() {
		return "", fmt.Errorf("expected a function literal or a call of one")
	}
	args := make([]string, len(call.Args))
	for i, a := range call.Args {
		args[i] = slice(fset, src, a)
	}
	return s.run(slice(fset, src, lit), args)
}

func slice(fset *token.FileSet, src string, n ast.Node) string {
	return src[fset.Position(n.Pos()).Offset:fset.Position(n.End()).Offset]
}

// run compiles the literal lit and applies it to the constant expressions
// args. The result is formatted with fmt; void functions yield "".
func (s *session) run(lit string, args []string) (string, error) {
	fset := token.NewFileSet()
	parsed, err := jitlang.Parse(fset, lit)
	if err != nil {
		return "", err
	}
	rt, err := jitlang.Signature(fset, parsed)
	if err != nil {
		return "", err
	}
	if rt.NumIn() != len(args) {
		return "", fmt.Errorf("function takes %d arguments, got %d", rt.NumIn(), len(args))
	}
	vals := make([]any, len(args))
	for i, a := range args {
		v, err := constArg(a, rt.In(i))
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		vals[i] = v.Interface()
	}

	end := s.timer.Begin("compile")
	cf, err := jitlang.Compile(s.ctx, lit, s.env)
	if err != nil {
		return "", err
	}
	end("")
	defer s.timer.Begin("run")("")
	var listing string
	if s.dump {
		listing = cf.String() + "\n"
	}
	if rt.NumOut() == 0 {
		return listing, cf.Apply(nil, vals...)
	}
	ret := reflect.New(rt.Out(0))
	if err := cf.Apply(ret.Interface(), vals...); err != nil {
		return listing, err
	}
	return listing + fmt.Sprint(ret.Elem().Interface()), nil
}

// define compiles lit and binds it to name for later snippets.
func (s *session) define(name, lit string) error {
	if !token.IsIdentifier(name) {
		return fmt.Errorf("%q is not an identifier", name)
	}
	cf, err := jitlang.Compile(s.ctx, lit, s.env)
	if err != nil {
		return err
	}
	s.env.Funcs[name] = cf
	return nil
}

// names returns the defined functions in order.
func (s *session) names() []string {
	return slices.Sorted(maps.Keys(s.env.Funcs))
}

var errNotConstant = errors.New("not a constant expression")

// constArg evaluates the constant expression src as a value of type rt.
func constArg(src string, rt reflect.Type) (reflect.Value, error) {
	tv, err := types.Eval(token.NewFileSet(), nil, token.NoPos, src)
	if err != nil {
		return reflect.Value{}, err
	}
	if tv.Value == nil {
		return reflect.Value{}, fmt.Errorf("%s: %w", src, errNotConstant)
	}
	v := reflect.New(rt).Elem()
	c := tv.Value
	switch rt.Kind() {
	case reflect.Bool:
		if c.Kind() != constant.Bool {
			return reflect.Value{}, fmt.Errorf("%s is not a bool", src)
		}
		v.SetBool(constant.BoolVal(c))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, exact := constant.Int64Val(constant.ToInt(c))
		if !exact || v.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%s cannot be represented as %s", src, rt)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, exact := constant.Uint64Val(constant.ToInt(c))
		if !exact || v.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%s cannot be represented as %s", src, rt)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f := constant.ToFloat(c)
		if f.Kind() != constant.Float && f.Kind() != constant.Int {
			return reflect.Value{}, fmt.Errorf("%s is not a number", src)
		}
		x, _ := constant.Float64Val(f)
		v.SetFloat(x)
	default:
		return reflect.Value{}, fmt.Errorf("cannot pass %s arguments", rt)
	}
	return v, nil
}

// printResult writes a non-empty result of eval.
func printResult(w io.Writer, prefix, result string) {
	if result == "" {
		return
	}
	result = strings.TrimSuffix(result, "\n")
	fmt.Fprintln(w, prefix+result)
}
