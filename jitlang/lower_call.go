package jitlang

import (
	"go/ast"
	"go/constant"
	"go/types"
	"reflect"

	"jitkit/internal/diag"
	"jitkit/jit"
)

type (
	unaryInsn  func(*jit.UncompiledFunction, jit.Val) jit.Val
	binaryInsn func(*jit.UncompiledFunction, jit.Val, jit.Val) jit.Val
)

var mathUnary = map[string]unaryInsn{
	"Sqrt":        (*jit.UncompiledFunction).InsnSqrt,
	"Sin":         (*jit.UncompiledFunction).InsnSin,
	"Cos":         (*jit.UncompiledFunction).InsnCos,
	"Tan":         (*jit.UncompiledFunction).InsnTan,
	"Asin":        (*jit.UncompiledFunction).InsnAsin,
	"Acos":        (*jit.UncompiledFunction).InsnAcos,
	"Atan":        (*jit.UncompiledFunction).InsnAtan,
	"Sinh":        (*jit.UncompiledFunction).InsnSinh,
	"Cosh":        (*jit.UncompiledFunction).InsnCosh,
	"Tanh":        (*jit.UncompiledFunction).InsnTanh,
	"Exp":         (*jit.UncompiledFunction).InsnExp,
	"Log":         (*jit.UncompiledFunction).InsnLog,
	"Log10":       (*jit.UncompiledFunction).InsnLog10,
	"Floor":       (*jit.UncompiledFunction).InsnFloor,
	"Ceil":        (*jit.UncompiledFunction).InsnCeil,
	"Trunc":       (*jit.UncompiledFunction).InsnTrunc,
	"Round":       (*jit.UncompiledFunction).InsnRound,
	"RoundToEven": (*jit.UncompiledFunction).InsnRint,
	"Abs":         (*jit.UncompiledFunction).InsnAbs,
	"IsNaN":       (*jit.UncompiledFunction).InsnIsNaN,
}

var mathBinary = map[string]binaryInsn{
	"Atan2": (*jit.UncompiledFunction).InsnAtan2,
	"Pow":   (*jit.UncompiledFunction).InsnPow,
	"Min":   (*jit.UncompiledFunction).InsnMin,
	"Max":   (*jit.UncompiledFunction).InsnMax,
}

// builtins lists the Go builtins that have no lowering.
var builtins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"new": true, "panic": true, "print": true, "println": true, "real": true,
	"recover": true,
}

// typeOf resolves e as a type unless a variable shadows its name.
func (l *lowerer) typeOf(e ast.Expr) (jit.Type, bool) {
	if id, ok := ast.Unparen(e).(*ast.Ident); ok {
		if _, shadowed := l.scope.lookup(id.Name); shadowed {
			return jit.Type{}, false
		}
	}
	rt, ok := typeExpr(e)
	if !ok {
		return jit.Type{}, false
	}
	t, err := jit.TypeFor(rt)
	return t, err == nil
}

func (l *lowerer) arity(call *ast.CallExpr, name string, want int) bool {
	switch n := len(call.Args); {
	case n < want:
		l.errorf(call, diag.LangArity, "not enough arguments in call to %s", name)
	case n > want:
		l.errorf(call, diag.LangArity, "too many arguments in call to %s", name)
	default:
		return true
	}
	return false
}

// args lowers the arguments of call with the parameter types as hints.
func (l *lowerer) args(call *ast.CallExpr, params []jit.Type) ([]jit.Val, bool) {
	out := make([]jit.Val, len(call.Args))
	ok := true
	for i, a := range call.Args {
		var hint jit.Type
		if i < len(params) {
			hint = params[i]
		}
		out[i] = l.expr(a, hint)
		ok = ok && out[i].IsValid()
	}
	return out, ok
}

func (l *lowerer) call(call *ast.CallExpr, hint jit.Type) jit.Val {
	if call.Ellipsis.IsValid() {
		l.errorf(call, diag.LangUnsupported, "variadic call is not supported")
		return jit.Val{}
	}
	fun := ast.Unparen(call.Fun)
	if t, ok := l.typeOf(fun); ok {
		return l.conversion(call, t)
	}
	switch fn := fun.(type) {
	case *ast.Ident:
		if _, local := l.scope.lookup(fn.Name); local {
			l.errorf(call, diag.LangUnsupported, "calling %s, a local value, is not supported", fn.Name)
			return jit.Val{}
		}
		if callee, ok := l.env.fn(fn.Name); ok {
			return l.callEnv(call, fn.Name, callee)
		}
		switch {
		case fn.Name == "min" || fn.Name == "max":
			return l.minMax(call, fn.Name, hint)
		case builtins[fn.Name]:
			l.errorf(call, diag.LangUnsupported, "builtin %s is not supported", fn.Name)
		default:
			l.errorf(fn, diag.LangUnknownName, "undefined: %s", fn.Name)
		}
		return jit.Val{}
	case *ast.SelectorExpr:
		if l.pkg(fn.X, "math") {
			return l.mathCall(call, fn.Sel.Name)
		}
	}
	l.unsupported(call.Fun)
	return jit.Val{}
}

func (l *lowerer) conversion(call *ast.CallExpr, t jit.Type) jit.Val {
	name := types.ExprString(call.Fun)
	if !l.arity(call, name, 1) {
		return jit.Val{}
	}
	arg := call.Args[0]
	var v jit.Val
	if cv, ok := l.constant(arg); ok && isNumeric(t) {
		v = l.typedConst(arg, cv, t)
	} else {
		v = l.expr(arg, jit.Type{})
	}
	if !v.IsValid() {
		return jit.Val{}
	}
	if !isScalar(v.Type()) {
		l.errorf(call, diag.LangBadType, "cannot convert %s (%s) to type %s", types.ExprString(arg), l.describe(v), name)
		return jit.Val{}
	}
	if t.IsBool() {
		v = l.f.InsnToBool(v)
	}
	if v.Type() == t {
		return v
	}
	return l.f.InsnConvert(v, t, false)
}

// float lowers an argument of a math function.
func (l *lowerer) float(e ast.Expr, fn string) jit.Val {
	v := l.expr(e, jit.TypeFloat64)
	if v.IsValid() && !(isNumeric(v.Type()) && v.Type().IsFloat()) {
		l.errorf(e, diag.LangBadType, "cannot use %s (%s) as float64 value in argument to math.%s", types.ExprString(e), l.describe(v), fn)
		return jit.Val{}
	}
	return v
}

func (l *lowerer) mathCall(call *ast.CallExpr, name string) jit.Val {
	full := "math." + name
	if insn, ok := mathUnary[name]; ok {
		if !l.arity(call, full, 1) {
			return jit.Val{}
		}
		x := l.float(call.Args[0], name)
		if !x.IsValid() {
			return jit.Val{}
		}
		return insn(l.f, x)
	}
	if insn, ok := mathBinary[name]; ok {
		if !l.arity(call, full, 2) {
			return jit.Val{}
		}
		x, y := l.float(call.Args[0], name), l.float(call.Args[1], name)
		if !x.IsValid() || !y.IsValid() {
			return jit.Val{}
		}
		return insn(l.f, x, y)
	}
	if name == "IsInf" {
		return l.isInf(call)
	}
	l.errorf(call.Fun, diag.LangUnsupported, "%s is not supported", full)
	return jit.Val{}
}

// isInf lowers math.IsInf(x, sign) for a constant sign.
func (l *lowerer) isInf(call *ast.CallExpr) jit.Val {
	if !l.arity(call, "math.IsInf", 2) {
		return jit.Val{}
	}
	sign, ok := l.constant(call.Args[1])
	if !ok || sign.Kind() != constant.Int {
		l.errorf(call.Args[1], diag.LangUnsupported, "math.IsInf with a non-constant sign is not supported")
		return jit.Val{}
	}
	x := l.float(call.Args[0], "IsInf")
	if !x.IsValid() {
		return jit.Val{}
	}
	inf := l.f.InsnIsInf(x)
	zero := l.typedConst(call, constant.MakeInt64(0), x.Type())
	switch constant.Sign(sign) {
	case 1:
		return l.f.InsnAnd(inf, l.f.InsnGt(x, zero))
	case -1:
		return l.f.InsnAnd(inf, l.f.InsnLt(x, zero))
	}
	return inf
}

func (l *lowerer) minMax(call *ast.CallExpr, name string, hint jit.Type) jit.Val {
	if len(call.Args) == 0 {
		l.errorf(call, diag.LangArity, "not enough arguments in call to %s", name)
		return jit.Val{}
	}
	// typed arguments first so untyped constants take their type
	vals := make([]jit.Val, len(call.Args))
	consts := make([]constant.Value, len(call.Args))
	ok := true
	for i, a := range call.Args {
		if cv, isConst := l.constant(a); isConst {
			consts[i] = cv
			continue
		}
		vals[i] = l.expr(a, hint)
		if !vals[i].IsValid() {
			ok = false
		} else if !hint.IsValid() {
			hint = vals[i].Type()
		}
	}
	for i, cv := range consts {
		if cv != nil {
			vals[i] = l.typedConst(call.Args[i], cv, hint)
			ok = ok && vals[i].IsValid()
		}
	}
	if !ok {
		return jit.Val{}
	}
	acc := vals[0]
	for i, v := range vals {
		if !isNumeric(v.Type()) {
			l.errorf(call.Args[i], diag.LangBadType, "invalid argument: %s (%s) cannot be ordered", types.ExprString(call.Args[i]), l.describe(v))
			return jit.Val{}
		}
		if i == 0 {
			continue
		}
		if name == "min" {
			acc = l.f.InsnMin(acc, v)
		} else {
			acc = l.f.InsnMax(acc, v)
		}
	}
	return acc
}

// callEnv calls a function bound in the environment.
func (l *lowerer) callEnv(call *ast.CallExpr, name string, callee any) jit.Val {
	var sig jit.Type
	switch c := callee.(type) {
	case interface {
		jit.Callable
		Signature() jit.Type
	}:
		sig = c.Signature()
	default:
		rt := reflect.TypeOf(callee)
		if rt == nil || rt.Kind() != reflect.Func {
			l.errorf(call.Fun, diag.LangBadType, "%s is bound to %T, not a function", name, callee)
			return jit.Val{}
		}
		if rt.IsVariadic() {
			l.errorf(call.Fun, diag.LangUnsupported, "calling variadic %s is not supported", name)
			return jit.Val{}
		}
		var err error
		if sig, err = jit.TypeFor(rt); err != nil {
			l.errorf(call.Fun, diag.LangBadType, "%s: %v", name, err)
			return jit.Val{}
		}
	}
	params := sig.Params()
	if !l.arity(call, name, len(params)) {
		return jit.Val{}
	}
	args, ok := l.args(call, params)
	if !ok {
		return jit.Val{}
	}
	if c, ok := callee.(jit.Callable); ok {
		return l.f.InsnCall(name, c, 0, args...)
	}
	return l.f.InsnCallFunc(name, callee, 0, args...)
}
