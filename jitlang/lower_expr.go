package jitlang

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"math"
	"reflect"
	"unsafe"

	"jitkit/internal/diag"
	"jitkit/jit"
)

// expr lowers e. hint is the type an untyped constant in e takes; the
// zero Type selects the Go default type. An invalid Val means e was
// reported.
func (l *lowerer) expr(e ast.Expr, hint jit.Type) jit.Val {
	if cv, ok := l.constant(e); ok {
		return l.typedConst(e, cv, hint)
	}
	switch x := e.(type) {
	case *ast.ParenExpr:
		return l.expr(x.X, hint)
	case *ast.Ident:
		return l.ident(x)
	case *ast.UnaryExpr:
		return l.unary(x, hint)
	case *ast.StarExpr:
		p := l.expr(x.X, jit.Type{})
		ref, ok := l.pointee(x, p)
		if !ok {
			return jit.Val{}
		}
		return l.f.InsnLoadRelative(p, 0, ref)
	case *ast.BinaryExpr:
		return l.binary(x, hint)
	case *ast.CallExpr:
		v := l.call(x, hint)
		if v.IsValid() && isVoid(v.Type()) {
			l.errorf(x, diag.LangMissingValue, "%s (no value) used as value", types.ExprString(x))
			return jit.Val{}
		}
		return v
	}
	l.unsupported(e)
	return jit.Val{}
}

// untypedConsts are the predeclared constants.
var untypedConsts = map[string]constant.Value{
	"true":  constant.MakeBool(true),
	"false": constant.MakeBool(false),
}

// mathConsts are the math package constants a snippet may name.
var mathConsts = map[string]constant.Value{
	"Pi":        constant.MakeFloat64(math.Pi),
	"E":         constant.MakeFloat64(math.E),
	"Phi":       constant.MakeFloat64(math.Phi),
	"Sqrt2":     constant.MakeFloat64(math.Sqrt2),
	"Ln2":       constant.MakeFloat64(math.Ln2),
	"Ln10":      constant.MakeFloat64(math.Ln10),
	"MaxInt8":   constant.MakeInt64(math.MaxInt8),
	"MinInt8":   constant.MakeInt64(math.MinInt8),
	"MaxInt16":  constant.MakeInt64(math.MaxInt16),
	"MinInt16":  constant.MakeInt64(math.MinInt16),
	"MaxInt32":  constant.MakeInt64(math.MaxInt32),
	"MinInt32":  constant.MakeInt64(math.MinInt32),
	"MaxInt64":  constant.MakeInt64(math.MaxInt64),
	"MinInt64":  constant.MakeInt64(math.MinInt64),
	"MaxUint8":  constant.MakeUint64(math.MaxUint8),
	"MaxUint16": constant.MakeUint64(math.MaxUint16),
	"MaxUint32": constant.MakeUint64(math.MaxUint32),
	"MaxUint64": constant.MakeUint64(math.MaxUint64),
}

// pkg reports whether e names the package name, not shadowed by a
// variable.
func (l *lowerer) pkg(e ast.Expr, name string) bool {
	id, ok := e.(*ast.Ident)
	if !ok || id.Name != name {
		return false
	}
	_, shadowed := l.scope.lookup(name)
	return !shadowed
}

func category(v constant.Value) int {
	switch v.Kind() {
	case constant.Bool:
		return 1
	case constant.String:
		return 2
	case constant.Int, constant.Float:
		return 3
	}
	return 0
}

func isComparison(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	}
	return false
}

// constant folds e when it is an untyped constant expression.
func (l *lowerer) constant(e ast.Expr) (constant.Value, bool) {
	switch x := e.(type) {
	case *ast.BasicLit:
		if x.Kind == token.IMAG {
			return nil, false
		}
		v := constant.MakeFromLiteral(x.Value, x.Kind, 0)
		return v, v.Kind() != constant.Unknown
	case *ast.Ident:
		v, ok := untypedConsts[x.Name]
		if !ok {
			return nil, false
		}
		if _, shadowed := l.scope.lookup(x.Name); shadowed {
			return nil, false
		}
		return v, true
	case *ast.SelectorExpr:
		if l.pkg(x.X, "math") {
			v, ok := mathConsts[x.Sel.Name]
			return v, ok
		}
	case *ast.ParenExpr:
		return l.constant(x.X)
	case *ast.UnaryExpr:
		v, ok := l.constant(x.X)
		if !ok {
			return nil, false
		}
		switch {
		case (x.Op == token.SUB || x.Op == token.ADD) && category(v) == 3,
			x.Op == token.XOR && v.Kind() == constant.Int,
			x.Op == token.NOT && v.Kind() == constant.Bool:
			return constant.UnaryOp(x.Op, v, 0), true
		}
	case *ast.BinaryExpr:
		a, ok := l.constant(x.X)
		if !ok {
			return nil, false
		}
		b, ok := l.constant(x.Y)
		if !ok {
			return nil, false
		}
		return foldBinary(x.Op, a, b)
	}
	return nil, false
}

func foldBinary(op token.Token, a, b constant.Value) (constant.Value, bool) {
	if op == token.SHL || op == token.SHR {
		n, exact := constant.Uint64Val(constant.ToInt(b))
		if a.Kind() != constant.Int || !exact || n > 1<<16 {
			return nil, false
		}
		return constant.Shift(a, op, uint(n)), true
	}
	ca := category(a)
	if ca == 0 || ca != category(b) {
		return nil, false
	}
	if isComparison(op) {
		if ca == 1 && op != token.EQL && op != token.NEQ {
			return nil, false
		}
		return constant.MakeBool(constant.Compare(a, op, b)), true
	}
	switch ca {
	case 1:
		if op != token.LAND && op != token.LOR {
			return nil, false
		}
	case 2:
		if op != token.ADD {
			return nil, false
		}
	case 3:
		switch op {
		case token.LAND, token.LOR:
			return nil, false
		case token.QUO, token.REM:
			if constant.Sign(b) == 0 {
				return nil, false
			}
		}
		ints := a.Kind() == constant.Int && b.Kind() == constant.Int
		switch op {
		case token.REM, token.AND, token.OR, token.XOR, token.AND_NOT:
			if !ints {
				return nil, false
			}
		case token.QUO:
			if ints {
				op = token.QUO_ASSIGN
			}
		}
	}
	return constant.BinaryOp(a, op, b), true
}

// typedConst materializes cv with type t, or with its default type when
// t is not numeric.
func (l *lowerer) typedConst(n ast.Node, cv constant.Value, t jit.Type) jit.Val {
	switch cv.Kind() {
	case constant.Bool:
		return l.f.InsnOf(constant.BoolVal(cv))
	case constant.String:
		return l.f.InsnOf(constant.StringVal(cv))
	case constant.Int, constant.Float:
	default:
		l.errorf(n, diag.LangBadType, "invalid constant %s", cv)
		return jit.Val{}
	}

	var rt reflect.Type
	if isNumeric(t) {
		rt = kindTypes[t.Normalize().Kind()]
	}
	if rt == nil {
		if cv.Kind() == constant.Int {
			rt = reflect.TypeFor[int]()
		} else {
			rt = reflect.TypeFor[float64]()
		}
	}

	rv := reflect.New(rt).Elem()
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f, _ := constant.Float64Val(constant.ToFloat(cv))
		if rv.OverflowFloat(f) {
			l.errorf(n, diag.LangBadType, "constant %s overflows %s", cv, rt)
			return jit.Val{}
		}
		rv.SetFloat(f)
	default:
		iv := constant.ToInt(cv)
		if iv.Kind() != constant.Int {
			l.errorf(n, diag.LangBadType, "constant %s truncated to integer", cv)
			return jit.Val{}
		}
		if rv.CanInt() {
			i, exact := constant.Int64Val(iv)
			if !exact || rv.OverflowInt(i) {
				l.errorf(n, diag.LangBadType, "constant %s overflows %s", cv, rt)
				return jit.Val{}
			}
			rv.SetInt(i)
		} else {
			u, exact := constant.Uint64Val(iv)
			if !exact || constant.Sign(iv) < 0 || rv.OverflowUint(u) {
				l.errorf(n, diag.LangBadType, "constant %s overflows %s", cv, rt)
				return jit.Val{}
			}
			rv.SetUint(u)
		}
	}
	return l.f.InsnOf(rv.Interface())
}

func (l *lowerer) ident(id *ast.Ident) jit.Val {
	if id.Name == "_" {
		l.errorf(id, diag.LangUnknownName, "cannot use _ as value")
		return jit.Val{}
	}
	if v, ok := l.scope.lookup(id.Name); ok {
		return v
	}
	if id.Name == "nil" {
		return l.f.InsnOf(unsafe.Pointer(nil))
	}
	if c, ok := l.env.konst(id.Name); ok {
		return l.f.InsnOf(c)
	}
	if fn, ok := l.env.fn(id.Name); ok {
		if c, ok := fn.(jit.Callable); ok {
			return l.f.InsnFuncPointer(c)
		}
		return l.f.InsnOf(fn)
	}
	if _, ok := basicTypes[id.Name]; ok {
		l.errorf(id, diag.LangBadType, "%s (type) is not an expression", id.Name)
		return jit.Val{}
	}
	l.errorf(id, diag.LangUnknownName, "undefined: %s", id.Name)
	return jit.Val{}
}

func (l *lowerer) unary(x *ast.UnaryExpr, hint jit.Type) jit.Val {
	if x.Op == token.AND {
		id, ok := ast.Unparen(x.X).(*ast.Ident)
		if !ok {
			l.errorf(x, diag.LangUnsupported, "cannot take the address of %s", types.ExprString(x.X))
			return jit.Val{}
		}
		v, ok := l.scope.lookup(id.Name)
		if !ok {
			l.ident(id)
			return jit.Val{}
		}
		return l.f.InsnAddressOf(v)
	}

	v := l.expr(x.X, hint)
	if !v.IsValid() {
		return jit.Val{}
	}
	t := v.Type()
	switch x.Op {
	case token.ADD:
		if isNumeric(t) {
			return v
		}
	case token.SUB:
		if isNumeric(t) {
			return l.f.InsnNeg(v)
		}
	case token.XOR:
		if isNumeric(t) && t.IsInt() {
			return l.f.InsnNot(v)
		}
	case token.NOT:
		if isScalar(t) {
			return l.f.InsnToNotBool(v)
		}
	default:
		l.unsupported(x)
		return jit.Val{}
	}
	l.errorf(x, diag.LangBadType, "invalid operation: operator %s not defined on %s (%s)", x.Op, types.ExprString(x.X), l.describe(v))
	return jit.Val{}
}

// pointee returns the type p points to.
func (l *lowerer) pointee(x *ast.StarExpr, p jit.Val) (jit.Type, bool) {
	if !p.IsValid() {
		return jit.Type{}, false
	}
	ref, ok := p.Type().Ref()
	if !ok {
		l.errorf(x, diag.LangBadType, "invalid operation: cannot indirect %s (%s)", types.ExprString(x.X), l.describe(p))
		return jit.Type{}, false
	}
	if isVoid(ref) {
		l.errorf(x, diag.LangBadType, "invalid operation: cannot indirect %s (unsafe.Pointer)", types.ExprString(x.X))
		return jit.Type{}, false
	}
	return ref, true
}

// operand lowers the right operand of op whose left operand has type
// left.
func (l *lowerer) operand(e ast.Expr, op token.Token, left jit.Type) jit.Val {
	if op == token.SHL || op == token.SHR {
		return l.expr(e, jit.Type{})
	}
	return l.expr(e, left)
}

func (l *lowerer) binary(x *ast.BinaryExpr, hint jit.Type) jit.Val {
	op := x.Op
	if isComparison(op) || op == token.LAND || op == token.LOR {
		hint = jit.Type{}
	}
	var a, b jit.Val
	ac, aConst := l.constant(x.X)
	_, bConst := l.constant(x.Y)
	if aConst && !bConst && op != token.SHL && op != token.SHR {
		b = l.expr(x.Y, hint)
		if !b.IsValid() {
			return jit.Val{}
		}
		a = l.typedConst(x.X, ac, b.Type())
	} else {
		a = l.expr(x.X, hint)
		if !a.IsValid() {
			return jit.Val{}
		}
		b = l.operand(x.Y, op, a.Type())
	}
	if !a.IsValid() || !b.IsValid() {
		return jit.Val{}
	}
	if (op == token.QUO || op == token.REM) && bConst && b.Type().IsInt() {
		if bc, _ := l.constant(x.Y); constant.Sign(bc) == 0 {
			l.errorf(x.Y, diag.LangBadType, "invalid operation: division by zero")
			return jit.Val{}
		}
	}
	return l.arith(x, op, a, b)
}

// arith emits a op b after checking the operand types.
func (l *lowerer) arith(n ast.Node, op token.Token, a, b jit.Val) jit.Val {
	at, bt := a.Type(), b.Type()
	var ok bool
	switch op {
	case token.EQL, token.NEQ, token.LAND, token.LOR:
		ok = isScalar(at) && isScalar(bt)
	case token.LSS, token.LEQ, token.GTR, token.GEQ, token.ADD, token.SUB, token.MUL, token.QUO:
		ok = isNumeric(at) && isNumeric(bt)
	case token.REM, token.AND, token.OR, token.XOR, token.AND_NOT, token.SHL, token.SHR:
		ok = isNumeric(at) && isNumeric(bt) && at.IsInt() && bt.IsInt()
	default:
		l.errorf(n, diag.LangUnsupported, "operator %s is not supported", op)
		return jit.Val{}
	}
	if !ok {
		bad := at
		if isScalar(at) && (op == token.EQL || op == token.NEQ || op == token.LAND || op == token.LOR || isNumeric(at)) {
			bad = bt
		}
		l.errorf(n, diag.LangBadType, "invalid operation: operator %s not defined on %s", op, bad)
		return jit.Val{}
	}

	f := l.f
	switch op {
	case token.ADD:
		return f.InsnAdd(a, b)
	case token.SUB:
		return f.InsnSub(a, b)
	case token.MUL:
		return f.InsnMul(a, b)
	case token.QUO:
		return f.InsnDiv(a, b)
	case token.REM:
		return f.InsnRem(a, b)
	case token.AND:
		return f.InsnAnd(a, b)
	case token.OR:
		return f.InsnOr(a, b)
	case token.XOR:
		return f.InsnXor(a, b)
	case token.AND_NOT:
		return f.InsnAnd(a, f.InsnNot(b))
	case token.SHL:
		return f.InsnShl(a, b)
	case token.SHR:
		return f.InsnShr(a, b)
	case token.EQL:
		return f.InsnEq(a, b)
	case token.NEQ:
		return f.InsnNe(a, b)
	case token.LSS:
		return f.InsnLt(a, b)
	case token.LEQ:
		return f.InsnLe(a, b)
	case token.GTR:
		return f.InsnGt(a, b)
	case token.GEQ:
		return f.InsnGe(a, b)
	case token.LAND:
		return f.InsnAnd(f.InsnToBool(a), f.InsnToBool(b))
	default: // token.LOR
		return f.InsnOr(f.InsnToBool(a), f.InsnToBool(b))
	}
}
