package jitlang

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"

	"jitkit/internal/diag"
	"jitkit/jit"
)

func (l *lowerer) stmt(s ast.Stmt) {
	defer l.recoverAt(s)
	switch s := s.(type) {
	case *ast.AssignStmt:
		l.assignStmt(s)
	case *ast.IncDecStmt:
		l.incDecStmt(s)
	case *ast.DeclStmt:
		l.declStmt(s)
	case *ast.ExprStmt:
		l.exprStmt(s)
	case *ast.IfStmt:
		l.ifStmt(s)
	case *ast.ForStmt:
		l.forStmt(s)
	case *ast.ReturnStmt:
		l.returnStmt(s)
	case *ast.BranchStmt:
		l.branchStmt(s)
	case *ast.BlockStmt:
		l.block(s)
	case *ast.EmptyStmt:
	default:
		l.unsupported(s)
	}
}

// lvalue is an assignable location: a variable or the target of a
// pointer.
type lvalue struct {
	node ast.Expr
	v    jit.Val
	ptr  jit.Val
	typ  jit.Type
}

func (lv lvalue) ok() bool { return lv.v.IsValid() || lv.ptr.IsValid() }

func (l *lowerer) lvalue(e ast.Expr) lvalue {
	switch x := ast.Unparen(e).(type) {
	case *ast.Ident:
		if v, ok := l.scope.lookup(x.Name); ok {
			return lvalue{node: e, v: v, typ: v.Type()}
		}
		if _, ok := l.env.konst(x.Name); ok {
			l.errorf(e, diag.LangBadType, "cannot assign to %s (neither addressable nor a map index expression)", x.Name)
			return lvalue{}
		}
		l.errorf(e, diag.LangUnknownName, "undefined: %s", x.Name)
		return lvalue{}
	case *ast.StarExpr:
		p := l.expr(x.X, jit.Type{})
		ref, ok := l.pointee(x, p)
		if !ok {
			return lvalue{}
		}
		return lvalue{node: e, ptr: p, typ: ref}
	}
	l.errorf(e, diag.LangUnsupported, "cannot assign to %s", types.ExprString(e))
	return lvalue{}
}

func (l *lowerer) load(lv lvalue) jit.Val {
	if lv.ptr.IsValid() {
		return l.f.InsnLoadRelative(lv.ptr, 0, lv.typ)
	}
	return lv.v
}

func (l *lowerer) store(lv lvalue, v jit.Val) {
	if !lv.ok() || !v.IsValid() {
		return
	}
	if lv.ptr.IsValid() {
		if v.Type() != lv.typ {
			v = l.f.InsnConvert(v, lv.typ, false)
		}
		l.f.InsnStoreRelative(lv.ptr, 0, v)
		return
	}
	l.f.InsnStore(lv.v, v)
}

var opAssign = map[token.Token]token.Token{
	token.ADD_ASSIGN:     token.ADD,
	token.SUB_ASSIGN:     token.SUB,
	token.MUL_ASSIGN:     token.MUL,
	token.QUO_ASSIGN:     token.QUO,
	token.REM_ASSIGN:     token.REM,
	token.AND_ASSIGN:     token.AND,
	token.OR_ASSIGN:      token.OR,
	token.XOR_ASSIGN:     token.XOR,
	token.SHL_ASSIGN:     token.SHL,
	token.SHR_ASSIGN:     token.SHR,
	token.AND_NOT_ASSIGN: token.AND_NOT,
}

func (l *lowerer) assignStmt(s *ast.AssignStmt) {
	if op, ok := opAssign[s.Tok]; ok {
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			l.errorf(s, diag.LangArity, "assignment operation %s requires single-valued expressions", s.Tok)
			return
		}
		lv := l.lvalue(s.Lhs[0])
		if !lv.ok() {
			return
		}
		cur := l.load(lv)
		y := l.operand(s.Rhs[0], op, cur.Type())
		if !y.IsValid() {
			return
		}
		l.store(lv, l.arith(s, op, cur, y))
		return
	}

	if len(s.Lhs) != len(s.Rhs) {
		l.errorf(s, diag.LangArity, "assignment mismatch: %d variables but %d values", len(s.Lhs), len(s.Rhs))
		return
	}

	if s.Tok == token.DEFINE {
		l.define(s)
		return
	}

	targets := make([]lvalue, len(s.Lhs))
	for i, e := range s.Lhs {
		if id, ok := e.(*ast.Ident); ok && id.Name == "_" {
			continue
		}
		targets[i] = l.lvalue(e)
	}
	values := make([]jit.Val, len(s.Rhs))
	for i, e := range s.Rhs {
		values[i] = l.expr(e, targets[i].typ)
	}
	// a, b = b, a reads every right-hand side before the first store
	if len(values) > 1 {
		for i, v := range values {
			if v.IsValid() && !v.IsConstant() {
				values[i] = l.f.InsnDup(v)
			}
		}
	}
	for i, lv := range targets {
		l.store(lv, values[i])
	}
}

func (l *lowerer) define(s *ast.AssignStmt) {
	values := make([]jit.Val, len(s.Rhs))
	for i, e := range s.Rhs {
		values[i] = l.expr(e, jit.Type{})
	}
	if len(values) > 1 {
		for i, v := range values {
			if v.IsValid() && !v.IsConstant() {
				values[i] = l.f.InsnDup(v)
			}
		}
	}

	fresh := false
	for i, e := range s.Lhs {
		id, ok := e.(*ast.Ident)
		if !ok {
			l.errorf(e, diag.LangUnsupported, "non-name %s on left side of :=", types.ExprString(e))
			continue
		}
		if id.Name == "_" {
			continue
		}
		if v, ok := l.scope.vars[id.Name]; ok {
			l.store(lvalue{node: e, v: v, typ: v.Type()}, values[i])
			continue
		}
		fresh = true
		l.local(id, values[i], jit.Type{})
	}
	if !fresh {
		l.errorf(s, diag.LangUnknownName, "no new variables on left side of :=")
	}
}

// local declares id as a new variable of type t, or of the type of init
// when t is invalid, and stores init into it.
func (l *lowerer) local(id *ast.Ident, init jit.Val, t jit.Type) {
	if !t.IsValid() {
		t = init.Type()
	}
	if !t.IsValid() {
		// keep the name bound so later uses do not cascade
		l.declare(id, l.f.NewValue(jit.TypeNInt))
		return
	}
	v := l.f.NewValue(t)
	l.declare(id, v)
	if init.IsValid() {
		l.f.InsnStore(v, init)
	}
}

func (l *lowerer) incDecStmt(s *ast.IncDecStmt) {
	lv := l.lvalue(s.X)
	if !lv.ok() {
		return
	}
	op := token.ADD
	if s.Tok == token.DEC {
		op = token.SUB
	}
	cur := l.load(lv)
	if !isNumeric(cur.Type()) {
		l.errorf(s, diag.LangBadType, "invalid operation: %s%s (non-numeric type %s)", types.ExprString(s.X), s.Tok, cur.Type())
		return
	}
	one := l.typedConst(s, constant.MakeInt64(1), cur.Type())
	l.store(lv, l.arith(s, op, cur, one))
}

func (l *lowerer) declStmt(s *ast.DeclStmt) {
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR {
		l.unsupported(s.Decl)
		return
	}
	for _, spec := range gd.Specs {
		vs := spec.(*ast.ValueSpec)
		var t jit.Type
		if vs.Type != nil {
			var ok bool
			if t, ok = l.typeOf(vs.Type); !ok {
				l.errorf(vs.Type, diag.LangBadType, "unsupported type %s", types.ExprString(vs.Type))
			}
		}
		if len(vs.Values) != 0 && len(vs.Values) != len(vs.Names) {
			l.errorf(vs, diag.LangArity, "assignment mismatch: %d variables but %d values", len(vs.Names), len(vs.Values))
			continue
		}
		if len(vs.Values) == 0 && !t.IsValid() {
			for _, id := range vs.Names {
				l.local(id, jit.Val{}, jit.Type{})
			}
			continue
		}
		for i, id := range vs.Names {
			var init jit.Val
			if len(vs.Values) > 0 {
				init = l.expr(vs.Values[i], t)
			} else {
				init = l.typedConst(id, constant.MakeInt64(0), t)
			}
			l.local(id, init, t)
		}
	}
}

func (l *lowerer) exprStmt(s *ast.ExprStmt) {
	call, ok := ast.Unparen(s.X).(*ast.CallExpr)
	if !ok {
		l.errorf(s, diag.LangUnsupported, "%s (%s) is not used", types.ExprString(s.X), construct(s.X))
		return
	}
	l.call(call, jit.Type{})
}

// cond lowers the condition of an if or for. Invalid conditions are
// replaced by false so the statement around them still lowers.
func (l *lowerer) cond(e ast.Expr) jit.Val {
	v := l.expr(e, jit.Type{})
	if v.IsValid() && !isScalar(v.Type()) {
		l.errorf(e, diag.LangBadType, "non-boolean condition %s (%s)", types.ExprString(e), l.describe(v))
		v = jit.Val{}
	}
	if !v.IsValid() {
		return l.f.InsnOf(false)
	}
	return v
}

func (l *lowerer) ifStmt(s *ast.IfStmt) {
	l.push()
	defer l.pop()
	if s.Init != nil {
		l.stmt(s.Init)
	}
	c := l.cond(s.Cond)
	then := func() { l.block(s.Body) }
	if s.Else == nil {
		l.f.BuildIf(c, then)
		return
	}
	l.f.BuildIfElse(c, then, func() { l.stmt(s.Else) })
}

func (l *lowerer) forStmt(s *ast.ForStmt) {
	l.push()
	defer l.pop()
	if s.Init != nil {
		l.stmt(s.Init)
	}
	l.f.BuildLoop(func(exit jit.Label) {
		if s.Cond != nil {
			l.f.InsnBranchIfNot(l.cond(s.Cond), exit)
		}
		next := l.f.NewLabel()
		l.loops = append(l.loops, loop{brk: exit, cont: next})
		l.block(s.Body)
		l.loops = l.loops[:len(l.loops)-1]
		l.f.InsnLabel(next)
		if s.Post != nil {
			l.stmt(s.Post)
		}
	})
}

func (l *lowerer) returnStmt(s *ast.ReturnStmt) {
	switch {
	case isVoid(l.ret) && len(s.Results) > 0:
		l.errorf(s, diag.LangArity, "too many return values")
	case !isVoid(l.ret) && len(s.Results) == 0:
		l.errorf(s, diag.LangArity, "not enough return values")
	case len(s.Results) > 1:
		l.errorf(s, diag.LangArity, "too many return values")
	case len(s.Results) == 0:
		l.f.InsnReturn(jit.Val{})
	default:
		v := l.expr(s.Results[0], l.ret)
		if !v.IsValid() {
			return
		}
		if l.ret.IsPointer() != v.Type().IsPointer() || !isScalar(v.Type()) {
			l.errorf(s.Results[0], diag.LangBadType, "cannot use %s (%s) as %s value in return statement", types.ExprString(s.Results[0]), l.describe(v), l.ret)
			return
		}
		l.f.InsnReturn(v)
	}
}

func (l *lowerer) branchStmt(s *ast.BranchStmt) {
	if s.Label != nil || (s.Tok != token.BREAK && s.Tok != token.CONTINUE) {
		l.unsupported(s)
		return
	}
	if len(l.loops) == 0 {
		l.errorf(s, diag.LangUnsupported, "%s is not in a loop", s.Tok)
		return
	}
	in := l.loops[len(l.loops)-1]
	if s.Tok == token.BREAK {
		l.f.InsnBranch(in.brk)
	} else {
		l.f.InsnBranch(in.cont)
	}
}
