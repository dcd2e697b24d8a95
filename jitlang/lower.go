package jitlang

import (
	"fmt"
	"go/ast"
	"go/token"

	"jitkit/internal/diag"
	"jitkit/jit"
)

// lowerer walks the syntax tree of one function literal and emits builder
// calls into f. Problems are collected in bag; once bag holds an error the
// emitted code is never compiled.
type lowerer struct {
	fset  *token.FileSet
	f     *jit.UncompiledFunction
	env   *Env
	bag   *diag.Bag
	scope *scope
	loops []loop
	ret   jit.Type
}

type scope struct {
	parent *scope
	vars   map[string]jit.Val
}

func (s *scope) lookup(name string) (jit.Val, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return jit.Val{}, false
}

type loop struct {
	brk, cont jit.Label
}

func newLowerer(fset *token.FileSet, f *jit.UncompiledFunction, env *Env) *lowerer {
	ret, _ := f.Signature().Return()
	return &lowerer{
		fset: fset,
		f:    f,
		env:  env,
		bag:  diag.NewBag(0),
		ret:  ret,
	}
}

func (l *lowerer) errorf(n ast.Node, code diag.Code, format string, args ...any) {
	d := diag.Errorf(code, l.fset.Position(n.Pos()), format, args...)
	l.bag.Add(d.WithEnd(l.fset.Position(n.End())))
}

func (l *lowerer) unsupported(n ast.Node) {
	l.errorf(n, diag.LangUnsupported, "%s is not supported", construct(n))
}

func (l *lowerer) push() { l.scope = &scope{parent: l.scope, vars: map[string]jit.Val{}} }
func (l *lowerer) pop()  { l.scope = l.scope.parent }

func (l *lowerer) declare(id *ast.Ident, v jit.Val) {
	if id.Name == "_" {
		return
	}
	if _, dup := l.scope.vars[id.Name]; dup {
		l.errorf(id, diag.LangUnknownName, "%s redeclared in this block", id.Name)
		return
	}
	l.scope.vars[id.Name] = v
}

// recoverAt turns a builder panic raised while lowering n into a
// diagnostic.
func (l *lowerer) recoverAt(n ast.Node) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		panic(r)
	}
	l.errorf(n, diag.LangBadType, "%v", err)
}

func (l *lowerer) lowerFunc(lit *ast.FuncLit) {
	l.push()
	defer l.pop()
	params := l.f.Params()
	i := 0
	for _, fl := range lit.Type.Params.List {
		if len(fl.Names) == 0 {
			i++
			continue
		}
		for _, id := range fl.Names {
			l.declare(id, params[i])
			i++
		}
	}
	l.stmts(lit.Body.List)
	if !isVoid(l.ret) && !terminates(lit.Body.List) {
		l.bag.Add(diag.NewError(diag.LangMissingValue, l.fset.Position(lit.Body.Rbrace), "missing return"))
	}
}

func (l *lowerer) stmts(list []ast.Stmt) {
	for _, s := range list {
		l.stmt(s)
	}
}

func (l *lowerer) block(b *ast.BlockStmt) {
	l.push()
	defer l.pop()
	l.stmts(b.List)
}

// terminates reports whether a statement list ends in a terminating
// statement, following the Go rules for the statements jitlang supports.
func terminates(list []ast.Stmt) bool {
	for i := len(list) - 1; i >= 0; i-- {
		if _, empty := list[i].(*ast.EmptyStmt); empty {
			continue
		}
		return terminating(list[i])
	}
	return false
}

func terminating(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		return terminates(s.List)
	case *ast.IfStmt:
		return s.Else != nil && terminates(s.Body.List) && terminating(s.Else)
	case *ast.ForStmt:
		return s.Cond == nil && !breaks(s.Body)
	}
	return false
}

// breaks reports whether body contains a break leaving the loop it
// belongs to.
func breaks(body *ast.BlockStmt) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.SelectStmt, *ast.FuncLit:
			return false
		case *ast.BranchStmt:
			if n.Tok == token.BREAK {
				found = true
			}
		}
		return !found
	})
	return found
}

func (l *lowerer) describe(v jit.Val) string {
	if !v.IsValid() {
		return "invalid value"
	}
	return fmt.Sprintf("value of type %s", v.Type())
}
