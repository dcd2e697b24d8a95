package jitlang

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"strings"
	"unsafe"

	"jitkit/internal/diag"
	"jitkit/jit"
)

var basicTypes = map[string]reflect.Type{
	"bool":    reflect.TypeFor[bool](),
	"int8":    reflect.TypeFor[int8](),
	"uint8":   reflect.TypeFor[uint8](),
	"byte":    reflect.TypeFor[byte](),
	"int16":   reflect.TypeFor[int16](),
	"uint16":  reflect.TypeFor[uint16](),
	"int32":   reflect.TypeFor[int32](),
	"rune":    reflect.TypeFor[rune](),
	"uint32":  reflect.TypeFor[uint32](),
	"int64":   reflect.TypeFor[int64](),
	"uint64":  reflect.TypeFor[uint64](),
	"int":     reflect.TypeFor[int](),
	"uint":    reflect.TypeFor[uint](),
	"uintptr": reflect.TypeFor[uintptr](),
	"float32": reflect.TypeFor[float32](),
	"float64": reflect.TypeFor[float64](),
}

// kindTypes maps primitive kinds back to the Go type whose constants
// lower to that kind.
var kindTypes = map[jit.Kind]reflect.Type{
	jit.KindSByte:   reflect.TypeFor[int8](),
	jit.KindUByte:   reflect.TypeFor[uint8](),
	jit.KindShort:   reflect.TypeFor[int16](),
	jit.KindUShort:  reflect.TypeFor[uint16](),
	jit.KindInt:     reflect.TypeFor[int32](),
	jit.KindUInt:    reflect.TypeFor[uint32](),
	jit.KindNInt:    reflect.TypeFor[int](),
	jit.KindNUInt:   reflect.TypeFor[uint](),
	jit.KindLong:    reflect.TypeFor[int64](),
	jit.KindULong:   reflect.TypeFor[uint64](),
	jit.KindFloat32: reflect.TypeFor[float32](),
	jit.KindFloat64: reflect.TypeFor[float64](),
	jit.KindNFloat:  reflect.TypeFor[float64](),
}

// typeExpr resolves a type expression without looking at scopes.
func typeExpr(e ast.Expr) (reflect.Type, bool) {
	switch e := e.(type) {
	case *ast.Ident:
		rt, ok := basicTypes[e.Name]
		return rt, ok
	case *ast.SelectorExpr:
		if pkg, ok := e.X.(*ast.Ident); ok && pkg.Name == "unsafe" && e.Sel.Name == "Pointer" {
			return reflect.TypeFor[unsafe.Pointer](), true
		}
	case *ast.StarExpr:
		if elem, ok := typeExpr(e.X); ok {
			return reflect.PointerTo(elem), true
		}
	case *ast.ParenExpr:
		return typeExpr(e.X)
	}
	return nil, false
}

func goType(fset *token.FileSet, bag *diag.Bag, e ast.Expr) reflect.Type {
	if rt, ok := typeExpr(e); ok {
		return rt
	}
	bag.Add(diag.Errorf(diag.LangBadType, fset.Position(e.Pos()), "unsupported type %s", types.ExprString(e)).
		WithEnd(fset.Position(e.End())))
	return reflect.TypeFor[int]()
}

func isVoid(t jit.Type) bool {
	return !t.IsValid() || t.Normalize().Kind() == jit.KindVoid
}

func isNumeric(t jit.Type) bool {
	if !t.IsValid() || t.IsPointer() {
		return false
	}
	return t.IsInt() || t.IsFloat()
}

func isScalar(t jit.Type) bool {
	return isNumeric(t) || (t.IsValid() && t.IsPointer())
}

// construct names the syntax of n for diagnostics.
func construct(n ast.Node) string {
	switch n := n.(type) {
	case *ast.SwitchStmt:
		return "switch statement"
	case *ast.TypeSwitchStmt:
		return "type switch"
	case *ast.SelectStmt:
		return "select statement"
	case *ast.GoStmt:
		return "go statement"
	case *ast.DeferStmt:
		return "defer statement"
	case *ast.RangeStmt:
		return "range loop"
	case *ast.LabeledStmt:
		return "labeled statement"
	case *ast.SendStmt:
		return "send statement"
	case *ast.BranchStmt:
		return n.Tok.String() + " statement"
	case *ast.FuncLit:
		return "function literal"
	case *ast.CompositeLit:
		return "composite literal"
	case *ast.IndexExpr, *ast.IndexListExpr:
		return "index expression"
	case *ast.SliceExpr:
		return "slice expression"
	case *ast.SelectorExpr:
		return "selector " + types.ExprString(n)
	case *ast.TypeAssertExpr:
		return "type assertion"
	case *ast.KeyValueExpr:
		return "key-value expression"
	case *ast.BasicLit:
		return strings.ToLower(n.Kind.String()) + " literal"
	case *ast.UnaryExpr:
		return fmt.Sprintf("unary operator %s", n.Op)
	case *ast.GenDecl:
		return n.Tok.String() + " declaration"
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.StructType, *ast.InterfaceType, *ast.FuncType:
		return "type " + types.ExprString(n.(ast.Expr))
	}
	return strings.ToLower(strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast."))
}
