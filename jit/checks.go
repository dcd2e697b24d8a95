package jit

import "fmt"

type class uint8

const (
	classFloat class = iota
	classInt
	classPrimitive
	classPointer
	classCallable
)

var classNames = [...]string{
	classFloat:     "float",
	classInt:       "integer",
	classPrimitive: "primitive",
	classPointer:   "pointer",
	classCallable:  "function pointer",
}

func (c class) String() string { return classNames[c] }

func (c class) accepts(t Type) bool {
	n := t.Normalize()
	switch c {
	case classFloat:
		return n.Kind().IsFloat()
	case classInt:
		return n.Kind().IsInt()
	case classPrimitive:
		return n.Kind().IsPrimitive() && n.Kind() != KindVoid
	case classPointer:
		return n.Kind() == KindPointer
	case classCallable:
		k := n.Kind()
		return k == KindSignature || k == KindPointer || k == KindNUInt || k == KindNInt
	}
	return false
}

// expect panics with a ContractError when v is not of class c.
func expect(op string, v Val, c class) {
	if !Checked {
		return
	}
	t := v.Type()
	if !c.accepts(t) {
		panic(&ContractError{Op: op, Want: c.String(), Got: t.String()})
	}
}

// expectRole is expect for operands with a named role.
func expectRole(op, role string, v Val, c class) {
	if !Checked {
		return
	}
	t := v.Type()
	if !c.accepts(t) {
		panic(&ContractError{Op: op, Role: role, Want: c.String(), Got: t.String()})
	}
}

func expectMemory(op string, dst, src, size Val, srcClass class) {
	expectRole(op, "size", size, classInt)
	expectRole(op, "destination", dst, classPointer)
	expectRole(op, "source", src, srcClass)
}

// compatible reports whether a value of type got may stand where want is
// expected: the same descriptor, or descriptors of the same normalized
// kind and size.
func compatible(want, got Type) bool {
	if want == got {
		return true
	}
	if !want.IsValid() || !got.IsValid() {
		return false
	}
	w, g := want.Normalize(), got.Normalize()
	return w.Kind() == g.Kind() && w.Size() == g.Size()
}

func mismatch(op string, what string, want, got any) {
	panic(&ContractError{Op: op, Msg: fmt.Sprintf("%s: expected %v, got %v", what, want, got)})
}
