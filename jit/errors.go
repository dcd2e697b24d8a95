package jit

import (
	"errors"
	"fmt"

	"jitkit/internal/derive"
	"jitkit/internal/engine"
)

// Builder misuse reported by the engine. They arrive wrapped in a panic
// value of type error; use errors.Is on the recovered value.
var (
	ErrNotBuilding     = engine.ErrNotBuilding
	ErrForeignValue    = engine.ErrForeignValue
	ErrForeignLabel    = engine.ErrForeignLabel
	ErrLabelPlaced     = engine.ErrLabelPlaced
	ErrUnresolvedLabel = engine.ErrUnresolvedLabel
	ErrAbandoned       = engine.ErrAbandoned
	ErrBadSignature    = engine.ErrBadSignature
)

// ErrClosed is returned when a closed Context is used.
var ErrClosed = errors.New("context is closed")

// Trap is a runtime fault raised by compiled code.
type Trap = engine.Trap

// TrapCode identifies a trap.
type TrapCode = engine.TrapCode

const (
	TrapDivisionByZero = engine.TrapDivisionByZero
	TrapOverflow       = engine.TrapOverflow
	TrapNullPointer    = engine.TrapNullPointer
	TrapThrown         = engine.TrapThrown
	TrapJumpTable      = engine.TrapJumpTable
	TrapBadFuncPointer = engine.TrapBadFuncPointer
	TrapCompile        = engine.TrapCompile
	TrapNativePanic    = engine.TrapNativePanic
	TrapAbandoned      = engine.TrapAbandoned
	TrapNoParentFrame  = engine.TrapNoParentFrame
	TrapMemoryFault    = engine.TrapMemoryFault
)

// IsTrap reports whether err is a trap with the given code.
func IsTrap(err error, code TrapCode) bool { return engine.IsTrap(err, code) }

// CompileError reports a function that could not be compiled.
type CompileError = engine.CompileError

// ContractError is the panic value of a violated instruction or call
// precondition.
type ContractError struct {
	Op   string // instruction or operation name
	Role string // operand role, empty for plain operands
	Want string // expected operand class
	Got  string // actual type
	Msg  string // free-form message, overrides the fields above
}

func (e *ContractError) Error() string {
	switch {
	case e.Msg != "":
		return e.Op + ": " + e.Msg
	case e.Role != "":
		return fmt.Sprintf("Expected %s %s for %s, but got %s", e.Want, e.Role, e.Op, e.Got)
	default:
		return fmt.Sprintf("Value given to %s should be %s, got %s", e.Op, e.Want, e.Got)
	}
}

func contract(op, format string, args ...any) {
	panic(&ContractError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// GenerationError reports a Go type that has no descriptor.
type GenerationError struct {
	Type string // Go type name
	Code string // diagnostic code, empty for unsupported kinds
	Msg  string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s]", e.Type, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func notPacked(name string) *GenerationError {
	return &GenerationError{Type: name, Code: derive.CodeNotPacked, Msg: derive.MsgNotPacked, Err: derive.ErrNotPacked}
}

func notCompatible(name string) *GenerationError {
	return &GenerationError{Type: name, Code: derive.CodeNotCompatible, Msg: derive.MsgNotCompatible, Err: derive.ErrNotCompatible}
}
