package engine

import "fmt"

// TrapCode identifies the kind of runtime fault raised by compiled code.
type TrapCode int

// Stable trap codes - do not change values.
const (
	TrapDivisionByZero TrapCode = 1001 // JIT1001: integer division by zero
	TrapOverflow       TrapCode = 1002 // JIT1002: overflow in checked arithmetic, conversion or signed division
	TrapNullPointer    TrapCode = 1003 // JIT1003: null pointer check failed
	TrapThrown         TrapCode = 1004 // JIT1004: value thrown by the function
	TrapJumpTable      TrapCode = 1005 // JIT1005: jump table index out of range
	TrapBadFuncPointer TrapCode = 1006 // JIT1006: call through an unknown function pointer
	TrapCompile        TrapCode = 1007 // JIT1007: on-demand compilation failed
	TrapNativePanic    TrapCode = 1008 // JIT1008: native callee panicked
	TrapAbandoned      TrapCode = 1009 // JIT1009: call to an abandoned function
	TrapNoParentFrame  TrapCode = 1010 // JIT1010: nested function called outside its parent
	TrapMemoryFault    TrapCode = 1011 // JIT1011: invalid memory access
)

// String returns the code as "JIT1001" format.
func (c TrapCode) String() string {
	return fmt.Sprintf("JIT%d", c)
}

// Trap is a runtime fault raised inside compiled code. It is delivered to
// the host as an error from Apply, or as a panic value from host closures.
type Trap struct {
	Code     TrapCode
	Message  string
	Func     string // name of the function that raised the trap
	Value    uint64 // thrown value for TrapThrown
	Cause    error
	Recovery any // native panic payload for TrapNativePanic
}

// Error implements the error interface.
func (t *Trap) Error() string {
	if t == nil {
		return "<nil>"
	}
	if t.Func != "" {
		return fmt.Sprintf("trap %s in %s: %s", t.Code, t.Func, t.Message)
	}
	return fmt.Sprintf("trap %s: %s", t.Code, t.Message)
}

func (t *Trap) Unwrap() error {
	if t == nil {
		return nil
	}
	return t.Cause
}

func raise(code TrapCode, format string, args ...any) {
	panic(&Trap{Code: code, Message: fmt.Sprintf(format, args...)})
}
