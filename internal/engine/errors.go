package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotBuilding     = errors.New("function is no longer being built")
	ErrForeignValue    = errors.New("value belongs to another function")
	ErrForeignLabel    = errors.New("label belongs to another function")
	ErrLabelPlaced     = errors.New("label already placed")
	ErrUnresolvedLabel = errors.New("label referenced but never placed")
	ErrNotScalar       = errors.New("operand must be a scalar")
	ErrConstantStore   = errors.New("cannot store into a constant")
	ErrAbandoned       = errors.New("function was abandoned")
	ErrBadSignature    = errors.New("argument count does not match the signature")
)

// usage panics with an error describing a builder misuse.
func usage(op string, err error, detail ...any) {
	if len(detail) > 0 {
		panic(fmt.Errorf("%s: %w: %s", op, err, fmt.Sprint(detail...)))
	}
	panic(fmt.Errorf("%s: %w", op, err))
}

// CompileError reports a function that could not be compiled.
type CompileError struct {
	Func   string
	Labels []Label // unresolved labels
	Err    error
}

func (e *CompileError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString("compile ")
	if e.Func != "" {
		sb.WriteString(e.Func)
	} else {
		sb.WriteString("<anonymous>")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	if len(e.Labels) > 0 {
		sb.WriteString(" (")
		for i, l := range e.Labels {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(l.String())
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *CompileError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
