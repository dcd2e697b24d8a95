package layout

import "fmt"

// ErrorKind enumerates layout calculation failures.
type ErrorKind uint8

const (
	// ErrBadAlignment indicates an alignment that is not a positive power of two.
	ErrBadAlignment ErrorKind = iota + 1
	// ErrSizeConversion indicates a size that does not fit the host int.
	ErrSizeConversion
	// ErrNegativeSize indicates a negative size request.
	ErrNegativeSize
)

// Error represents an error during layout calculation.
type Error struct {
	Kind  ErrorKind
	Value int64 // offending size or alignment
	Err   error // for ErrSizeConversion
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrBadAlignment:
		return fmt.Sprintf("alignment %d is not a positive power of two", e.Value)
	case ErrSizeConversion:
		if e.Err != nil {
			return fmt.Sprintf("size %d does not fit the target: %v", e.Value, e.Err)
		}
		return fmt.Sprintf("size %d does not fit the target", e.Value)
	case ErrNegativeSize:
		return fmt.Sprintf("negative size: %d", e.Value)
	default:
		return fmt.Sprintf("layout error kind=%d value=%d", e.Kind, e.Value)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
