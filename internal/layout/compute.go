package layout

import (
	"math/bits"

	"fortio.org/safecast"
)

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Checked converts an externally supplied size or alignment into a host int.
func Checked(v int64) (int, error) {
	if v < 0 {
		return 0, &Error{Kind: ErrNegativeSize, Value: v}
	}
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, &Error{Kind: ErrSizeConversion, Value: v, Err: err}
	}
	return n, nil
}

// CheckAlign validates an alignment override.
func CheckAlign(v int64) (int, error) {
	n, err := Checked(v)
	if err != nil {
		return 0, err
	}
	u, err := safecast.Conv[uint64](n)
	if err != nil || n == 0 || bits.OnesCount64(u) != 1 {
		return 0, &Error{Kind: ErrBadAlignment, Value: v}
	}
	return n, nil
}
