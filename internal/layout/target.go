package layout

import (
	"runtime"
	"unsafe"
)

// Target describes the ABI target and its pointer properties.
type Target struct {
	Arch     string // e.g. "amd64"
	PtrSize  int    // bytes
	PtrAlign int    // bytes
}

// Host returns the target the process is running on. Generated code is
// executed in-process, so descriptors always use the host layout.
func Host() Target {
	return Target{
		Arch:     runtime.GOARCH,
		PtrSize:  int(unsafe.Sizeof(uintptr(0))),
		PtrAlign: int(unsafe.Alignof(uintptr(0))),
	}
}

// X86_64 is the reference 64-bit target used by layout tests.
func X86_64() Target {
	return Target{
		Arch:     "amd64",
		PtrSize:  8,
		PtrAlign: 8,
	}
}

// PtrLayout returns the layout of a pointer-sized scalar.
func (t Target) PtrLayout() TypeLayout {
	size := t.PtrSize
	align := t.PtrAlign
	if size <= 0 {
		size = 8
	}
	if align <= 0 {
		align = size
	}
	return TypeLayout{Size: size, Align: align}
}
