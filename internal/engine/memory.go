package engine

import "unsafe"

// All raw memory access of compiled code goes through this file. Addresses
// are either host pointers passed in by the caller or frame storage that
// stays reachable from the executing frame.

func ptr(addr uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr)) //nolint:govet
}

func addr(p unsafe.Pointer) uint64 { return uint64(uintptr(p)) }

func bufAddr(b []byte) uint64 { return addr(unsafe.Pointer(unsafe.SliceData(b))) }

func regAddr(regs []uint64, i int) uint64 { return addr(unsafe.Pointer(&regs[i])) }

func loadScalar(a uint64, k Kind) uint64 {
	p := ptr(a)
	switch width(k) {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	case 8:
		return *(*uint64)(p)
	default:
		return 0
	}
}

func storeScalar(a uint64, k Kind, bits uint64) {
	p := ptr(a)
	switch width(k) {
	case 1:
		*(*uint8)(p) = uint8(bits)
	case 2:
		*(*uint16)(p) = uint16(bits)
	case 4:
		*(*uint32)(p) = uint32(bits)
	case 8:
		*(*uint64)(p) = bits
	}
}

func bytesAt(a uint64, n int) []byte {
	if n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr(a)), n)
}

func memmove(dst, src uint64, n int) {
	if n <= 0 || dst == src {
		return
	}
	copy(bytesAt(dst, n), bytesAt(src, n))
}

func memset(dst uint64, b byte, n int) {
	buf := bytesAt(dst, n)
	for i := range buf {
		buf[i] = b
	}
}

// LoadScalar reads a scalar of type t from host memory. It is the
// decoding counterpart of StoreScalar used by the host bindings.
func LoadScalar(p unsafe.Pointer, t *TypeDesc) uint64 {
	return loadScalar(addr(p), t.arith())
}

// StoreScalar writes the register image bits of type t to host memory.
func StoreScalar(p unsafe.Pointer, t *TypeDesc, bits uint64) {
	storeScalar(addr(p), t.arith(), bits)
}
