//go:build !jitrelease

package jit

// Checked reports whether instruction preconditions are verified.
const Checked = true
