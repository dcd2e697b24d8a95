// Package derive holds the derivation rules shared by the runtime
// reflection path of package jit and the jitgen source generator: which
// declarations can be mapped, the order fields are laid out in and the
// offsets they are written at.
package derive

import (
	"errors"
	"fmt"
)

// Fixed generation-time messages.
const (
	MsgNotPacked     = "jit-compatible structs must be packed, mark with //jit:derive packed to fix"
	MsgNotCompatible = "only structs and integer enums can be compatible with the JIT"
)

// Stable diagnostic codes for the messages above.
const (
	CodeNotPacked     = "GEN3001"
	CodeNotCompatible = "GEN3002"
)

var (
	// ErrNotPacked rejects a record without a packed layout marker.
	ErrNotPacked = errors.New(MsgNotPacked)
	// ErrNotCompatible rejects anything that is neither a record nor an
	// integer enumeration.
	ErrNotCompatible = errors.New(MsgNotCompatible)
)

// Shape classifies a declaration offered for derivation.
type Shape uint8

const (
	ShapeOther Shape = iota
	ShapeRecord
	ShapeIntEnum
)

// Field is one record member as seen by a derivation front end.
type Field struct {
	Name string
	Size int
}

// Member is a field with its assigned offset.
type Member struct {
	Index  int
	Name   string
	Offset int
	Size   int
}

// Plan is the layout of a derived record.
type Plan struct {
	Name    string
	Members []Member
	Size    int
	Named   bool // every member has a name
}

// Record lays fields out in declaration order at flat offsets: the first
// field at zero, every later field at the running sum of the sizes before
// it. The result matches a packed struct descriptor.
func Record(name string, fields []Field, packed bool) (Plan, error) {
	if !packed {
		return Plan{}, fmt.Errorf("%s: %w", name, ErrNotPacked)
	}
	p := Plan{Name: name, Members: make([]Member, len(fields)), Named: true}
	offset := 0
	for i, f := range fields {
		p.Members[i] = Member{Index: i, Name: f.Name, Offset: offset, Size: f.Size}
		offset += f.Size
		if f.Name == "" || f.Name == "_" {
			p.Named = false
		}
	}
	p.Size = offset
	return p, nil
}

// Check validates the shape of a declaration and its layout marker.
func Check(name string, shape Shape, packed bool) error {
	switch shape {
	case ShapeRecord:
		if !packed {
			return fmt.Errorf("%s: %w", name, ErrNotPacked)
		}
		return nil
	case ShapeIntEnum:
		return nil
	default:
		return fmt.Errorf("%s: %w", name, ErrNotCompatible)
	}
}

// Names returns the member names of p, or nil when p is not fully named.
func (p Plan) Names() []string {
	if !p.Named {
		return nil
	}
	out := make([]string, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.Name
	}
	return out
}

// Offsets returns the member offsets of p in declaration order.
func (p Plan) Offsets() []int {
	out := make([]int, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.Offset
	}
	return out
}
