package jit

import "jitkit/internal/engine"

// Val is a value inside a function being built: a temporary, a local, a
// parameter or a constant. It is only meaningful to the function that
// produced it.
type Val struct {
	v *engine.Value
}

// IsValid reports whether v refers to a value.
func (v Val) IsValid() bool { return v.v != nil }

// Type returns the descriptor of v.
func (v Val) Type() Type {
	if v.v == nil {
		return Type{}
	}
	return wrap(v.v.Type())
}

func (v Val) IsConstant() bool { return v.v != nil && v.v.IsConstant() }
func (v Val) IsParam() bool    { return v.v != nil && v.v.IsParam() }

func (v Val) String() string {
	if v.v == nil {
		return "<invalid>"
	}
	return v.v.String()
}

func vals(vs []Val) []*engine.Value {
	out := make([]*engine.Value, len(vs))
	for i, v := range vs {
		out[i] = v.v
	}
	return out
}

// Label is a branch target inside one function. A Label is placed exactly
// once with InsnLabel and may be referenced by branches before or after
// its placement.
type Label struct {
	id    engine.Label
	owner *engine.Function
}

// NewLabel allocates an unplaced label in f.
func NewLabel(f *UncompiledFunction) Label {
	return Label{id: f.fn.NewLabel(), owner: f.fn}
}

// IsValid reports whether l was allocated.
func (l Label) IsValid() bool { return l.owner != nil }

func (l Label) String() string {
	if l.owner == nil {
		return "<invalid>"
	}
	return l.id.String()
}

// Block is a basic block of a function being built.
type Block struct {
	ID    int
	Start int // index of the first instruction
	label Label
}

// Label returns the label the block starts at, if any.
func (b Block) Label() (Label, bool) { return b.label, b.label.IsValid() }

// Insn describes an emitted instruction for OnEmit observers.
type Insn struct {
	Op     string
	Dest   Val
	Args   []Val
	Labels []Label
}

func (in Insn) String() string {
	s := in.Op
	for i, a := range in.Args {
		if i == 0 {
			s += " "
		} else {
			s += ", "
		}
		s += a.String()
	}
	return s
}
