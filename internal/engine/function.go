package engine

import (
	"fmt"
	"strings"
	"sync"

	"jitkit/internal/trace"
)

// State is the lifecycle state of a function.
type State uint8

const (
	StateBuilding State = iota
	StateCompiled
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateCompiled:
		return "compiled"
	case StateAbandoned:
		return "abandoned"
	default:
		return "state?"
	}
}

// MaxOptimizationLevel is the highest optimization level the engine knows.
const MaxOptimizationLevel = 1

func clampOpt(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxOptimizationLevel {
		return MaxOptimizationLevel
	}
	return level
}

// Label names an instruction position inside one function.
type Label uint32

// UndefinedLabel is the label of a block that does not start at a label.
const UndefinedLabel Label = ^Label(0)

func (l Label) String() string {
	if l == UndefinedLabel {
		return "L?"
	}
	return fmt.Sprintf("L%d", uint32(l))
}

type labelInfo struct {
	placed bool
	pos    int // index of the OpLabel instruction
}

// Insn is one emitted instruction.
type Insn struct {
	Op     Op
	Dest   *Value
	Args   []*Value
	Type   *TypeDesc // convert target, memory access type, signature of indirect calls
	Work   Kind      // arithmetic domain
	Offset int
	Labels []Label
	Flags  CallFlags
	Check  bool // overflow-checked conversion
	Callee *Function
	Native Native
	Name   string
}

func (in Insn) String() string {
	var sb strings.Builder
	if in.Op == OpLabel {
		return in.Labels[0].String() + ":"
	}
	sb.WriteString("    ")
	if in.Dest != nil {
		sb.WriteString(in.Dest.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())
	sep := " "
	put := func(s string) {
		sb.WriteString(sep)
		sb.WriteString(s)
		sep = ", "
	}
	switch in.Op {
	case OpCall:
		put(in.Callee.Name())
	case OpCallNative:
		put(in.Name)
	case OpConvert, OpLoadRelative, OpLoadElem, OpLoadElemAddr:
		put(in.Type.String())
	}
	for _, a := range in.Args {
		put(a.String())
	}
	if in.Offset != 0 || in.Op == OpLoadRelative || in.Op == OpStoreRelative || in.Op == OpAddRelative {
		put(fmt.Sprintf("%+d", in.Offset))
	}
	for _, l := range in.Labels {
		put(l.String())
	}
	return sb.String()
}

// Block is a maximal straight-line run of instructions.
type Block struct {
	ID    int
	Start int   // index of the first instruction
	Label Label // label the block starts at, or UndefinedLabel
}

// Function is a function under construction or compiled.
type Function struct {
	ctx    *Context
	name   string
	sig    *TypeDesc
	parent *Function

	mu           sync.Mutex
	state        State
	optLevel     int
	recompilable bool
	usesCatcher  bool

	values []*Value
	params []*Value
	insns  []Insn
	labels []labelInfo
	blocks []Block
	owned  []*TypeDesc
	hook   func(Insn)

	code   *program
	handle uint64
}

// NewFunction creates a function with the given signature.
func (c *Context) NewFunction(sig *TypeDesc) *Function {
	return c.newFunction(sig, nil)
}

// NewNestedFunction creates a function that can import values from the
// frames of parent.
func (c *Context) NewNestedFunction(sig *TypeDesc, parent *Function) *Function {
	return c.newFunction(sig, parent)
}

func (c *Context) newFunction(sig *TypeDesc, parent *Function) *Function {
	if sig == nil || sig.kind != KindSignature {
		usage("create function", ErrBadSignature, "not a signature: ", sig)
	}
	c.mu.Lock()
	opt := c.optLevel
	c.mu.Unlock()
	f := &Function{
		ctx:      c,
		sig:      Copy(sig),
		parent:   parent,
		optLevel: opt,
		blocks:   []Block{{ID: 0, Start: 0, Label: UndefinedLabel}},
	}
	for i := range sig.NumParams() {
		v := f.newValue(sig.Param(i), ValueParam)
		v.param = i
		f.params = append(f.params, v)
	}
	c.register(f)
	return f
}

func (f *Function) Context() *Context    { return f.ctx }
func (f *Function) Signature() *TypeDesc { return f.sig }
func (f *Function) Parent() *Function    { return f.parent }

func (f *Function) Name() string {
	if f.name == "" {
		return fmt.Sprintf("fn%p", f)
	}
	return f.name
}

func (f *Function) SetName(name string) { f.name = name }

func (f *Function) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Function) OptimizationLevel() int { return f.optLevel }

// SetOptimizationLevel clamps level to [0, MaxOptimizationLevel].
func (f *Function) SetOptimizationLevel(level int) { f.optLevel = clampOpt(level) }

func (f *Function) SetRecompilable(on bool) { f.recompilable = on }
func (f *Function) IsRecompilable() bool    { return f.recompilable }

// MarkUsesCatcher records that the function installs an exception catcher.
func (f *Function) MarkUsesCatcher() {
	f.building("uses_catcher")
	f.usesCatcher = true
}

func (f *Function) UsesCatcher() bool { return f.usesCatcher }

// SetHook installs a callback invoked for every emitted instruction.
func (f *Function) SetHook(h func(Insn)) { f.hook = h }

// Params returns the parameter values.
func (f *Function) Params() []*Value { return f.params }

// Param returns parameter i or nil when i is out of range.
func (f *Function) Param(i int) *Value {
	if i < 0 || i >= len(f.params) {
		return nil
	}
	return f.params[i]
}

// Insns returns the emitted instructions.
func (f *Function) Insns() []Insn { return f.insns }

// Entry returns the entry block.
func (f *Function) Entry() *Block { return &f.blocks[0] }

// Current returns the block instructions are being appended to.
func (f *Function) Current() *Block { return &f.blocks[len(f.blocks)-1] }

// Blocks returns all blocks in emission order.
func (f *Function) Blocks() []Block { return f.blocks }

// Dump renders the instruction stream.
func (f *Function) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s%s [%s]\n", f.Name(), strings.TrimPrefix(f.sig.String(), "func"), f.State())
	for _, in := range f.insns {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Abandon releases the function. Abandoned functions cannot be built,
// compiled or called.
func (f *Function) Abandon() {
	f.mu.Lock()
	if f.state == StateAbandoned {
		f.mu.Unlock()
		return
	}
	f.state = StateAbandoned
	owned := f.owned
	f.owned = nil
	f.code = nil
	h := f.handle
	f.mu.Unlock()
	if h != 0 {
		releaseHandle(h)
	}
	for _, t := range owned {
		Free(t)
	}
	Free(f.sig)
}

func (f *Function) building(op string) {
	f.mu.Lock()
	st := f.state
	f.mu.Unlock()
	if st != StateBuilding {
		usage(op, ErrNotBuilding, f.Name(), " is ", st)
	}
}

func (f *Function) own(op string, vs ...*Value) {
	for _, v := range vs {
		if v == nil {
			usage(op, ErrForeignValue, "nil value")
		}
		if v.fn != f {
			usage(op, ErrForeignValue, v.String(), " is not a value of ", f.Name())
		}
	}
}

func (f *Function) keep(t *TypeDesc) *TypeDesc {
	f.owned = append(f.owned, t)
	return t
}

func (f *Function) newValue(t *TypeDesc, k ValueKind) *Value {
	v := &Value{fn: f, id: len(f.values), typ: t, kind: k}
	f.values = append(f.values, v)
	return v
}

// NewValue creates a mutable local of type t.
func (f *Function) NewValue(t *TypeDesc) *Value {
	f.building("create_value")
	return f.newValue(t, ValueLocal)
}

func (f *Function) temp(t *TypeDesc) *Value { return f.newValue(t, ValueTemp) }

// Const creates a constant from a register image.
func (f *Function) Const(t *TypeDesc, bits uint64) *Value {
	f.building("const")
	v := f.newValue(t, ValueConst)
	v.bits = mask(t.arith(), bits)
	return v
}

// ConstInt creates an integer constant, converted to t.
func (f *Function) ConstInt(t *TypeDesc, x int64) *Value { return f.Const(t, fromInt(t.arith(), x)) }

// ConstUint creates an unsigned constant, converted to t.
func (f *Function) ConstUint(t *TypeDesc, x uint64) *Value {
	return f.Const(t, fromUint(t.arith(), x))
}

// ConstFloat creates a floating point constant, converted to t.
func (f *Function) ConstFloat(t *TypeDesc, x float64) *Value {
	return f.Const(t, fromFloat(t.arith(), x))
}

// NewLabel allocates an unplaced label.
func (f *Function) NewLabel() Label {
	f.labels = append(f.labels, labelInfo{})
	return Label(len(f.labels) - 1)
}

// LabelPlaced reports whether l has been placed.
func (f *Function) LabelPlaced(l Label) bool {
	return int(l) < len(f.labels) && f.labels[l].placed
}

func (f *Function) checkLabel(op string, l Label) {
	if int(l) >= len(f.labels) {
		usage(op, ErrForeignLabel, l.String())
	}
}

// PlaceLabel binds l to the current position.
func (f *Function) PlaceLabel(l Label) error {
	f.building("label")
	f.checkLabel("label", l)
	if f.labels[l].placed {
		return fmt.Errorf("place %s: %w", l, ErrLabelPlaced)
	}
	f.labels[l] = labelInfo{placed: true, pos: len(f.insns)}
	f.emit(Insn{Op: OpLabel, Labels: []Label{l}})
	return nil
}

func (f *Function) emit(in Insn) {
	f.building(in.Op.String())
	cur := &f.blocks[len(f.blocks)-1]
	n := len(f.insns)
	if n > 0 && (f.insns[n-1].Op.IsTerminator() || in.Op == OpLabel) && !(cur.Start == n) {
		f.blocks = append(f.blocks, Block{ID: len(f.blocks), Start: n, Label: UndefinedLabel})
		cur = &f.blocks[len(f.blocks)-1]
	}
	if in.Op == OpLabel && cur.Start == n && cur.Label == UndefinedLabel {
		cur.Label = in.Labels[0]
	}
	f.insns = append(f.insns, in)
	if f.hook != nil {
		f.hook(in)
	}
	if t := f.ctx.Tracer(); t.Enabled() && t.Level().ShouldEmit(trace.ScopeInsn) {
		trace.Point(t, trace.ScopeInsn, "emit:"+in.Op.String(), f.Name())
	}
}
