package jit

import (
	"jitkit/internal/engine"
	"jitkit/internal/trace"
)

// MaxOptimizationLevel returns the highest optimization level the engine
// supports.
func MaxOptimizationLevel() int { return engine.MaxOptimizationLevel }

// Callable is a function that can be the target of InsnCall.
type Callable interface {
	engineFunction() *engine.Function
}

// UncompiledFunction is a function in the building state. Instructions are
// appended in call order. Compile freezes it; any later building call
// panics with an error wrapping ErrNotBuilding.
type UncompiledFunction struct {
	ctx      *Context
	fn       *engine.Function
	parent   *UncompiledFunction
	pins     []any // host memory referenced by pointer constants
	compiled *CompiledFunction
}

func (f *UncompiledFunction) engineFunction() *engine.Function { return f.fn }

// Context returns the owning context.
func (f *UncompiledFunction) Context() *Context { return f.ctx }

// Parent returns the enclosing function of a nested function.
func (f *UncompiledFunction) Parent() *UncompiledFunction { return f.parent }

func (f *UncompiledFunction) Name() string        { return f.fn.Name() }
func (f *UncompiledFunction) SetName(name string) { f.fn.SetName(name) }

// Signature returns the function signature.
func (f *UncompiledFunction) Signature() Type { return wrap(f.fn.Signature()) }

func (f *UncompiledFunction) NumParams() int { return len(f.fn.Params()) }

// Param returns parameter i. An index outside the signature panics.
func (f *UncompiledFunction) Param(i int) Val {
	v := f.fn.Param(i)
	if v == nil {
		contract("param", "index %d out of range for %s with %d parameters", i, f.Name(), f.NumParams())
	}
	return Val{v}
}

// Params returns all parameters in order.
func (f *UncompiledFunction) Params() []Val {
	ps := f.fn.Params()
	out := make([]Val, len(ps))
	for i, p := range ps {
		out[i] = Val{p}
	}
	return out
}

// NewValue creates a mutable local of type t. Aggregate locals start
// zeroed.
func (f *UncompiledFunction) NewValue(t Type) Val {
	return Val{f.fn.NewValue(t.desc("create value"))}
}

// NewLabel allocates an unplaced label.
func (f *UncompiledFunction) NewLabel() Label { return NewLabel(f) }

// SetOptimizationLevel sets the optimization level used by Compile,
// clamped to MaxOptimizationLevel.
func (f *UncompiledFunction) SetOptimizationLevel(level int) { f.fn.SetOptimizationLevel(level) }

func (f *UncompiledFunction) OptimizationLevel() int { return f.fn.OptimizationLevel() }

// SetRecompilable marks the function as a candidate for recompilation.
func (f *UncompiledFunction) SetRecompilable() { f.fn.SetRecompilable(true) }

func (f *UncompiledFunction) IsRecompilable() bool { return f.fn.IsRecompilable() }

// IsCompiled reports whether Compile succeeded.
func (f *UncompiledFunction) IsCompiled() bool { return f.fn.State() == engine.StateCompiled }

func (f *UncompiledFunction) block(b *engine.Block) Block {
	out := Block{ID: b.ID, Start: b.Start}
	if b.Label != engine.UndefinedLabel {
		out.label = Label{id: b.Label, owner: f.fn}
	}
	return out
}

// Entry returns the entry block.
func (f *UncompiledFunction) Entry() Block { return f.block(f.fn.Entry()) }

// Current returns the block instructions are appended to.
func (f *UncompiledFunction) Current() Block { return f.block(f.fn.Current()) }

// Blocks returns the blocks built so far.
func (f *UncompiledFunction) Blocks() []Block {
	bs := f.fn.Blocks()
	out := make([]Block, len(bs))
	for i := range bs {
		out[i] = f.block(&bs[i])
	}
	return out
}

// OnEmit installs an observer called for every appended instruction,
// labels included. A nil hook removes it.
func (f *UncompiledFunction) OnEmit(hook func(Insn)) {
	if hook == nil {
		f.fn.SetHook(nil)
		return
	}
	f.fn.SetHook(func(in engine.Insn) {
		out := Insn{Op: in.Op.String(), Dest: Val{in.Dest}}
		for _, a := range in.Args {
			out.Args = append(out.Args, Val{a})
		}
		for _, l := range in.Labels {
			out.Labels = append(out.Labels, Label{id: l, owner: f.fn})
		}
		hook(out)
	})
}

// Dump renders the instruction stream.
func (f *UncompiledFunction) Dump() string { return f.fn.Dump() }

func (f *UncompiledFunction) String() string { return f.Dump() }

func (f *UncompiledFunction) pin(v any) { f.pins = append(f.pins, v) }

// Compile validates and compiles the function. A function with a branch
// to a label that was never placed fails with an error wrapping
// ErrUnresolvedLabel and stays in the building state. Compiling twice
// returns the same CompiledFunction.
func (f *UncompiledFunction) Compile() (*CompiledFunction, error) {
	if f.compiled != nil {
		return f.compiled, nil
	}
	if err := f.fn.Compile(); err != nil {
		return nil, err
	}
	f.compiled = &CompiledFunction{ctx: f.ctx, fn: f.fn, pins: f.pins}
	return f.compiled, nil
}

// MustCompile is Compile for functions known to be well formed.
func (f *UncompiledFunction) MustCompile() *CompiledFunction {
	cf, err := f.Compile()
	if err != nil {
		panic(err)
	}
	return cf
}

// Abandon releases a function that will not be compiled.
func (f *UncompiledFunction) Abandon() {
	f.fn.Abandon()
	f.pins = nil
	trace.Point(f.ctx.tracer, trace.ScopeFunction, "abandon", f.Name())
}
