package jit

// Structured control flow over labels and branches. Each helper calls its
// closures exactly once, while the code is being generated; the closures
// emit instructions, they do not run per loop iteration.

// BuildIf emits body guarded by cond:
//
//	branch_if_not cond, end
//	body
//	end:
func (f *UncompiledFunction) BuildIf(cond Val, body func()) {
	end := f.NewLabel()
	f.InsnBranchIfNot(cond, end)
	body()
	f.InsnLabel(end)
}

// BuildIfNot emits body guarded by the negation of cond.
func (f *UncompiledFunction) BuildIfNot(cond Val, body func()) {
	end := f.NewLabel()
	f.InsnBranchIf(cond, end)
	body()
	f.InsnLabel(end)
}

// BuildIfElse emits:
//
//	branch_if_not cond, else
//	then
//	branch end
//	else:
//	otherwise
//	end:
func (f *UncompiledFunction) BuildIfElse(cond Val, then, otherwise func()) {
	elseL, end := f.NewLabel(), f.NewLabel()
	f.InsnBranchIfNot(cond, elseL)
	then()
	f.InsnBranch(end)
	f.InsnLabel(elseL)
	otherwise()
	f.InsnLabel(end)
}

// BuildWhile emits a loop testing cond before every iteration:
//
//	start:
//	cond
//	branch_if_not cond, end
//	body
//	branch start
//	end:
func (f *UncompiledFunction) BuildWhile(cond func() Val, body func()) {
	start, end := f.NewLabel(), f.NewLabel()
	f.InsnLabel(start)
	f.InsnBranchIfNot(cond(), end)
	body()
	f.InsnBranch(start)
	f.InsnLabel(end)
}

// BuildDoWhile emits a loop testing cond after every iteration:
//
//	start:
//	body
//	cond
//	branch_if cond, start
func (f *UncompiledFunction) BuildDoWhile(body func(), cond func() Val) {
	start := f.NewLabel()
	f.InsnLabel(start)
	body()
	f.InsnBranchIf(cond(), start)
}

// BuildFor is BuildWhile with post emitted after body.
func (f *UncompiledFunction) BuildFor(cond func() Val, post func(), body func()) {
	f.BuildWhile(cond, func() {
		body()
		if post != nil {
			post()
		}
	})
}

// BuildLoop emits a loop without a condition. body receives the label
// placed after the loop; branching to it leaves the loop.
func (f *UncompiledFunction) BuildLoop(body func(exit Label)) {
	start, exit := f.NewLabel(), f.NewLabel()
	f.InsnLabel(start)
	body(exit)
	f.InsnBranch(start)
	f.InsnLabel(exit)
}
