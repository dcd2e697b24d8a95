package engine

import (
	"errors"
	"fmt"
	"slices"
)

// validate checks the instruction stream before code generation.
func (f *Function) validate() error {
	var errs []error

	// 1. Every referenced label is placed.
	if unresolved := f.unresolvedLabels(); len(unresolved) > 0 {
		errs = append(errs, &CompileError{Func: f.Name(), Labels: unresolved, Err: ErrUnresolvedLabel})
	}

	// 2. Operands and labels belong to this function.
	if err := f.validateOwnership(); err != nil {
		errs = append(errs, err)
	}

	// 3. Returned values fit the signature.
	if err := f.validateReturns(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (f *Function) unresolvedLabels() []Label {
	var out []Label
	for _, in := range f.insns {
		if in.Op == OpLabel {
			continue
		}
		for _, l := range in.Labels {
			if !f.labels[l].placed && !slices.Contains(out, l) {
				out = append(out, l)
			}
		}
	}
	slices.Sort(out)
	return out
}

func (f *Function) validateOwnership() error {
	var errs []error
	for i, in := range f.insns {
		for _, a := range in.Args {
			if a.fn != f && in.Op != OpImport {
				errs = append(errs, fmt.Errorf("insn %d (%s): %w", i, in.Op, ErrForeignValue))
			}
		}
		for _, l := range in.Labels {
			if int(l) >= len(f.labels) {
				errs = append(errs, fmt.Errorf("insn %d (%s): %w: %s", i, in.Op, ErrForeignLabel, l))
			}
		}
	}
	return errors.Join(errs...)
}

func (f *Function) validateReturns() error {
	ret := f.sig.Return()
	var errs []error
	for i, in := range f.insns {
		if in.Op != OpReturn || len(in.Args) == 0 {
			continue
		}
		v := in.Args[0]
		if ret.IsAggregate() != v.typ.IsAggregate() {
			errs = append(errs, fmt.Errorf("insn %d: cannot return %s from a function returning %s", i, v.typ, ret))
			continue
		}
		if ret.IsAggregate() && ret.Size() != v.typ.Size() {
			errs = append(errs, fmt.Errorf("insn %d: returned %s does not match %s", i, v.typ, ret))
		}
	}
	return errors.Join(errs...)
}
