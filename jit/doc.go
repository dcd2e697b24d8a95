// Package jit builds, compiles and runs functions at runtime.
//
// Types are described by reference counted descriptors (Type). Host Go
// types map onto descriptors through Get and TypeOf, and values of those
// types are lowered into a function under construction with InsnOf.
// Function bodies are assembled instruction by instruction on an
// UncompiledFunction, optionally through the structured helpers BuildIf,
// BuildWhile and friends, then frozen with Compile:
//
//	ctx, _ := jit.NewContext()
//	defer ctx.Close()
//	f := ctx.NewFunction(jit.Get[func(int32, int32) int32]())
//	f.InsnReturn(f.InsnAdd(f.Param(0), f.Param(1)))
//	cf, err := f.Compile()
//	if err != nil { ... }
//	var sum int32
//	err = cf.Apply(&sum, int32(3), int32(4)) // sum == 7
//
// Instruction preconditions (operand classes, apply argument counts) are
// checked unless the package is built with the jitrelease tag.
package jit
