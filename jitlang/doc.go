// Package jitlang translates a restricted subset of Go into jit builder
// calls. The source is a single function literal:
//
//	cf, err := jitlang.Compile(ctx, `func(n int32) int32 {
//		s := int32(0)
//		for i := int32(1); i <= n; i++ {
//			s += i
//		}
//		return s
//	}`, nil)
//
// Supported expressions are literals and constant expressions, names,
// unary and binary operators, conversions T(x), a fixed set of math
// functions, the min and max builtins and calls to functions bound in an
// Env. Supported statements are short variable declarations, var, plain
// and operator assignment, ++ and --, stores through pointers, if/else,
// the three forms of for, break, continue and return.
//
// Everything else is reported as a diagnostic naming the construct. All
// diagnostics of a snippet are collected before Build fails with an
// *Error.
package jitlang
