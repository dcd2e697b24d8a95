// Package diag defines the diagnostics reported while generating code:
// findings of the //jit:derive generator and of the jitlang translator.
//
// A Diagnostic carries a severity, a stable code (GEN1001 style), a message
// and a source position. Producers report into a Reporter; Bag collects
// diagnostics so that all findings of a file are reported in one pass.
//
// Rendering lives next to the model: Pretty prints diagnostics with the
// offending source line and a caret, Short prints one line per finding
// for golden files and scripts.
package diag
