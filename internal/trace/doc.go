// Package trace records what the JIT toolkit is doing: function
// compilation, host calls into compiled code, traps and code generation
// runs.
//
// Tracing is enabled through the JITKIT_TRACE environment variable, the
// jitkit.toml [trace] table, or the jitgen command line:
//
//	jitgen derive --trace=- --trace-level=compile ./...
//
// A StreamTracer writes events as they happen, a RingTracer keeps the
// latest ones for later inspection, and Tee combines tracers. Nop is used
// when tracing is off.
//
// Spans are opened with Begin and closed with End:
//
//	span := trace.Begin(t, trace.ScopeCompile, "compile:"+name, 0)
//	defer span.End("")
//
// Start does the same with the tracer and parent span carried by a
// context.
package trace
