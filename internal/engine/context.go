package engine

import (
	"sync"

	"jitkit/internal/trace"
)

// Context owns functions. Building functions concurrently in one context
// requires the build lock.
type Context struct {
	buildMu sync.Mutex

	mu        sync.Mutex
	funcs     []*Function
	destroyed bool
	tracer    trace.Tracer
	optLevel  int
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{tracer: trace.Nop}
}

// BuildStart acquires the build lock.
func (c *Context) BuildStart() { c.buildMu.Lock() }

// BuildEnd releases the build lock.
func (c *Context) BuildEnd() { c.buildMu.Unlock() }

// SetTracer routes compile, call and trap events to t.
func (c *Context) SetTracer(t trace.Tracer) {
	if t == nil {
		t = trace.Nop
	}
	c.mu.Lock()
	c.tracer = t
	c.mu.Unlock()
}

// Tracer returns the context tracer.
func (c *Context) Tracer() trace.Tracer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracer
}

// SetDefaultOptimizationLevel sets the level given to new functions.
func (c *Context) SetDefaultOptimizationLevel(level int) {
	c.mu.Lock()
	c.optLevel = clampOpt(level)
	c.mu.Unlock()
}

// Destroy abandons every function of the context. Compiled code of
// destroyed functions can no longer be called.
func (c *Context) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	funcs := c.funcs
	c.funcs = nil
	c.mu.Unlock()
	for _, f := range funcs {
		f.Abandon()
	}
}

// Destroyed reports whether Destroy was called.
func (c *Context) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Functions returns the live functions of the context in creation order.
func (c *Context) Functions() []*Function {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Function, len(c.funcs))
	copy(out, c.funcs)
	return out
}

func (c *Context) register(f *Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
}
