package jit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"jitkit/internal/config"
	"jitkit/internal/engine"
	"jitkit/internal/trace"
)

// Context owns functions and the host callbacks they reference. Closing
// the context abandons every function created in it.
type Context struct {
	eng    *engine.Context
	tracer trace.Tracer
	owns   bool // tracer was opened by the context

	mu       sync.Mutex
	closed   bool
	releases []func()
}

// Option configures a Context.
type Option func(*options) error

type options struct {
	cfg    config.Config
	tracer trace.Tracer
	output io.Writer
}

// WithOptimizationLevel sets the default optimization level of new
// functions.
func WithOptimizationLevel(level int) Option {
	return func(o *options) error {
		if level < 0 {
			return fmt.Errorf("optimization level %d: %w", level, config.ErrOptLevel)
		}
		o.cfg.JIT.OptLevel = level
		return nil
	}
}

// WithTrace streams trace events of the given level (off, error, compile,
// function or debug) to w.
func WithTrace(w io.Writer, level string) Option {
	return func(o *options) error {
		if _, err := trace.ParseLevel(level); err != nil {
			return err
		}
		o.cfg.Trace.Level = level
		o.output = w
		return nil
	}
}

// WithTracer routes trace events to t. The context does not close t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = t
		return nil
	}
}

// WithConfigFile applies a jitkit.toml file.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// NewContext creates a context. The JITKIT_TRACE and JITKIT_OPT_LEVEL
// environment variables are applied before the options.
func NewContext(opts ...Option) (*Context, error) {
	o := options{cfg: config.Default()}
	if err := o.cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	c := &Context{eng: engine.NewContext(), tracer: o.tracer}
	if c.tracer == nil {
		tc, err := o.cfg.TraceConfig()
		if err != nil {
			return nil, err
		}
		if o.output != nil {
			// the caller keeps ownership of w
			tc.Output = struct{ io.Writer }{o.output}
		}
		t, err := trace.New(tc)
		if err != nil {
			return nil, err
		}
		c.tracer, c.owns = t, true
	}
	c.eng.SetTracer(c.tracer)
	c.eng.SetDefaultOptimizationLevel(o.cfg.JIT.OptLevel)
	trace.Point(c.tracer, trace.ScopeTool, "context", fmt.Sprintf("opt=%d", o.cfg.JIT.OptLevel))
	return c, nil
}

// Close abandons every function of the context and releases the host
// callbacks registered through it.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	releases := c.releases
	c.releases = nil
	c.mu.Unlock()

	c.eng.Destroy()
	for _, r := range releases {
		r()
	}
	var err error
	if c.owns {
		err = errors.Join(c.tracer.Flush(), c.tracer.Close())
	}
	return err
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Lock acquires the build lock. Functions of one context built from
// several goroutines must be built under it.
func (c *Context) Lock() { c.eng.BuildStart() }

// Unlock releases the build lock.
func (c *Context) Unlock() { c.eng.BuildEnd() }

// Build runs fn under the build lock.
func (c *Context) Build(fn func()) {
	c.Lock()
	defer c.Unlock()
	fn()
}

// Tracer returns the tracer lifecycle events of the context go to.
func (c *Context) Tracer() trace.Tracer { return c.tracer }

// Functions returns the number of live functions in the context.
func (c *Context) Functions() int { return len(c.eng.Functions()) }

func (c *Context) checkOpen(op string) {
	if c.Closed() {
		panic(fmt.Errorf("%s: %w", op, ErrClosed))
	}
}

// onClose registers a release hook. When the context is already closed the
// hook runs immediately.
func (c *Context) onClose(release func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		release()
		return
	}
	c.releases = append(c.releases, release)
	c.mu.Unlock()
}

// NewFunction starts building a function with the given signature.
func (c *Context) NewFunction(sig Type) *UncompiledFunction {
	c.checkOpen("new function")
	expectSignature("new function", sig)
	f := &UncompiledFunction{ctx: c, fn: c.eng.NewFunction(sig.d)}
	trace.Point(c.tracer, trace.ScopeFunction, "new function", f.fn.Name())
	return f
}

// NewNestedFunction starts building a function nested in parent. The
// nested function may import values of parent and must be called from it.
func (c *Context) NewNestedFunction(sig Type, parent *UncompiledFunction) *UncompiledFunction {
	c.checkOpen("new nested function")
	expectSignature("new nested function", sig)
	if parent == nil || parent.ctx != c {
		contract("new nested function", "parent belongs to another context")
	}
	f := &UncompiledFunction{ctx: c, fn: c.eng.NewNestedFunction(sig.d, parent.fn), parent: parent}
	trace.Point(c.tracer, trace.ScopeFunction, "new nested function", f.fn.Name())
	return f
}

// NewFunc starts building a function whose signature is derived from the
// Go function type F.
func NewFunc[F any](c *Context) *UncompiledFunction {
	return c.NewFunction(Get[F]())
}

// NativePointer exposes a host function as a function pointer callable
// with InsnCallIndirect. The pointer stays valid until the context is
// closed.
func (c *Context) NativePointer(fn NativeFunc, sig Type) uintptr {
	c.checkOpen("native pointer")
	expectSignature("native pointer", sig)
	h, release := engine.RegisterNative(fn, sig.d)
	c.onClose(release)
	return uintptr(h)
}

func expectSignature(op string, sig Type) {
	if !sig.IsValid() || !sig.IsSignature() {
		panic(&ContractError{Op: op, Want: "signature", Got: sig.String()})
	}
}
