package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func nextSeq() uint64 { return seqCounter.Add(1) }

// Span is an open Begin event waiting for its End. A Span returned for a
// disabled tracer or a filtered scope is inert.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

var inert = &Span{tracer: Nop}

// Begin opens a span under parent, 0 for a root span.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return inert
	}
	s := &Span{
		tracer:  t,
		id:      spanCounter.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

// Start opens a span on the tracer of ctx, as a child of the span ctx
// carries, and returns a context carrying the new span.
func Start(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	s := Begin(FromContext(ctx), scope, name, ParentID(ctx))
	if s == inert {
		return s, ctx
	}
	return s, context.WithValue(ctx, spanKey{}, s.id)
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	ev := &Event{
		Time:     at,
		Seq:      nextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
	}
	if kind == KindSpanEnd {
		ev.Extra = s.extra
	}
	return ev
}

// End emits the end event and returns the time since Begin.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	now := time.Now()
	s.tracer.Emit(s.event(KindSpanEnd, now, detail))
	return now.Sub(s.started)
}

// WithExtra records key=value on the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 1)
	}
	s.extra[key] = value
	return s
}

// ID returns 0 for inert spans.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func point(t Tracer, scope Scope, name, detail string, failure bool) {
	if t == nil || !t.Enabled() {
		return
	}
	t.Emit(&Event{
		Time:    time.Now(),
		Seq:     nextSeq(),
		Kind:    KindPoint,
		Scope:   scope,
		Name:    name,
		Detail:  detail,
		Failure: failure,
	})
}

// Point emits an instant event.
func Point(t Tracer, scope Scope, name, detail string) {
	point(t, scope, name, detail, false)
}

// Failure emits an instant event for err, recorded at every level but off.
func Failure(t Tracer, scope Scope, name string, err error) {
	if err != nil {
		point(t, scope, name, err.Error(), true)
	}
}
