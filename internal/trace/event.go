package trace

import "time"

// Kind tells spans apart from instant events.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

var kindNames = [...]string{KindSpanBegin: "begin", KindSpanEnd: "end", KindPoint: "point"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeTool     Scope = iota + 1 // jitgen commands, generator runs
	ScopeCompile                   // one function compilation
	ScopeFunction                  // calls into compiled code
	ScopeInsn                      // instruction emission
)

var scopeNames = [...]string{
	ScopeTool:     "tool",
	ScopeCompile:  "compile",
	ScopeFunction: "function",
	ScopeInsn:     "insn",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Seq is assigned when the event is built and
// orders events across goroutines.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	Name     string // e.g. "compile:gcd", "apply:gcd"
	Detail   string
	Failure  bool // traps and failed operations pass every level but off
	Extra    map[string]string
}
