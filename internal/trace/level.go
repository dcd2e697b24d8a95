package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff      Level = iota // no tracing
	LevelError                 // failures only
	LevelCompile               // tool and compile boundaries
	LevelFunction              // calls into compiled code
	LevelDebug                 // everything including emitted instructions
)

var levelNames = [...]string{"off", "error", "compile", "function", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the names printed by Level.String; the empty string
// means off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level %q (want %s)", s, strings.Join(levelNames[:], "|"))
}

// ceiling is the finest scope recorded at l.
func (l Level) ceiling() Scope {
	switch l {
	case LevelCompile:
		return ScopeCompile
	case LevelFunction:
		return ScopeFunction
	case LevelDebug:
		return ScopeInsn
	}
	return 0
}

// ShouldEmit reports whether ordinary events of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	return scope != 0 && scope <= l.ceiling()
}

// Accepts reports whether a tracer at level l records ev.
func (l Level) Accepts(ev *Event) bool {
	if ev.Failure {
		return l > LevelOff
	}
	return l.ShouldEmit(ev.Scope)
}
