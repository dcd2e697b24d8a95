package diag

import (
	"fmt"
	"go/token"
)

type Note struct {
	Pos token.Position
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Pos      token.Position
	End      token.Position // zero when the finding has no extent
	Notes    []Note
}

func New(sev Severity, code Code, pos token.Position, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Pos: pos, Message: msg}
}

func NewError(code Code, pos token.Position, msg string) Diagnostic {
	return New(SevError, code, pos, msg)
}

// Errorf builds an error diagnostic with a formatted message.
func Errorf(code Code, pos token.Position, format string, args ...any) Diagnostic {
	return New(SevError, code, pos, fmt.Sprintf(format, args...))
}

func (d Diagnostic) WithNote(pos token.Position, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Pos: pos, Msg: msg})
	return d
}

// WithEnd sets the end of the reported extent.
func (d Diagnostic) WithEnd(end token.Position) Diagnostic {
	d.End = end
	return d
}

// Error renders d as "pos: message [CODE]".
func (d Diagnostic) Error() string {
	if d.Pos.IsValid() {
		return fmt.Sprintf("%s: %s [%s]", d.Pos, d.Message, d.Code.ID())
	}
	return fmt.Sprintf("%s [%s]", d.Message, d.Code.ID())
}
