package directive

import (
	"go/ast"
	"go/token"
	"strings"
)

// Prefix starts every directive comment. There is no space after the
// slashes, the same as //go: directives.
const Prefix = "//jit:"

// Directive is one //jit:<namespace> [args...] comment line.
type Directive struct {
	// Namespace is the word after the prefix, e.g. "derive".
	Namespace string
	// Args are the space separated words after the namespace.
	Args []string
	// Pos is the position of the comment.
	Pos token.Pos
}

// Has reports whether arg appears among the arguments of d.
func (d Directive) Has(arg string) bool {
	for _, a := range d.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// Parse parses a single comment. ok is false for comments that are not
// directives.
func Parse(c *ast.Comment) (d Directive, ok bool) {
	rest, found := strings.CutPrefix(c.Text, Prefix)
	if !found {
		return Directive{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 || rest[0] == ' ' {
		return Directive{}, false
	}
	return Directive{Namespace: fields[0], Args: fields[1:], Pos: c.Slash}, true
}

// FromGroup returns the directives of cg in source order.
func FromGroup(cg *ast.CommentGroup) []Directive {
	if cg == nil {
		return nil
	}
	var out []Directive
	for _, c := range cg.List {
		if d, ok := Parse(c); ok {
			out = append(out, d)
		}
	}
	return out
}

// Scenario is a directive attached to a declaration.
type Scenario struct {
	Directive

	// Index is the sequential number of this scenario within its namespace
	// in the source file.
	Index int

	// SourceFile is the path of the file containing the directive.
	SourceFile string

	// Decl is the declaration the directive documents.
	Decl ast.Decl

	// Spec is the type spec the directive documents, nil when the
	// directive sits on something other than a type declaration.
	Spec *ast.TypeSpec
}

// Name returns the declared name the scenario refers to, or "" when it
// has none.
func (s *Scenario) Name() string {
	if s.Spec != nil {
		return s.Spec.Name.Name
	}
	switch d := s.Decl.(type) {
	case *ast.FuncDecl:
		return d.Name.Name
	case *ast.GenDecl:
		if len(d.Specs) == 1 {
			if vs, ok := d.Specs[0].(*ast.ValueSpec); ok && len(vs.Names) == 1 {
				return vs.Names[0].Name
			}
		}
	}
	return ""
}
