package gen

import (
	"bytes"
	"fmt"
	"go/types"
	"path"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"
)

// Header starts every generated file.
const Header = "// Code generated by jitgen derive. DO NOT EDIT."

// importSet names the packages a generated file refers to. Two packages
// with the same name get numbered aliases.
type importSet struct {
	self   *types.Package
	byPath map[string]string // path -> local name
	used   map[string]bool   // local names
}

func newImportSet(self *types.Package) *importSet {
	return &importSet{self: self, byPath: make(map[string]string), used: make(map[string]bool)}
}

func (s *importSet) add(importPath, name string) string {
	if local, ok := s.byPath[importPath]; ok {
		return local
	}
	local := name
	for i := 2; s.used[local]; i++ {
		local = name + strconv.Itoa(i)
	}
	s.byPath[importPath] = local
	s.used[local] = true
	return local
}

func (s *importSet) qualifier(p *types.Package) string {
	if p == s.self {
		return ""
	}
	return s.add(p.Path(), p.Name())
}

func (s *importSet) write(buf *bytes.Buffer) {
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	buf.WriteString("import (\n")
	for _, p := range paths {
		if local := s.byPath[p]; local != path.Base(p) {
			fmt.Fprintf(buf, "\t%s %q\n", local, p)
		} else {
			fmt.Fprintf(buf, "\t%q\n", p)
		}
	}
	buf.WriteString(")\n\n")
}

// Emit renders the generated methods of items as a formatted Go file of
// package pkg. filename is only used in error messages.
func Emit(pkg *types.Package, items []Item, jitPath, filename string) ([]byte, error) {
	if jitPath == "" {
		jitPath = DefaultJITPath
	}
	im := newImportSet(pkg)
	// reserve the names the generated code uses unqualified
	jit := im.add(jitPath, "jit")
	e := &emitter{im: im, jit: jit}

	var body bytes.Buffer
	for _, it := range items {
		switch it.Kind {
		case KindEnum:
			e.enum(&body, it)
		case KindRecord:
			e.record(&body, it)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(Header + "\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg.Name())
	im.write(&buf)
	buf.Write(body.Bytes())

	out, err := imports.Process(filename, buf.Bytes(), &imports.Options{Comments: true, TabIndent: true, TabWidth: 8, FormatOnly: true})
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", filename, err)
	}
	return out, nil
}

type emitter struct {
	im  *importSet
	jit string
}

func (e *emitter) typeString(t types.Type) string {
	s := types.TypeString(t, e.im.qualifier)
	if strings.Contains(s, "unsafe.Pointer") {
		e.im.add("unsafe", "unsafe")
	}
	return s
}

func (e *emitter) enum(buf *bytes.Buffer, it Item) {
	recv := it.Receiver()
	fmt.Fprintf(buf, "// JITType returns the descriptor of %s, the one of %s.\n", it.Name, it.Repr)
	fmt.Fprintf(buf, "func (%s) JITType() %s.Type { return %s.Get[%s]() }\n\n", recv, e.jit, e.jit, it.Repr)
	fmt.Fprintf(buf, "// Compile lowers v as a %s constant.\n", it.Repr)
	fmt.Fprintf(buf, "func (v %s) Compile(f *%s.UncompiledFunction) %s.Val { return %s.Of(f, %s(v)) }\n\n", recv, e.jit, e.jit, e.jit, it.Repr)
}

// desc returns the expression of the descriptor of f.
func (e *emitter) desc(f Field) string {
	if f.Opaque {
		return e.jit + ".TypeVoidPtr"
	}
	return fmt.Sprintf("%s.Get[%s]()", e.jit, e.typeString(f.Type))
}

// value returns the expression of the Go value stored for f.
func (e *emitter) value(f Field) string {
	switch {
	case f.Blank():
		return fmt.Sprintf("*new(%s)", e.typeString(f.Type))
	case f.Opaque:
		return fmt.Sprintf("%s.Pointer(v.%s)", e.im.add("unsafe", "unsafe"), f.Name)
	}
	return "v." + f.Name
}

func (e *emitter) record(buf *bytes.Buffer, it Item) {
	recv := it.Receiver()
	j := e.jit

	fmt.Fprintf(buf, "// JITType returns the packed struct descriptor of %s.\n", it.Name)
	fmt.Fprintf(buf, "func (%s) JITType() %s.Type {\n", recv, j)
	if len(it.Fields) == 0 {
		fmt.Fprintf(buf, "\treturn %s.TypeVoid\n}\n\n", j)
	} else {
		fmt.Fprintf(buf, "\treturn %s.Derived[%s](func() %s.Type {\n", j, recv, j)
		fmt.Fprintf(buf, "\t\tt := %s.NewPackedStruct(\n", j)
		for _, f := range it.Fields {
			fmt.Fprintf(buf, "\t\t\t%s,\n", e.desc(f))
		}
		buf.WriteString("\t\t)\n")
		if len(it.Names) > 0 {
			quoted := make([]string, len(it.Names))
			for i, n := range it.Names {
				quoted[i] = strconv.Quote(n)
			}
			fmt.Fprintf(buf, "\t\tt.SetNames(%s)\n", strings.Join(quoted, ", "))
		}
		buf.WriteString("\t\treturn t\n\t})\n}\n\n")
	}

	fmt.Fprintf(buf, "// Compile stores the fields of v into a new %s value of f.\n", it.Name)
	fmt.Fprintf(buf, "func (v %s) Compile(f *%s.UncompiledFunction) %s.Val {\n", recv, j, j)
	buf.WriteString("\tout := f.NewValue(v.JITType())\n")
	if len(it.Fields) > 0 {
		buf.WriteString("\tp := f.InsnAddressOf(out)\n\toffset := 0\n")
		for i, f := range it.Fields {
			fmt.Fprintf(buf, "\tf.InsnStoreRelative(p, offset, %s.Of(f, %s))\n", j, e.value(f))
			if i < len(it.Fields)-1 {
				fmt.Fprintf(buf, "\toffset += %s.Size()\n", e.desc(f))
			}
		}
	}
	buf.WriteString("\treturn out\n}\n\n")
}
