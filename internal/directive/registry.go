package directive

import (
	"go/ast"
	"go/token"
	"sync"
)

// Registry collects the directives found in a set of files, indexed by
// namespace.
type Registry struct {
	mu          sync.Mutex
	scenarios   []Scenario
	byNamespace map[string][]int // namespace -> indices into scenarios
}

// NewRegistry creates an empty directive registry.
func NewRegistry() *Registry {
	return &Registry{
		scenarios:   make([]Scenario, 0),
		byNamespace: make(map[string][]int),
	}
}

// Add registers a scenario.
func (r *Registry) Add(scenario *Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := len(r.scenarios)
	r.scenarios = append(r.scenarios, *scenario)
	r.byNamespace[scenario.Namespace] = append(r.byNamespace[scenario.Namespace], idx)
}

// All returns all registered scenarios.
func (r *Registry) All() []Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Scenario(nil), r.scenarios...)
}

// FilterByNamespace returns scenarios matching any of the given namespaces.
// If namespaces is empty, returns all scenarios.
func (r *Registry) FilterByNamespace(namespaces ...string) []Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(namespaces) == 0 {
		return append([]Scenario(nil), r.scenarios...)
	}
	allowed := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		allowed[ns] = true
	}
	var result []Scenario
	for _, s := range r.scenarios {
		if allowed[s.Namespace] {
			result = append(result, s)
		}
	}
	return result
}

// Count returns the number of scenarios in namespace.
func (r *Registry) Count(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byNamespace[namespace])
}

// Len returns the total number of scenarios.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scenarios)
}

// CollectFromFile registers every directive in the doc comments of the
// top-level declarations of file. A directive on a parenthesized type
// group applies to a group with a single spec; directives on the specs
// themselves are read from their own doc comments.
func (r *Registry) CollectFromFile(fset *token.FileSet, file *ast.File) {
	sourceFile := fset.Position(file.Package).Filename
	namespaceIndex := make(map[string]int)
	add := func(d Directive, decl ast.Decl, spec *ast.TypeSpec) {
		idx := namespaceIndex[d.Namespace]
		namespaceIndex[d.Namespace]++
		r.Add(&Scenario{Directive: d, Index: idx, SourceFile: sourceFile, Decl: decl, Spec: spec})
	}

	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.FuncDecl:
			for _, d := range FromGroup(decl.Doc) {
				add(d, decl, nil)
			}
		case *ast.GenDecl:
			var only *ast.TypeSpec
			if decl.Tok == token.TYPE && len(decl.Specs) == 1 {
				only = decl.Specs[0].(*ast.TypeSpec)
			}
			for _, d := range FromGroup(decl.Doc) {
				add(d, decl, only)
			}
			if !decl.Lparen.IsValid() {
				continue
			}
			for _, spec := range decl.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				for _, d := range FromGroup(ts.Doc) {
					add(d, decl, ts)
				}
			}
		}
	}
}
