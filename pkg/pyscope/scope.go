// Package pyscope builds the scope graph of a parsed Python module.
//
// Analyze records every name binding (imports, assignments, parameters,
// definitions and the other binding forms) and every name read, then resolves
// each read to the bindings it can observe under Python's LEGB rules. Class
// scopes are invisible from nested functions, as in the language.
package pyscope

import (
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// ScopeKind classifies scopes.
type ScopeKind int

// Scope kinds.
const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeLambda
	ScopeComprehension
)

var scopeKindNames = [...]string{
	ScopeModule:        "module",
	ScopeClass:         "class",
	ScopeFunction:      "function",
	ScopeLambda:        "lambda",
	ScopeComprehension: "comprehension",
}

func (k ScopeKind) String() string {
	if int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}

	return "unknown"
}

// BindingKind tells how a name was bound.
type BindingKind int

// Binding kinds.
const (
	BindImport BindingKind = iota
	BindImportFrom
	BindAssignment
	BindParameter
	BindDefinition
	BindOther
)

// Binding is one introduction of a name into a scope.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope

	// Node is the syntax that introduced the name: the identifier, or for
	// imports the dotted_name / aliased_import entry.
	Node *pysyntax.Node
	// Statement is the enclosing statement.
	Statement *pysyntax.Node

	// Module and Symbol describe import bindings. For `import a.b` Module is
	// "a.b"; for `from m import s as x` Module is "m" and Symbol is "s".
	Module string
	Symbol string

	references []*pysyntax.Node
}

// Scope is a Python namespace.
type Scope struct {
	Kind   ScopeKind
	Node   *pysyntax.Node
	Parent *Scope

	bindings  map[string][]*Binding
	globals   map[string]bool
	nonlocals map[string]bool
}

func newScope(kind ScopeKind, node *pysyntax.Node, parent *Scope) *Scope {
	return &Scope{
		Kind:      kind,
		Node:      node,
		Parent:    parent,
		bindings:  make(map[string][]*Binding),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
	}
}

// Bindings returns every binding of name made directly in this scope.
func (s *Scope) Bindings(name string) []*Binding {
	return s.bindings[name]
}

// Has reports whether name is bound directly in this scope.
func (s *Scope) Has(name string) bool {
	return len(s.bindings[name]) > 0
}

// Lookup resolves name as a read from this scope would.
func (s *Scope) Lookup(name string) []*Binding {
	owner := s.resolveOwner(name)
	if owner == nil {
		return nil
	}

	return owner.bindings[name]
}

func (s *Scope) module() *Scope {
	cur := s
	for cur.Parent != nil {
		cur = cur.Parent
	}

	return cur
}

// bindTarget returns the scope an assignment to name in s lands in.
func (s *Scope) bindTarget(name string) *Scope {
	if s.globals[name] {
		return s.module()
	}

	if s.nonlocals[name] {
		for cur := s.Parent; cur != nil; cur = cur.Parent {
			if cur.Kind != ScopeClass && cur.Kind != ScopeModule && cur.Has(name) {
				return cur
			}
		}
	}

	return s
}

func (s *Scope) resolveOwner(name string) *Scope {
	if s.globals[name] {
		return s.module()
	}

	if s.Has(name) {
		return s
	}

	for cur := s.Parent; cur != nil; cur = cur.Parent {
		if cur.Kind == ScopeClass {
			continue
		}

		if cur.Has(name) {
			return cur
		}
	}

	return nil
}

// References returns the name reads resolved to b, in source order.
func (b *Binding) References() []*pysyntax.Node {
	return b.references
}
