// Package digotest runs a test body inside a container built for that single
// invocation: the test instance is injected, the declared scopes are active
// while the body runs, and everything is torn down afterwards.
package digotest

import (
	"github.com/centraunit/digo"
)

// Declarations lists what a test needs from its container.
type Declarations struct {
	// Classes are registered with the container in addition to the producers
	// declared by the test instance itself.
	Classes []digo.Binding
	// Extensions rewrite member metadata before the container builds its models.
	Extensions []digo.Extension
	// ActivateScopes are activated before the test body runs.
	ActivateScopes []digo.Scope
	// Scopes defines custom normal scopes.
	Scopes []digo.ScopeDefinition
}

// ClassDeclarer is implemented by test types declaring what every one of their
// test methods needs. DigoDeclarations is called on the zero value.
type ClassDeclarer interface {
	DigoDeclarations() Declarations
}

// Method identifies the test method being run and what it declares on top of
// the class declarations. A nil *Method means there is no resolvable method.
type Method struct {
	Name         string
	Declarations Declarations
}

// NewMethod returns a method declaring the given declarations.
func NewMethod(name string, decl ...Declarations) *Method {
	m := &Method{Name: name}
	for _, d := range decl {
		m.Declarations = merge(m.Declarations, d)
	}
	return m
}

func merge(a, b Declarations) Declarations {
	return Declarations{
		Classes:        append(append([]digo.Binding(nil), a.Classes...), b.Classes...),
		Extensions:     append(append([]digo.Extension(nil), a.Extensions...), b.Extensions...),
		ActivateScopes: append(append([]digo.Scope(nil), a.ActivateScopes...), b.ActivateScopes...),
		Scopes:         append(append([]digo.ScopeDefinition(nil), a.Scopes...), b.Scopes...),
	}
}
