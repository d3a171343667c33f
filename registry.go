package digo

import (
	"reflect"

	"go.uber.org/zap"
)

// Registry is the runtime index of a container's bindings and contexts.
// It stops working once the container is shut down.
type Registry struct {
	c *Container
}

// Context returns the context of a normal scope.
func (r *Registry) Context(scope Scope) (Context, error) {
	bc, err := r.BoundContext(scope)
	if err != nil {
		return nil, err
	}
	return bc, nil
}

// BoundContext returns the context of a normal scope with storage control.
func (r *Registry) BoundContext(scope Scope) (BoundContext, error) {
	if err := r.c.checkOpen(); err != nil {
		return nil, err
	}
	sc, ok := r.c.contexts[scope]
	if !ok {
		reason := "unknown scope"
		if scope.IsPseudo() {
			reason = "pseudo-scopes have no context"
		}
		return nil, &InvalidScopeError{Type: "context", Scope: string(scope), Reason: reason}
	}
	return sc, nil
}

// ScopeDefinition returns the definition of a normal scope known to the container.
func (r *Registry) ScopeDefinition(scope Scope) (ScopeDefinition, bool) {
	d, ok := r.c.scopes[scope]
	return d, ok
}

// ActiveScopes lists the normal scopes whose contexts are active,
// in activation-dependency order.
func (r *Registry) ActiveScopes() []Scope {
	var out []Scope
	for _, s := range r.c.scopeOrder {
		if r.c.contexts[s].IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// Resolve returns the bean bound to t and name.
func (r *Registry) Resolve(t reflect.Type, name string) (any, error) {
	v, err := r.c.resolve(BindingKey{Type: t, Name: name}, "")
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Lookup resolves a bean by name alone.
func (r *Registry) Lookup(name string) (any, error) {
	if err := r.c.checkOpen(); err != nil {
		return nil, err
	}
	var matches []*Binding
	for _, b := range r.c.order {
		if b.name == name {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &UnsatisfiedDependencyError{Name: name}
	case 1:
		v, err := r.c.instance(matches[0])
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	candidates := make([]string, len(matches))
	for i, b := range matches {
		candidates[i] = b.String()
	}
	return nil, &AmbiguousResolutionError{Name: name, Candidates: candidates}
}

// Binding returns the binding registered for t and name.
func (r *Registry) Binding(t reflect.Type, name string) (Binding, bool) {
	b, ok := r.c.bindings[BindingKey{Type: t, Name: name}]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Bindings returns every registered binding in registration order.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, len(r.c.order))
	for i, b := range r.c.order {
		out[i] = *b
	}
	return out
}

// Inject populates the injection points of instance. See Container.Inject.
func (r *Registry) Inject(instance any) error {
	return r.c.Inject(instance)
}

// IsOpen reports whether the owning container is still running.
func (r *Registry) IsOpen() bool {
	return r.c.checkOpen() == nil
}

// ContainerContext returns the base context handed to beans.
func (r *Registry) ContainerContext() *ContainerContext {
	return r.c.ctx
}

// Logger returns the container logger.
func (r *Registry) Logger() *zap.Logger {
	return r.c.logger
}

// Get resolves the bean of type T, optionally qualified by name.
func Get[T any](r *Registry, name ...string) (T, error) {
	var zero T
	t := TypeOf[T]()
	if r == nil {
		return zero, &UnboundProviderError{Type: t.String()}
	}
	n := ""
	if len(name) > 0 {
		n = name[0]
	}
	v, err := r.c.resolve(BindingKey{Type: t, Name: n}, "")
	if err != nil {
		return zero, err
	}
	typed, ok := v.Interface().(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: t.String(), Got: v.Type().String()}
	}
	return typed, nil
}
