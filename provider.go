package digo

import "reflect"

// Provider resolves T lazily, each time Get is called. Inject a Provider
// wherever the bean lives in a scope that is not active yet, or that is
// shorter-lived than the consumer.
type Provider[T any] struct {
	registry *Registry
	name     string
}

type providerBinder interface {
	bind(r *Registry, name string)
	elemType() reflect.Type
}

var providerBinderType = reflect.TypeOf((*providerBinder)(nil)).Elem()

// NewProvider returns a provider bound to r.
func NewProvider[T any](r *Registry, name ...string) Provider[T] {
	p := Provider[T]{registry: r}
	if len(name) > 0 {
		p.name = name[0]
	}
	return p
}

// Get resolves the current instance.
func (p Provider[T]) Get() (T, error) {
	if p.registry == nil {
		var zero T
		return zero, &UnboundProviderError{Type: p.elemType().String()}
	}
	return Get[T](p.registry, p.name)
}

// Name returns the qualifier the provider resolves with.
func (p Provider[T]) Name() string {
	return p.name
}

func (p *Provider[T]) bind(r *Registry, name string) {
	p.registry = r
	p.name = name
}

func (Provider[T]) elemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func providerElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct || !reflect.PointerTo(t).Implements(providerBinderType) {
		return nil, false
	}
	return reflect.New(t).Interface().(providerBinder).elemType(), true
}
