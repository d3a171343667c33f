package digo

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

type bindingKind int

const (
	kindConstructor bindingKind = iota
	kindClass
	kindInstance
)

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	typeStringCache sync.Map
	bindingSeq      atomic.Uint64
)

// BindingKey identifies a binding by exposed type and optional name.
type BindingKey struct {
	Type reflect.Type
	Name string
}

func (k BindingKey) String() string {
	typeStr := typeString(k.Type)
	if k.Name == "" {
		return typeStr
	}
	return k.Name + ":" + typeStr
}

// TypeOf returns the reflect.Type of T. Unlike reflect.TypeOf it works for
// interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if cached, ok := typeStringCache.Load(t); ok {
		return cached.(string)
	}
	s := t.String()
	typeStringCache.Store(t, s)
	return s
}

// Binding is a bean definition registered with a container: a constructor,
// a struct class or a ready instance, exposed under one type and scope.
type Binding struct {
	// id is assigned once per Provide, Class or Instance call; copies share it.
	id    uint64
	kind  bindingKind
	fn    reflect.Value
	class reflect.Type
	value reflect.Value
	typ   reflect.Type
	name  string
	scope Scope
	// origin names the member a producer binding came from.
	origin string
	err    error
}

// BindingOption customizes a Binding.
type BindingOption func(*Binding)

// InScope sets the scope of the binding.
func InScope(scope Scope) BindingOption {
	return func(b *Binding) {
		b.scope = scope
	}
}

// Named qualifies the binding with a name. Named bindings only satisfy
// injection points asking for that name.
func Named(name string) BindingOption {
	return func(b *Binding) {
		b.name = name
	}
}

// Typed restricts the type the binding is exposed as. The produced value
// must be assignable to t.
func Typed(t reflect.Type) BindingOption {
	return func(b *Binding) {
		if t == nil {
			b.err = fmt.Errorf("typed with nil type")
			return
		}
		b.typ = t
	}
}

// Provide registers a constructor. The constructor returns T or (T, error);
// its parameters are resolved from the container on every construction.
// The default scope is ScopeDependent.
func Provide(constructor any, opts ...BindingOption) Binding {
	b := Binding{id: bindingSeq.Add(1), kind: kindConstructor, scope: ScopeDependent}
	fn := reflect.ValueOf(constructor)
	switch {
	case constructor == nil || fn.Kind() != reflect.Func || fn.IsNil():
		b.err = fmt.Errorf("constructor must be a non-nil function, got %T", constructor)
	case fn.Type().IsVariadic():
		b.err = fmt.Errorf("variadic constructors are not supported")
	case fn.Type().NumOut() == 0 || fn.Type().NumOut() > 2:
		b.err = fmt.Errorf("constructor must return T or (T, error)")
	case fn.Type().NumOut() == 2 && fn.Type().Out(1) != errorType:
		b.err = fmt.Errorf("second result of constructor must be error")
	default:
		b.fn = fn
		b.typ = fn.Type().Out(0)
	}
	return b.apply(opts)
}

// Class registers a struct bean: *T is allocated and its injection points populated.
// The binding is exposed as *T unless Typed says otherwise.
func Class[T any](opts ...BindingOption) Binding {
	t := TypeOf[T]()
	b := Binding{id: bindingSeq.Add(1), kind: kindClass, scope: ScopeDependent}
	if t.Kind() != reflect.Struct {
		b.err = fmt.Errorf("class %s must be a struct type", t)
	} else {
		b.class = t
		b.typ = reflect.PointerTo(t)
	}
	return b.apply(opts)
}

// Instance registers a ready value as an application-scoped bean.
func Instance(value any, opts ...BindingOption) Binding {
	b := Binding{id: bindingSeq.Add(1), kind: kindInstance, scope: ScopeApplication}
	v := reflect.ValueOf(value)
	if isNil(v) {
		b.err = &NilServiceError{Type: fmt.Sprintf("%T", value)}
	} else {
		b.value = v
		b.typ = v.Type()
	}
	return b.apply(opts)
}

func (b Binding) apply(opts []BindingOption) Binding {
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Key returns the binding's exposed type and name.
func (b Binding) Key() BindingKey {
	return BindingKey{Type: b.typ, Name: b.name}
}

// Scope returns the binding's scope.
func (b Binding) Scope() Scope {
	return b.scope
}

// Name returns the binding's qualifier, or "".
func (b Binding) Name() string {
	return b.name
}

// Type returns the exposed type.
func (b Binding) Type() reflect.Type {
	return b.typ
}

// Equal reports whether both bindings declare the same bean from the same source.
// Copies of one binding are always equal.
func (b Binding) Equal(other Binding) bool {
	if b.id != 0 && b.id == other.id {
		return true
	}
	if b.kind != other.kind || b.Key() != other.Key() || b.scope != other.scope || b.origin != other.origin {
		return false
	}
	switch b.kind {
	case kindConstructor:
		return b.fn.IsValid() && other.fn.IsValid() && b.fn.Pointer() == other.fn.Pointer()
	case kindClass:
		return b.class == other.class
	default:
		if !b.value.IsValid() || !other.value.IsValid() {
			return false
		}
		if other.value.Type() != b.value.Type() {
			return false
		}
		if b.value.Type().Comparable() {
			return b.value.Interface() == other.value.Interface()
		}
		return reflect.DeepEqual(b.value.Interface(), other.value.Interface())
	}
}

func (b Binding) String() string {
	source := "instance"
	switch b.kind {
	case kindConstructor:
		source = "constructor"
	case kindClass:
		source = "class"
	}
	return fmt.Sprintf("%s %s (%s)", source, b.Key(), b.scope)
}

// validate checks what can be checked without a container.
func (b Binding) validate() error {
	if b.err != nil {
		return &InvalidBindingError{Source: b.String(), Reason: b.err.Error()}
	}
	var produced reflect.Type
	switch b.kind {
	case kindConstructor:
		produced = b.fn.Type().Out(0)
	case kindClass:
		produced = reflect.PointerTo(b.class)
	case kindInstance:
		produced = b.value.Type()
		if b.scope != ScopeApplication {
			return &InvalidBindingError{Source: b.String(), Reason: "instances are always application scoped"}
		}
	}
	if !produced.AssignableTo(b.typ) {
		return &InvalidBindingError{
			Source: b.String(),
			Reason: fmt.Sprintf("%s is not assignable to %s", produced, b.typ),
		}
	}
	return nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
