package digo

import (
	"context"
	"sync"
)

type contextKey string

// Keys the container stores in every ContainerContext it hands to beans.
const (
	// InvocationIDKey holds the identifier of the test invocation owning the container.
	InvocationIDKey contextKey = "digo.invocation"
	// ScopeKey holds the Scope of the bean receiving the context.
	ScopeKey contextKey = "digo.scope"
)

// ContainerContext extends the standard context.Context with container-specific values.
// Beans receive it in their Lifecycle hooks.
type ContainerContext struct {
	context.Context
	values sync.Map
}

// NewContainerContext creates a new ContainerContext wrapping a standard context.Context.
func NewContainerContext(parent context.Context) *ContainerContext {
	if parent == nil {
		parent = context.Background()
	}
	return &ContainerContext{
		Context: parent,
	}
}

// WithValue returns a new ContainerContext holding the receiver's values plus key.
func (c *ContainerContext) WithValue(key, val interface{}) *ContainerContext {
	newCtx := &ContainerContext{
		Context: c.Context,
	}
	c.values.Range(func(k, v interface{}) bool {
		newCtx.values.Store(k, v)
		return true
	})
	newCtx.values.Store(key, val)
	return newCtx
}

func (c *ContainerContext) Parent() context.Context {
	return c.Context
}

func (c *ContainerContext) Value(key interface{}) interface{} {
	if c == nil {
		return nil
	}
	if val, ok := c.values.Load(key); ok {
		return val
	}
	if c.Context != nil {
		return c.Context.Value(key)
	}
	return nil
}

// InvocationID returns the invocation identifier, or "" outside a harness invocation.
func (c *ContainerContext) InvocationID() string {
	id, _ := c.Value(InvocationIDKey).(string)
	return id
}

// Scope returns the scope of the bean the context was created for.
func (c *ContainerContext) Scope() Scope {
	s, _ := c.Value(ScopeKey).(Scope)
	return s
}

// MergeWith combines values from another ContainerContext.
// Values from the other context override existing values with the same key.
func (c *ContainerContext) MergeWith(other *ContainerContext) *ContainerContext {
	newCtx := NewContainerContext(c.Context)

	c.values.Range(func(k, v interface{}) bool {
		newCtx.values.Store(k, v)
		return true
	})

	if other != nil {
		other.values.Range(func(k, v interface{}) bool {
			newCtx.values.Store(k, v)
			return true
		})
	}

	return newCtx
}
