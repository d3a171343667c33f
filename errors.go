package digo

import (
	"fmt"
	"strings"
)

// CircularDependencyError represents a circular dependency detection error.
type CircularDependencyError struct {
	Type string
	// Chain lists the bindings under construction, ending with Type.
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("circular dependency detected for type: %s", e.Type)
	}
	return fmt.Sprintf("circular dependency detected for type: %s (%s)", e.Type, strings.Join(e.Chain, " -> "))
}

// UnsatisfiedDependencyError represents an injection point no binding satisfies.
type UnsatisfiedDependencyError struct {
	Type      string
	Name      string
	Dependent string
}

func (e *UnsatisfiedDependencyError) Error() string {
	what := e.Type
	if e.Name != "" {
		what = fmt.Sprintf("%s named %q", e.Type, e.Name)
	}
	if e.Dependent != "" {
		return fmt.Sprintf("no binding found for %s required by %s", what, e.Dependent)
	}
	return fmt.Sprintf("no binding found for %s", what)
}

// AmbiguousResolutionError represents an injection point more than one binding satisfies.
type AmbiguousResolutionError struct {
	Type       string
	Name       string
	Candidates []string
}

func (e *AmbiguousResolutionError) Error() string {
	what := e.Type
	if what == "" {
		what = fmt.Sprintf("name %q", e.Name)
	} else if e.Name != "" {
		what = fmt.Sprintf("%s named %q", e.Type, e.Name)
	}
	return fmt.Sprintf("ambiguous resolution for %s: %s", what, strings.Join(e.Candidates, ", "))
}

// NilServiceError represents an attempt to bind or produce a nil bean.
type NilServiceError struct {
	Type string
}

func (e *NilServiceError) Error() string {
	return fmt.Sprintf("nil service provided for type: %s", e.Type)
}

// InvalidBindingError represents a binding the container cannot use.
type InvalidBindingError struct {
	Source string
	Reason string
}

func (e *InvalidBindingError) Error() string {
	return fmt.Sprintf("invalid binding %s: %s", e.Source, e.Reason)
}

// InitializationError represents a bean construction failure.
type InitializationError struct {
	Type string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed for type %s: %v", e.Type, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// InjectionError represents a failure to populate an injection point of an instance.
type InjectionError struct {
	Target string
	Member string
	Err    error
}

func (e *InjectionError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("cannot inject %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("cannot inject %s.%s: %v", e.Target, e.Member, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// TypeMismatchError represents a type assertion failure.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// ShutdownError represents a bean shutdown failure.
type ShutdownError struct {
	Type string
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown failed for type %s: %v", e.Type, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// InvalidScopeError represents an invalid scope usage.
type InvalidScopeError struct {
	Type   string
	Scope  string
	Reason string
}

func (e *InvalidScopeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid scope %s for type %s: %s", e.Scope, e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid scope %s for type %s", e.Scope, e.Type)
}

// ScopeDefinitionError represents a malformed custom scope definition.
type ScopeDefinitionError struct {
	Scope  string
	Reason string
}

func (e *ScopeDefinitionError) Error() string {
	return fmt.Sprintf("invalid scope definition %s: %s", e.Scope, e.Reason)
}

// ContextNotActiveError is returned when a normal-scoped bean is resolved,
// or a context deactivated, while the scope's context is inactive.
type ContextNotActiveError struct {
	Scope string
}

func (e *ContextNotActiveError) Error() string {
	return fmt.Sprintf("context for scope %s is not active", e.Scope)
}

// ContextActiveError is returned when activating a context that is already active.
type ContextActiveError struct {
	Scope string
}

func (e *ContextActiveError) Error() string {
	return fmt.Sprintf("context for scope %s is already active", e.Scope)
}

// ScopeDependencyError is returned when a context is activated before a scope it requires.
type ScopeDependencyError struct {
	Scope    string
	Requires string
}

func (e *ScopeDependencyError) Error() string {
	return fmt.Sprintf("scope %s requires an active %s context", e.Scope, e.Requires)
}

// StorageDestroyedError is returned when a destroyed storage is reused.
type StorageDestroyedError struct{}

func (e *StorageDestroyedError) Error() string {
	return "storage has been destroyed"
}

// ContainerClosedError is returned by any operation on a container that was shut down.
type ContainerClosedError struct{}

func (e *ContainerClosedError) Error() string {
	return "container has been shut down"
}

// UnboundProviderError is returned by a Provider that was never injected.
type UnboundProviderError struct {
	Type string
}

func (e *UnboundProviderError) Error() string {
	return fmt.Sprintf("provider for %s is not bound to a container", e.Type)
}
