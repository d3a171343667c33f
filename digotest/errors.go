package digotest

import (
	"fmt"
)

// ResolutionError represents malformed or conflicting test declarations.
type ResolutionError struct {
	Test   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve configuration of %s: %s", e.Test, e.Reason)
}

// InitializationError represents a container that could not be built, or a
// test instance that could not be injected.
type InitializationError struct {
	Test  string
	Stage string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization of %s failed during %s: %v", e.Test, e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// ActivationError represents a scope that failed to activate. Unwind holds
// the errors of deactivating the scopes activated before it, if any.
type ActivationError struct {
	Scope  string
	Err    error
	Unwind error
}

func (e *ActivationError) Error() string {
	if e.Unwind != nil {
		return fmt.Sprintf("activation of scope %s failed: %v (unwind: %v)", e.Scope, e.Err, e.Unwind)
	}
	return fmt.Sprintf("activation of scope %s failed: %v", e.Scope, e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}

// DeactivationError represents a scope that failed to deactivate cleanly.
type DeactivationError struct {
	Scope string
	Err   error
}

func (e *DeactivationError) Error() string {
	return fmt.Sprintf("deactivation of scope %s failed: %v", e.Scope, e.Err)
}

func (e *DeactivationError) Unwrap() error {
	return e.Err
}

// LookupBindingError represents a failure to bind, resolve or release the
// bean registry lookup.
type LookupBindingError struct {
	Path string
	Err  error
}

func (e *LookupBindingError) Error() string {
	return fmt.Sprintf("lookup binding %s: %v", e.Path, e.Err)
}

func (e *LookupBindingError) Unwrap() error {
	return e.Err
}

// TeardownError represents a failure to shut an invocation down.
type TeardownError struct {
	Test string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of %s failed: %v", e.Test, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError represents a lifecycle step taken out of order.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition from %s to %s", e.From, e.To)
}

// PanicError represents a panic raised by a test body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("test panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
