package naming

import "fmt"

// AlreadyBoundError is returned when binding a path that is still bound.
type AlreadyBoundError struct {
	Path string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("name %s is already bound", e.Path)
}

// NotBoundError is returned when looking up a path that is not bound,
// including lookups through a released binding.
type NotBoundError struct {
	Path string
}

func (e *NotBoundError) Error() string {
	return fmt.Sprintf("name %s is not bound", e.Path)
}

// InvalidBindingError is returned for an empty path or a nil value.
type InvalidBindingError struct {
	Path   string
	Reason string
}

func (e *InvalidBindingError) Error() string {
	return fmt.Sprintf("cannot bind %q: %s", e.Path, e.Reason)
}
