package web

import "fmt"

// AlreadyOpenError is returned by OpenRequest while a request is open.
type AlreadyOpenError struct {
	RequestID string
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("a request is already open: %s", e.RequestID)
}

// NotOpenError is returned by CurrentRequest when no request is open.
type NotOpenError struct{}

func (e *NotOpenError) Error() string {
	return "a request has not been opened"
}
