// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared by the server and its script bridges.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrConnNotFound = errors.New("connection not found")
	ErrConnClosed   = errors.New("connection is closed")
	ErrServerClosed = errors.New("server closed")
	ErrInvalidRoom  = errors.New("invalid room name")
)

// HandlerError carries an HTTP status chosen by a handler that failed.
// Handlers that return any other error produce a 500.
type HandlerError struct {
	Status int
	Err    error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("handler failed with status %d", e.Status)
	}
	return fmt.Sprintf("handler failed with status %d: %v", e.Status, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *HandlerError) Unwrap() error { return e.Err }

// StatusOf maps a handler error to the status the client should see.
func StatusOf(err error) int {
	var he *HandlerError
	if errors.As(err, &he) && he.Status >= 400 {
		return he.Status
	}
	return 500
}
