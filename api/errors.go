// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-npl.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrNotConnected      = errors.New("device is not connected")
	ErrNoTarget          = errors.New("node has no target")
	ErrTargetAlreadySet  = errors.New("node target already set")
	ErrNoDispatcher      = errors.New("node is not attached to a dispatcher")
	ErrDispatcherClosed  = errors.New("dispatcher is closed")
	ErrStaleHandle       = errors.New("stale dispatcher handle")
	ErrNotSupported      = errors.New("operation not supported")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrHandshakeRequired = errors.New("tls handshake not complete")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeNotConnected
	ErrCodeNotSupported
	ErrCodeIO
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Op      string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error for the failed operation op.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
