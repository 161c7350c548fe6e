//go:build !linux && !darwin && !freebsd
// +build !linux,!darwin,!freebsd

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "errors"

// NewPoller returns an error for unsupported platforms.
func NewPoller() (Poller, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
