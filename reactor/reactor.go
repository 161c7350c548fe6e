// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness poller used by the dispatcher.

package reactor

import "errors"

// EventMask is a set of readiness conditions.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Has reports whether all bits of o are set in m.
func (m EventMask) Has(o EventMask) bool { return m&o == o }

// WakeKey is reported by Wait when Wake interrupted it. Registered keys must
// never use this value.
const WakeKey uint64 = ^uint64(0)

// ErrClosed is returned by operations on a closed poller.
var ErrClosed = errors.New("reactor: poller closed")

// Event contains event information returned by Wait.
type Event struct {
	Key    uint64    // caller supplied key given to Register/Modify
	Events EventMask // readiness conditions
}

// Poller multiplexes readiness of file descriptors. Interest is level
// triggered: a descriptor stays reported for as long as the condition holds,
// so callers Modify interest away from conditions they cannot service.
//
// Register, Modify, Unregister and Wake are safe to call from any goroutine.
// Wait must be called from a single goroutine.
type Poller interface {
	Register(fd int, key uint64, events EventMask) error
	Modify(fd int, key uint64, events EventMask) error
	Unregister(fd int) error

	// Wait blocks until at least one event is ready or timeoutMs elapses
	// (timeoutMs < 0 blocks indefinitely). Interrupted waits return 0, nil.
	Wait(events []Event, timeoutMs int) (int, error)

	// Wake makes a concurrent or the next Wait return with a WakeKey event.
	Wake() error

	Close() error
}
