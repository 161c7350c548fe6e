// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Contracts between devices and the dispatcher that drives them.

package api

// Reactor is implemented by the dispatcher. Post and Invoke are safe from any
// goroutine; the work they enqueue runs on the dispatcher worker.
type Reactor interface {
	Node
	Post(n Node, c Completion)
	Invoke(fn func())
	Watch(d Device, in Interest) error
}

// Device is a node owning a native handle that the dispatcher can drive.
type Device interface {
	Node
	FD() int
	Kind() DeviceKind

	// Listening and Connecting steer how readiness is interpreted.
	Listening() bool
	Connecting() bool

	// ReadNow performs the readiness-driven read. ok is false when the
	// readiness was spurious.
	ReadNow() (c Completion, ok bool)
	// CompleteConnect finishes a pending non-blocking connect.
	CompleteConnect() Completion
	// Flush pushes buffered output. Write completions for fully sent
	// writes are posted to the reactor.
	Flush()

	Close() error
}
