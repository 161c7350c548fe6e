// File: api/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Graph is the structural part of a node: its single upstream target, its
// observers and the deferred removal marks.
type Graph interface {
	// AddEventListener attaches n as an observer and returns n.
	AddEventListener(n Node) Node
	// SetTarget binds the node to its upstream node. It succeeds once.
	SetTarget(t Node) error
	Target() Node
	Observers() []Node

	MarkRemoveAllListeners()
	MarkRemoveSelfAsListener()
	// Marked reports the deferred removal flags.
	Marked() (all, self bool)
	// Prune drops marked observers, recursively, calling detach for each
	// node leaving the graph.
	Prune(detach func(Node))

	IsConnected() bool
	IsDispatcher() bool

	Property(key string) (any, bool)
	SetProperty(key string, v any)
	Name() string
}

// Node is a full participant of the observer graph.
type Node interface {
	EventSink
	Readable
	Writable
	Graph
}
