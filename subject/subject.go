// File: subject/subject.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package subject

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-npl/api"
)

// NameKey is the property holding a node's display name.
const NameKey = "name"

// Subject is the base node of the graph. Types embedding it call Bind with
// their outer value so that targets and observers see the outer node.
//
// The mutex guards the observer list and target only; observers are always
// invoked on a snapshot, outside the lock, so they may attach or mark nodes
// re-entrantly.
type Subject struct {
	self api.Node

	mu        sync.Mutex
	target    api.Node
	observers []api.Node

	connected  atomic.Bool
	removeAll  atomic.Bool
	removeSelf atomic.Bool

	props Properties
}

// New returns a standalone subject, mostly useful as a passive relay.
func New() *Subject {
	s := &Subject{}
	s.self = s
	return s
}

// Bind sets the outer node embedding s.
func (s *Subject) Bind(self api.Node) { s.self = self }

func (s *Subject) node() api.Node {
	if s.self == nil {
		return s
	}
	return s.self
}

// AddEventListener attaches n below s and returns n, so stacks can be built
// fluently: dev.AddEventListener(proto).AddEventListener(app).
func (s *Subject) AddEventListener(n api.Node) api.Node {
	if n == nil {
		panic("subject: nil observer")
	}
	if err := n.SetTarget(s.node()); err != nil {
		panic(fmt.Sprintf("subject: attach %q: %v", n.Name(), err))
	}
	s.mu.Lock()
	for _, o := range s.observers {
		if o == n {
			s.mu.Unlock()
			return n
		}
	}
	s.observers = append(s.observers, n)
	s.mu.Unlock()
	return n
}

// SetTarget binds the upstream node. Re-binding to the same node is a no-op;
// binding to another node fails.
func (s *Subject) SetTarget(t api.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.target {
	case nil:
		s.target = t
		return nil
	case t:
		return nil
	}
	return api.ErrTargetAlreadySet
}

func (s *Subject) Target() api.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Observers returns a snapshot of the observer list.
func (s *Subject) Observers() []api.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.observers) == 0 {
		return nil
	}
	out := make([]api.Node, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Subject) MarkRemoveAllListeners() { s.removeAll.Store(true) }
func (s *Subject) MarkRemoveSelfAsListener() { s.removeSelf.Store(true) }

func (s *Subject) Marked() (all, self bool) {
	return s.removeAll.Load(), s.removeSelf.Load()
}

// Prune removes marked observers, deepest first. detach is called for every
// node leaving the graph, after the lock is released.
func (s *Subject) Prune(detach func(api.Node)) {
	for _, o := range s.Observers() {
		o.Prune(detach)
	}

	all := s.removeAll.Swap(false)
	var gone []api.Node
	s.mu.Lock()
	kept := s.observers[:0]
	for _, o := range s.observers {
		if _, self := o.Marked(); all || self {
			gone = append(gone, o)
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(s.observers); i++ {
		s.observers[i] = nil
	}
	s.observers = kept
	s.mu.Unlock()

	if detach != nil {
		for _, o := range gone {
			detach(o)
		}
	}
}

func (s *Subject) IsConnected() bool { return s.connected.Load() }

// SetConnected is used by devices that learn their state outside OnConnect.
func (s *Subject) SetConnected(v bool) { s.connected.Store(v) }

func (s *Subject) IsDispatcher() bool { return false }

func (s *Subject) Property(key string) (any, bool) { return s.props.Get(key) }

func (s *Subject) SetProperty(key string, v any) { s.props.Set(key, v, false) }

// Properties exposes the property bag.
func (s *Subject) Properties() *Properties { return &s.props }

func (s *Subject) Name() string {
	if v, ok := s.props.Get(NameKey); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

// Dispatcher walks the targets upward to the dispatcher, if attached.
func (s *Subject) Dispatcher() api.Reactor {
	return DispatcherOf(s.node())
}

// DispatcherOf returns the reactor at the root of n's target chain.
func DispatcherOf(n api.Node) api.Reactor {
	for n != nil {
		if n.IsDispatcher() {
			if r, ok := n.(api.Reactor); ok {
				return r
			}
			return nil
		}
		n = n.Target()
	}
	return nil
}

// Read forwards the request upstream.
func (s *Subject) Read(buf []byte, off int64) error {
	t := s.Target()
	if t == nil {
		return api.ErrNoTarget
	}
	return t.Read(buf, off)
}

// Write forwards the request upstream.
func (s *Subject) Write(buf []byte, off int64) (int, error) {
	t := s.Target()
	if t == nil {
		return -1, api.ErrNoTarget
	}
	return t.Write(buf, off)
}

func (s *Subject) OnConnect() {
	s.connected.Store(true)
	s.NotifyConnect()
}

func (s *Subject) OnRead(b []byte) { s.NotifyRead(b) }
func (s *Subject) OnWrite(b []byte) { s.NotifyWrite(b) }
func (s *Subject) OnAccept() { s.NotifyAccept() }

// OnDisconnect clears the connected flag, cascades the notification and
// marks the node and all its observers for removal.
func (s *Subject) OnDisconnect() {
	s.connected.Store(false)
	s.NotifyDisconnect()
	s.MarkRemoveAllListeners()
	s.MarkRemoveSelfAsListener()
}

func (s *Subject) NotifyConnect() {
	for _, o := range s.Observers() {
		o.OnConnect()
	}
}

func (s *Subject) NotifyRead(b []byte) {
	for _, o := range s.Observers() {
		o.OnRead(b)
	}
}

func (s *Subject) NotifyWrite(b []byte) {
	for _, o := range s.Observers() {
		o.OnWrite(b)
	}
}

func (s *Subject) NotifyDisconnect() {
	for _, o := range s.Observers() {
		o.OnDisconnect()
	}
}

func (s *Subject) NotifyAccept() {
	for _, o := range s.Observers() {
		o.OnAccept()
	}
}
