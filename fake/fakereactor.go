// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
    "sync"

    "github.com/momentics/hioload-npl/api"
    "github.com/momentics/hioload-npl/subject"
)

// Watch records one Reactor.Watch call.
type Watch struct {
    Device   api.Device
    Interest api.Interest
}

// FakeReactor is a synchronous api.Reactor: posted completions and invoked
// functions run on the caller's goroutine.
type FakeReactor struct {
    subject.Subject

    mu      sync.Mutex
    Watches []Watch
    Posted  []api.Completion
}

func NewFakeReactor() *FakeReactor {
    r := &FakeReactor{}
    r.Bind(r)
    return r
}

func (f *FakeReactor) IsDispatcher() bool { return true }

func (f *FakeReactor) Post(n api.Node, c api.Completion) {
    f.mu.Lock()
    f.Posted = append(f.Posted, c)
    f.mu.Unlock()
    Deliver(n, c)
}

func (f *FakeReactor) Invoke(fn func()) { fn() }

func (f *FakeReactor) Watch(d api.Device, in api.Interest) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.Watches = append(f.Watches, Watch{Device: d, Interest: in})
    return nil
}

// Deliver converts a completion into the matching notification.
func Deliver(n api.Node, c api.Completion) {
    switch c.Op {
    case api.OpConnect:
        if c.Err != nil {
            n.OnDisconnect()
            return
        }
        n.OnConnect()
    case api.OpRead:
        if c.N <= 0 {
            n.OnDisconnect()
            return
        }
        n.OnRead(c.Data())
    case api.OpWrite:
        n.OnWrite(c.Data())
    case api.OpAccept:
        n.OnAccept()
    }
}
