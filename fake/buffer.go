// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles for graph nodes, the reactor and an FTP server.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-npl/subject"
)

// Recorder is a graph node that logs every notification it receives and
// keeps the bytes read. Notifications still propagate to its observers.
type Recorder struct {
	subject.Subject

	mu     sync.Mutex
	events []string
	data   []byte
	notify chan string
}

// NewRecorder creates a Recorder. When buffered > 0, every event is also
// sent to Events() without blocking the caller while there is room.
func NewRecorder(name string, buffered int) *Recorder {
	r := &Recorder{}
	r.Bind(r)
	r.SetProperty(subject.NameKey, name)
	if buffered > 0 {
		r.notify = make(chan string, buffered)
	}
	return r
}

func (r *Recorder) record(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.notify != nil {
		select {
		case r.notify <- ev:
		default:
		}
	}
}

// Events returns the notification channel, nil when unbuffered.
func (r *Recorder) Events() <-chan string { return r.notify }

// Log returns a copy of the recorded event names.
func (r *Recorder) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Data returns a copy of all bytes received via OnRead.
func (r *Recorder) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

func (r *Recorder) OnConnect() {
	r.record("connect")
	r.Subject.OnConnect()
}

func (r *Recorder) OnRead(b []byte) {
	r.mu.Lock()
	r.data = append(r.data, b...)
	r.mu.Unlock()
	r.record(fmt.Sprintf("read:%d", len(b)))
	r.Subject.OnRead(b)
}

func (r *Recorder) OnWrite(b []byte) {
	r.record(fmt.Sprintf("write:%d", len(b)))
	r.Subject.OnWrite(b)
}

func (r *Recorder) OnDisconnect() {
	r.record("disconnect")
	r.Subject.OnDisconnect()
}

func (r *Recorder) OnAccept() {
	r.record("accept")
	r.Subject.OnAccept()
}
