// File: subject/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package subject

// Listener is an observer built from optional callbacks. Each callback runs
// before the event is passed on to the listener's own observers.
type Listener struct {
	Subject

	connect    func()
	read       func(b []byte)
	write      func(b []byte)
	disconnect func()
	accept     func()
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

func WithConnect(fn func()) ListenerOption { return func(l *Listener) { l.connect = fn } }
func WithRead(fn func(b []byte)) ListenerOption { return func(l *Listener) { l.read = fn } }
func WithWrite(fn func(b []byte)) ListenerOption { return func(l *Listener) { l.write = fn } }
func WithDisconnect(fn func()) ListenerOption { return func(l *Listener) { l.disconnect = fn } }
func WithAccept(fn func()) ListenerOption { return func(l *Listener) { l.accept = fn } }
func WithName(name string) ListenerOption { return func(l *Listener) { l.SetProperty(NameKey, name) } }

// NewListener creates a callback observer.
func NewListener(opts ...ListenerOption) *Listener {
	l := &Listener{}
	l.Bind(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) OnConnect() {
	if l.connect != nil {
		l.connect()
	}
	l.Subject.OnConnect()
}

func (l *Listener) OnRead(b []byte) {
	if l.read != nil {
		l.read(b)
	}
	l.Subject.OnRead(b)
}

func (l *Listener) OnWrite(b []byte) {
	if l.write != nil {
		l.write(b)
	}
	l.Subject.OnWrite(b)
}

func (l *Listener) OnDisconnect() {
	if l.disconnect != nil {
		l.disconnect()
	}
	l.Subject.OnDisconnect()
}

func (l *Listener) OnAccept() {
	if l.accept != nil {
		l.accept()
	}
	l.Subject.OnAccept()
}
