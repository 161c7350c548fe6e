// File: protocol/protocol.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/pool"
	"github.com/momentics/hioload-npl/subject"
)

const (
	// DefaultHistory is the number of messages kept for inspection.
	DefaultHistory = 64
	// DefaultMaxFrame bounds the bytes buffered for a single frame.
	DefaultMaxFrame = 1 << 20
)

// Handler supplies the framing rule and reacts to complete messages.
type Handler interface {
	IsMessageComplete(buf []byte) bool
	StateMachine(m Message)
}

// Transport is the part of a socket device a protocol drives.
type Transport interface {
	StartSocketClient() error
	StartSocketServer() error
	StopSocket()
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithLogger sets the protocol logger.
func WithLogger(l log.FieldLogger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHistory keeps the last n messages; n is rounded up to a power of two.
func WithHistory(n int) Option {
	return func(p *Protocol) {
		size := uint64(1)
		for size < uint64(n) {
			size <<= 1
		}
		p.history = pool.NewRing[Message](size)
	}
}

// WithMaxFrame bounds the size of a single frame. Longer input is dropped.
func WithMaxFrame(n int) Option {
	return func(p *Protocol) { p.maxFrame = n }
}

// Protocol is the framing base. Embed it, call Init with the outer value
// and the handler, and attach it to a socket.
type Protocol struct {
	subject.Subject

	h        Handler
	logger   log.FieldLogger
	buf      []byte
	maxFrame int
	history  *pool.Ring[Message]

	mu        sync.Mutex
	state     string
	onState   func(state string)
	onConnect func()
	user      string
	password  string
}

// New returns a standalone protocol driven by h.
func New(h Handler, opts ...Option) *Protocol {
	p := &Protocol{}
	p.Init(p, h, opts...)
	return p
}

// Init prepares an embedded Protocol.
func (p *Protocol) Init(self api.Node, h Handler, opts ...Option) {
	p.Bind(self)
	p.h = h
	p.logger = log.StandardLogger()
	p.maxFrame = DefaultMaxFrame
	p.history = pool.NewRing[Message](DefaultHistory)
	for _, opt := range opts {
		opt(p)
	}
}

// Logger returns the protocol logger.
func (p *Protocol) Logger() log.FieldLogger { return p.logger }

// OnRead frames b byte by byte.
func (p *Protocol) OnRead(b []byte) {
	for _, c := range b {
		p.buf = append(p.buf, c)
		if p.maxFrame > 0 && len(p.buf) > p.maxFrame {
			p.logger.WithFields(log.Fields{"protocol": p.Name(), "limit": p.maxFrame}).Warn("frame too long, dropped")
			p.buf = p.buf[:0]
			continue
		}
		if !p.h.IsMessageComplete(p.buf) {
			continue
		}
		msg := Message(append([]byte(nil), p.buf...))
		p.buf = p.buf[:0]
		p.history.Push(msg)
		p.h.StateMachine(msg)
		p.NotifyRead(msg)
	}
}

// OnConnect marks the protocol connected, notifies observers and runs the
// callback given to StartClient.
func (p *Protocol) OnConnect() {
	p.Subject.OnConnect()
	p.mu.Lock()
	cb := p.onConnect
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *Protocol) transport() (Transport, error) {
	t, ok := p.Target().(Transport)
	if !ok {
		if p.Target() == nil {
			return nil, api.ErrNoTarget
		}
		return nil, api.ErrNotSupported
	}
	return t, nil
}

// StartClient connects the underlying socket; onConnect runs once it is up.
func (p *Protocol) StartClient(onConnect func()) error {
	t, err := p.transport()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.onConnect = onConnect
	p.mu.Unlock()
	return t.StartSocketClient()
}

// StartServer starts listening on the underlying socket.
func (p *Protocol) StartServer() error {
	t, err := p.transport()
	if err != nil {
		return err
	}
	return t.StartSocketServer()
}

// Stop half-closes the underlying socket.
func (p *Protocol) Stop() error {
	t, err := p.transport()
	if err != nil {
		return err
	}
	t.StopSocket()
	return nil
}

func (p *Protocol) SetCredentials(user, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user, p.password = user, password
}

func (p *Protocol) Credentials() (user, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.password
}

// SetStateCallback registers fn for state notifications.
func (p *Protocol) SetStateCallback(fn func(state string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

// SetState records state and notifies the state callback.
func (p *Protocol) SetState(state string) {
	p.mu.Lock()
	p.state = state
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (p *Protocol) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MessageCount returns the number of frames received so far.
func (p *Protocol) MessageCount() uint64 { return p.history.Total() }

// LastMessage returns the most recent frame.
func (p *Protocol) LastMessage() (Message, bool) { return p.history.Last() }

// History returns the retained frames, oldest first.
func (p *Protocol) History() []Message {
	out := make([]Message, 0, p.history.Len())
	for i := 0; i < p.history.Len(); i++ {
		m, _ := p.history.At(i)
		out = append(out, m)
	}
	return out
}
