//go:build linux || darwin || freebsd

// File: device/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-npl/api"
)

type pipeAddr string

func (a pipeAddr) Network() string { return "npl" }
func (a pipeAddr) String() string { return string(a) }

// memConn is the ciphertext side of the TLS engine. Bytes read from the
// network are fed into in; bytes the engine writes go straight to the raw
// socket.
type memConn struct {
	s      *Socket
	mu     sync.Mutex
	cond   *sync.Cond
	in     bytes.Buffer
	eof    bool
	closed bool
}

func newMemConn(s *Socket) *memConn {
	c := &memConn{s: s}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *memConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.in.Len() == 0 && !c.eof && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.in.Len() > 0 {
		return c.in.Read(p)
	}
	return 0, io.EOF
}

func (c *memConn) Write(p []byte) (int, error) {
	if _, err := c.s.rawWrite(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *memConn) feed(b []byte) {
	c.mu.Lock()
	if !c.closed && !c.eof {
		c.in.Write(b)
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *memConn) setEOF() {
	c.mu.Lock()
	c.eof = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *memConn) waitEOF() {
	c.mu.Lock()
	for !c.eof && !c.closed {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *memConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (c *memConn) LocalAddr() net.Addr { return pipeAddr("local") }
func (c *memConn) RemoteAddr() net.Addr {
	return pipeAddr(net.JoinHostPort(c.s.host, strconv.Itoa(c.s.port)))
}
func (c *memConn) SetDeadline(time.Time) error { return nil }
func (c *memConn) SetReadDeadline(time.Time) error { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

type writeOp struct {
	buf   []byte
	close bool
}

// tlsBridge runs crypto/tls over a memConn. The engine goroutine handshakes
// and then decrypts; the writer goroutine encrypts queued application
// writes once the handshake is done. Both hand results to the dispatcher
// worker with Invoke or Post, never touching observers directly.
type tlsBridge struct {
	s           *Socket
	r           api.Reactor
	pipe        *memConn
	conn        *tls.Conn
	onHandshake func()

	ready      atomic.Bool
	finished   atomic.Bool
	peerClosed atomic.Bool

	mu      sync.Mutex
	cond    *sync.Cond
	ops     *queue.Queue
	closing bool
	quit    bool
}

func newTLSBridge(s *Socket, r api.Reactor, cfg *tls.Config, onHandshake func()) *tlsBridge {
	b := &tlsBridge{
		s:           s,
		r:           r,
		pipe:        newMemConn(s),
		onHandshake: onHandshake,
		ops:         queue.New(),
	}
	b.cond = sync.NewCond(&b.mu)
	if s.role == api.RoleAccepted {
		b.conn = tls.Server(b.pipe, cfg)
	} else {
		if cfg.ServerName == "" && !cfg.InsecureSkipVerify {
			cfg = cfg.Clone()
			cfg.ServerName = s.host
		}
		b.conn = tls.Client(b.pipe, cfg)
	}
	return b
}

func (b *tlsBridge) start() {
	go b.engine()
	go b.writer()
}

func (b *tlsBridge) engine() {
	if err := b.conn.Handshake(); err != nil {
		b.s.log().WithError(err).Warn("tls handshake failed")
		b.finish()
		return
	}
	b.mu.Lock()
	b.ready.Store(true)
	b.cond.Broadcast()
	b.mu.Unlock()
	b.r.Invoke(func() {
		b.s.log().Debug("tls handshake complete")
		if b.onHandshake != nil {
			b.onHandshake()
		}
	})

	buf := make([]byte, 16<<10)
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			b.r.Invoke(func() { b.s.NotifyRead(data) })
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			b.peerClosed.Store(true)
			b.r.Invoke(b.s.CheckPeerSSLShutdown)
			b.pipe.waitEOF()
		} else if !errors.Is(err, net.ErrClosed) {
			b.s.log().WithError(err).Debug("tls read ended")
		}
		b.finish()
		return
	}
}

func (b *tlsBridge) finish() {
	if !b.finished.CompareAndSwap(false, true) {
		return
	}
	b.stopWriter()
	b.r.Invoke(b.s.teardown)
}

func (b *tlsBridge) writer() {
	for {
		b.mu.Lock()
		for !b.quit && (!b.ready.Load() || b.ops.Length() == 0) {
			b.cond.Wait()
		}
		if b.quit {
			b.mu.Unlock()
			return
		}
		op := b.ops.Remove().(writeOp)
		b.mu.Unlock()

		if op.close {
			if err := b.conn.CloseWrite(); err != nil {
				b.s.log().WithError(err).Debug("tls close-notify failed")
			}
			b.s.shutdownWrite()
			return
		}
		if _, err := b.conn.Write(op.buf); err != nil {
			b.s.log().WithError(err).Warn("tls write failed")
			b.s.post(b.s, api.Completion{Op: api.OpRead})
			return
		}
		b.s.post(b.s, api.Completion{Op: api.OpWrite, Buf: op.buf, N: len(op.buf)})
	}
}

func (b *tlsBridge) stopWriter() {
	b.mu.Lock()
	b.quit = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *tlsBridge) write(buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing || b.quit {
		return -1, api.ErrNotConnected
	}
	b.ops.Add(writeOp{buf: buf})
	b.cond.Broadcast()
	return len(buf), nil
}

// closeWrite queues close-notify behind the pending writes.
func (b *tlsBridge) closeWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing || b.quit {
		return
	}
	b.closing = true
	b.ops.Add(writeOp{close: true})
	b.cond.Broadcast()
}

func (b *tlsBridge) feed(data []byte) { b.pipe.feed(data) }
func (b *tlsBridge) closeInbound() { b.pipe.setEOF() }

func (b *tlsBridge) close() {
	b.pipe.Close()
	b.stopWriter()
}
