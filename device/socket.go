//go:build linux || darwin || freebsd

// File: device/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-npl/api"
)

const listenBacklog = 128

type pendingWrite struct {
	buf []byte
	end int64
}

// Socket is a non-blocking TCP device. A client socket connects to
// host:port, a listening socket accepts connections into accepted sockets.
type Socket struct {
	Device

	role api.SocketRole
	host string
	port int

	connecting   atomic.Bool
	stopped      atomic.Bool
	eof          atomic.Bool
	disconnected atomic.Bool
	outPending   atomic.Bool

	// wmu guards the output stream below.
	wmu             sync.Mutex
	out             []byte
	queued          int64
	sent            int64
	reports         []pendingWrite
	halfClosed      bool
	shutdownPending bool

	tls      atomic.Pointer[tlsBridge]
	onAccept func(*Socket)
}

// NewSocket returns a client socket for host:port. Nothing happens until
// StartSocketClient is called on a socket attached to a dispatcher.
func NewSocket(host string, port int, opts ...Option) *Socket {
	s := &Socket{role: api.RoleClient, host: host, port: port}
	s.init(s, api.KindSocket, opts)
	if s.Name() == "" {
		s.SetProperty("name", net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return s
}

// NewServerSocket returns a listening socket bound to host:port once
// StartSocketServer is called. An empty host binds all interfaces and port 0
// picks an ephemeral port.
func NewServerSocket(host string, port int, opts ...Option) *Socket {
	s := &Socket{role: api.RoleListening, host: host, port: port}
	s.init(s, api.KindSocket, opts)
	if s.Name() == "" {
		s.SetProperty("name", "listen:"+net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return s
}

func (s *Socket) Role() api.SocketRole { return s.role }
func (s *Socket) Host() string { return s.host }

// Port returns the remote port of a client socket or the bound port of a
// listening one.
func (s *Socket) Port() int { return s.port }

func (s *Socket) Listening() bool { return s.role == api.RoleListening }
func (s *Socket) Connecting() bool { return s.connecting.Load() }

// SetAcceptHandler installs fn, called on the worker for every accepted
// socket before it is announced connected.
func (s *Socket) SetAcceptHandler(fn func(*Socket)) { s.onAccept = fn }

func sockaddr(addr *net.TCPAddr) (unix.Sockaddr, int) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, unix.AF_INET6
}

func streamSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// StartSocketClient begins a non-blocking connect. The outcome arrives as
// OnConnect, or as OnDisconnect when the connection fails.
func (s *Socket) StartSocketClient() error {
	if s.role != api.RoleClient {
		return api.ErrNotSupported
	}
	r := s.Dispatcher()
	if r == nil {
		return api.ErrNoDispatcher
	}
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		s.log().WithError(err).Warn("resolve failed")
		s.post(s, api.Completion{Op: api.OpConnect, Err: err})
		return err
	}
	sa, family := sockaddr(addr)
	fd, err := streamSocket(family)
	if err != nil {
		s.post(s, api.Completion{Op: api.OpConnect, Err: err})
		return err
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	s.fd.Store(int64(fd))
	s.connecting.Store(true)

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		s.connecting.Store(false)
		s.log().WithField("addr", addr.String()).WithError(err).Warn("connect failed")
		s.post(s, api.Completion{Op: api.OpConnect, Err: err})
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	return r.Watch(s, api.InterestWrite)
}

// StartSocketServer binds, listens and starts accepting.
func (s *Socket) StartSocketServer() error {
	if s.role != api.RoleListening {
		return api.ErrNotSupported
	}
	r := s.Dispatcher()
	if r == nil {
		return api.ErrNoDispatcher
	}
	host := s.host
	if host == "" {
		host = "0.0.0.0"
	}
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	sa, family := sockaddr(addr)
	fd, err := streamSocket(family)
	if err != nil {
		return err
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if bound, err := unix.Getsockname(fd); err == nil {
		switch a := bound.(type) {
		case *unix.SockaddrInet4:
			s.port = a.Port
		case *unix.SockaddrInet6:
			s.port = a.Port
		}
	}
	s.fd.Store(int64(fd))
	s.SetConnected(true)
	s.log().WithField("port", s.port).Debug("listening")
	return r.Watch(s, api.InterestRead)
}

func (s *Socket) interest() api.Interest {
	var in api.Interest
	if s.FD() < 0 {
		return 0
	}
	if !s.eof.Load() {
		in |= api.InterestRead
	}
	if s.connecting.Load() || s.outPending.Load() {
		in |= api.InterestWrite
	}
	return in
}

func (s *Socket) rewatch() {
	r := s.Dispatcher()
	if r == nil || s.FD() < 0 {
		return
	}
	if err := r.Watch(s, s.interest()); err != nil {
		s.log().WithError(err).Debug("watch failed")
	}
}

// ReadNow reads whatever the kernel has. Errors and end of stream are
// reported as a zero-length read.
func (s *Socket) ReadNow() (api.Completion, bool) {
	fd := s.FD()
	if fd < 0 || s.role == api.RoleListening {
		return api.Completion{}, false
	}
	buf := scratchBuf()
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		releaseBuf(buf)
		return api.Completion{}, false
	}
	if err != nil || n <= 0 {
		releaseBuf(buf)
		if err != nil && err != unix.ECONNRESET {
			s.log().WithError(err).Warn("read failed")
		}
		s.eof.Store(true)
		s.rewatch()
		return api.Completion{Op: api.OpRead}, true
	}
	return api.Completion{Op: api.OpRead, Buf: buf, N: n, Owned: true}, true
}

// CompleteConnect collects the result of the pending connect.
func (s *Socket) CompleteConnect() api.Completion {
	s.connecting.Store(false)
	fd := s.FD()
	if fd < 0 {
		return api.Completion{Op: api.OpConnect, Err: api.ErrNotConnected}
	}
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && errno != 0 {
		err = syscall.Errno(errno)
	}
	if err != nil {
		s.log().WithError(err).Warn("connect failed")
		s.eof.Store(true)
		s.rewatch()
		return api.Completion{Op: api.OpConnect, Err: err}
	}
	s.rewatch()
	return api.Completion{Op: api.OpConnect}
}

// collectLocked pops the writes that fully reached the kernel.
func (s *Socket) collectLocked() []api.Completion {
	var out []api.Completion
	i := 0
	for ; i < len(s.reports) && s.reports[i].end <= s.sent; i++ {
		b := s.reports[i].buf
		out = append(out, api.Completion{Op: api.OpWrite, Buf: b, N: len(b)})
	}
	if i > 0 {
		s.reports = append(s.reports[:0], s.reports[i:]...)
	}
	return out
}

// rawWrite queues b on the wire. When report is set a write completion is
// posted once every byte of b reached the kernel.
func (s *Socket) rawWrite(b []byte, report bool) (int, error) {
	s.wmu.Lock()
	fd := s.FD()
	if s.halfClosed || fd < 0 {
		s.wmu.Unlock()
		return -1, api.ErrNotConnected
	}
	var fail error
	s.queued += int64(len(b))
	if len(s.out) == 0 && !s.connecting.Load() {
		n, err := unix.Write(fd, b)
		if err != nil && err != unix.EAGAIN {
			fail = err
		}
		if n < 0 {
			n = 0
		}
		s.sent += int64(n)
		if fail == nil && n < len(b) {
			s.out = append(s.out, b[n:]...)
		}
	} else {
		s.out = append(s.out, b...)
	}
	if report {
		s.reports = append(s.reports, pendingWrite{buf: b, end: s.queued})
	}
	posts := s.collectLocked()
	pending := len(s.out) > 0
	s.outPending.Store(pending)
	s.wmu.Unlock()

	if fail != nil {
		s.log().WithError(fail).Warn("write failed")
		s.post(s, api.Completion{Op: api.OpRead})
		return -1, fmt.Errorf("write: %w", fail)
	}
	for _, c := range posts {
		s.post(s, c)
	}
	if pending {
		s.rewatch()
	}
	return len(b), nil
}

// Flush pushes buffered output after write readiness and completes a
// deferred half-close once the buffer is empty.
func (s *Socket) Flush() {
	s.wmu.Lock()
	fd := s.FD()
	var fail error
	if len(s.out) > 0 && fd >= 0 {
		n, err := unix.Write(fd, s.out)
		if err != nil && err != unix.EAGAIN {
			fail = err
		}
		if n > 0 {
			s.sent += int64(n)
			s.out = s.out[n:]
			if len(s.out) == 0 {
				s.out = nil
			}
		}
	}
	posts := s.collectLocked()
	pending := len(s.out) > 0
	s.outPending.Store(pending)
	if !pending && s.shutdownPending && !s.halfClosed && fd >= 0 {
		s.shutdownPending = false
		s.halfClosed = true
		unix.Shutdown(fd, unix.SHUT_WR)
	}
	s.wmu.Unlock()

	if fail != nil {
		s.log().WithError(fail).Warn("flush failed")
		s.post(s, api.Completion{Op: api.OpRead})
		return
	}
	for _, c := range posts {
		s.post(s, c)
	}
	s.rewatch()
}

// Read is a no-op for connected sockets: data arrives through OnRead as soon
// as the peer sends it.
func (s *Socket) Read(buf []byte, off int64) error {
	if !s.IsConnected() {
		return api.ErrNotConnected
	}
	return nil
}

// Write sends buf, through the TLS engine when one is active. It returns
// len(buf) once the bytes are queued; OnWrite reports them sent.
func (s *Socket) Write(buf []byte, off int64) (int, error) {
	if len(buf) == 0 {
		panic("device: empty write")
	}
	if s.role == api.RoleListening {
		return -1, api.ErrNotSupported
	}
	if s.stopped.Load() {
		return -1, api.ErrNotConnected
	}
	if br := s.tls.Load(); br != nil {
		return br.write(buf)
	}
	return s.rawWrite(buf, true)
}

// OnRead routes ciphertext into the TLS engine, plaintext to observers.
func (s *Socket) OnRead(b []byte) {
	if br := s.tls.Load(); br != nil {
		br.feed(b)
		return
	}
	s.NotifyRead(b)
}

// OnDisconnect defers teardown while the TLS engine still holds data.
func (s *Socket) OnDisconnect() {
	if br := s.tls.Load(); br != nil && !br.finished.Load() {
		br.closeInbound()
		return
	}
	s.teardown()
}

func (s *Socket) teardown() {
	if !s.disconnected.CompareAndSwap(false, true) {
		return
	}
	s.stopped.Store(true)
	s.log().Debug("disconnected")
	s.Device.OnDisconnect()
}

// OnAccept accepts every pending connection, attaches each to the
// dispatcher and then notifies observers.
func (s *Socket) OnAccept() {
	r := s.Dispatcher()
	if r == nil || s.role != api.RoleListening {
		return
	}
	for {
		nfd, sa, err := unix.Accept(s.FD())
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR && err != unix.ECONNABORTED {
				s.log().WithError(err).Warn("accept failed")
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			break
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		child := s.accepted(nfd, sa)
		r.AddEventListener(child)
		if err := r.Watch(child, api.InterestRead); err != nil {
			child.log().WithError(err).Warn("watch accepted socket failed")
			child.MarkRemoveSelfAsListener()
			continue
		}
		if s.onAccept != nil {
			s.onAccept(child)
		}
		child.OnConnect()
	}
	s.NotifyAccept()
}

func (s *Socket) accepted(fd int, sa unix.Sockaddr) *Socket {
	host, port := "", 0
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		host, port = net.IP(a.Addr[:]).String(), a.Port
	case *unix.SockaddrInet6:
		host, port = net.IP(a.Addr[:]).String(), a.Port
	}
	child := &Socket{role: api.RoleAccepted, host: host, port: port}
	child.init(child, api.KindSocket, []Option{WithLogger(s.logger)})
	s.Properties().Inherit(child.Properties())
	child.SetProperty("name", net.JoinHostPort(host, strconv.Itoa(port)))
	child.fd.Store(int64(fd))
	child.SetConnected(true)
	return child
}

// StopSocket closes the send side: TLS close-notify first when a session is
// up, then shutdown(SHUT_WR). Reads continue until the peer closes.
// Stopping a listening socket disconnects it. Calling it again is a no-op.
func (s *Socket) StopSocket() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	if s.role == api.RoleListening {
		s.post(s, api.Completion{Op: api.OpRead})
		return
	}
	if br := s.tls.Load(); br != nil && !br.finished.Load() {
		br.closeWrite()
		return
	}
	s.shutdownWrite()
}

// Stopped reports whether StopSocket was called or the socket went down.
func (s *Socket) Stopped() bool { return s.stopped.Load() }

func (s *Socket) shutdownWrite() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	fd := s.FD()
	if s.halfClosed || fd < 0 {
		return
	}
	if len(s.out) > 0 {
		s.shutdownPending = true
		return
	}
	s.halfClosed = true
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil && err != unix.ENOTCONN {
		s.log().WithError(err).Debug("shutdown failed")
	}
}

// InitializeSSL starts a TLS session over the connected socket: client side
// for client sockets, server side for accepted ones. onHandshake runs once on
// the dispatcher worker when the handshake succeeds; no plaintext is
// delivered to observers before it.
func (s *Socket) InitializeSSL(cfg *tls.Config, onHandshake func()) error {
	if cfg == nil {
		return api.ErrInvalidArgument
	}
	if s.role == api.RoleListening {
		return api.ErrNotSupported
	}
	r := s.Dispatcher()
	if r == nil {
		return api.ErrNoDispatcher
	}
	br := newTLSBridge(s, r, cfg, onHandshake)
	if !s.tls.CompareAndSwap(nil, br) {
		return errors.New("device: tls already initialized")
	}
	s.log().WithFields(log.Fields{"role": s.role.String()}).Debug("tls start")
	br.start()
	return nil
}

// HandshakeComplete reports whether a TLS session is established.
func (s *Socket) HandshakeComplete() bool {
	br := s.tls.Load()
	return br != nil && br.ready.Load()
}

// TLSState returns the connection state of an established TLS session.
func (s *Socket) TLSState() (tls.ConnectionState, bool) {
	br := s.tls.Load()
	if br == nil || !br.ready.Load() {
		return tls.ConnectionState{}, false
	}
	return br.conn.ConnectionState(), true
}

// CheckPeerSSLShutdown answers a peer close-notify by stopping the socket.
func (s *Socket) CheckPeerSSLShutdown() {
	br := s.tls.Load()
	if br == nil || !br.peerClosed.Load() {
		return
	}
	s.log().Debug("peer sent close-notify")
	s.StopSocket()
}

// Close releases the descriptor and stops the TLS engine.
func (s *Socket) Close() error {
	if br := s.tls.Load(); br != nil {
		br.close()
	}
	return s.Device.Close()
}
