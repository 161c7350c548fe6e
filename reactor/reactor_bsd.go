//go:build darwin || freebsd
// +build darwin freebsd

// File: reactor/reactor_bsd.go
// Author: momentics <momentics@gmail.com>
//
// kqueue(2)-based poller with a self-pipe wake channel.

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq     int
	wakeR  int
	wakeW  int
	mu     sync.Mutex
	closed bool
	keys   map[int]uint64
	raw    []unix.Kevent_t
}

// NewPoller constructs the kqueue poller.
func NewPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("pipe: %w", err)
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	p := &kqueuePoller{kq: kq, wakeR: fds[0], wakeW: fds[1], keys: make(map[int]uint64)}
	if err := p.change(p.wakeR, unix.EVFILT_READ, unix.EV_ADD); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *kqueuePoller) change(fd int, filter int16, flags uint16) error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, int(filter), int(flags))
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("kevent: %w", err)
	}
	return nil
}

func (p *kqueuePoller) apply(fd int, events EventMask) error {
	readFlags, writeFlags := uint16(unix.EV_DELETE), uint16(unix.EV_DELETE)
	if events&EventRead != 0 {
		readFlags = unix.EV_ADD
	}
	if events&EventWrite != 0 {
		writeFlags = unix.EV_ADD
	}
	if err := p.change(fd, unix.EVFILT_READ, readFlags); err != nil {
		return err
	}
	return p.change(fd, unix.EVFILT_WRITE, writeFlags)
}

func (p *kqueuePoller) Register(fd int, key uint64, events EventMask) error {
	if key == WakeKey {
		return fmt.Errorf("reactor: reserved key")
	}
	p.mu.Lock()
	p.keys[fd] = key
	p.mu.Unlock()
	return p.apply(fd, events)
}

func (p *kqueuePoller) Modify(fd int, key uint64, events EventMask) error {
	return p.Register(fd, key, events)
}

func (p *kqueuePoller) Unregister(fd int) error {
	p.mu.Lock()
	delete(p.keys, fd)
	p.mu.Unlock()
	return p.apply(fd, 0)
}

func (p *kqueuePoller) Wait(events []Event, timeoutMs int) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.raw[:len(events)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}
	out := 0
	p.mu.Lock()
	for i := 0; i < n; i++ {
		raw := &p.raw[i]
		fd := int(raw.Ident)
		if fd == p.wakeR {
			var buf [64]byte
			for {
				if m, _ := unix.Read(p.wakeR, buf[:]); m <= 0 {
					break
				}
			}
			events[out] = Event{Key: WakeKey, Events: EventRead}
			out++
			continue
		}
		key, ok := p.keys[fd]
		if !ok {
			continue
		}
		var m EventMask
		switch raw.Filter {
		case unix.EVFILT_READ:
			m |= EventRead
		case unix.EVFILT_WRITE:
			m |= EventWrite
		}
		if raw.Flags&unix.EV_EOF != 0 {
			m |= EventHangup
		}
		if raw.Flags&unix.EV_ERROR != 0 {
			m |= EventError
		}
		events[out] = Event{Key: key, Events: m}
		out++
	}
	p.mu.Unlock()
	return out, nil
}

func (p *kqueuePoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, err := unix.Write(p.wakeW, []byte{1}); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("wake write: %w", err)
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return unix.Close(p.kq)
}
