//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller with an eventfd(2) wake channel.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd   int
	wakefd int

	mu     sync.Mutex
	closed bool
	raw    []unix.EpollEvent
}

// NewPoller constructs the epoll poller.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &epollPoller{epfd: epfd, wakefd: wakefd}
	ev := unix.EpollEvent{Events: unix.EPOLLIN}
	putKey(&ev, WakeKey)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return p, nil
}

// The key is split over the Fd and Pad words of the epoll user data.
func putKey(ev *unix.EpollEvent, key uint64) {
	ev.Fd = int32(uint32(key))
	ev.Pad = int32(uint32(key >> 32))
}

func getKey(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

func toEpoll(events EventMask) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (p *epollPoller) ctl(op, fd int, key uint64, events EventMask) error {
	if key == WakeKey {
		return fmt.Errorf("reactor: reserved key")
	}
	ev := unix.EpollEvent{Events: toEpoll(events)}
	putKey(&ev, key)
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) Register(fd int, key uint64, events EventMask) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, key, events); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, key uint64, events EventMask) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, key, events); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) Unregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait(events []Event, timeoutMs int) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	n, err := unix.EpollWait(p.epfd, p.raw[:len(events)], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		raw := &p.raw[i]
		key := getKey(raw)
		if key == WakeKey {
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
		}
		var m EventMask
		if raw.Events&unix.EPOLLIN != 0 {
			m |= EventRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			m |= EventWrite
		}
		if raw.Events&unix.EPOLLERR != 0 {
			m |= EventError
		}
		if raw.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			m |= EventHangup
		}
		events[i] = Event{Key: key, Events: m}
	}
	return n, nil
}

func (p *epollPoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
