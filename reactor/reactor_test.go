//go:build linux || darwin || freebsd

package reactor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestPollerWake(t *testing.T) {
	p, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	if err := p.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	events := make([]Event, 8)
	n, err := p.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || events[0].Key != WakeKey {
		t.Errorf("Expected a single wake event, got %d events %+v", n, events[:n])
	}
}

func TestPollerReadiness(t *testing.T) {
	p, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	const key = 42<<32 | 7
	if err := p.Register(fds[0], key, EventRead); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := unix.Write(fds[1], []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := p.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 event, got %d", n)
	}
	if events[0].Key != key {
		t.Errorf("Expected key %x, got %x", uint64(key), events[0].Key)
	}
	if !events[0].Events.Has(EventRead) {
		t.Errorf("Expected read readiness, got %b", events[0].Events)
	}

	if err := p.Modify(fds[0], key, EventWrite); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	n, err = p.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || !events[0].Events.Has(EventWrite) {
		t.Errorf("Expected write readiness, got %d events %+v", n, events[:n])
	}

	if err := p.Unregister(fds[0]); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	n, err = p.Wait(events, 10)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no events after Unregister, got %d", n)
	}
}

func TestRegisterRejectsWakeKey(t *testing.T) {
	p, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()
	if err := p.Register(0, WakeKey, EventRead); err == nil {
		t.Error("Expected error when registering the wake key")
	}
}
