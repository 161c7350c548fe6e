package subject_test

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/fake"
	"github.com/momentics/hioload-npl/subject"
)

func TestAddEventListenerFluent(t *testing.T) {
	root := subject.New()
	mid := fake.NewRecorder("mid", 0)
	leaf := fake.NewRecorder("leaf", 0)

	got := root.AddEventListener(mid).AddEventListener(leaf)
	if got != leaf {
		t.Fatalf("Expected leaf to be returned")
	}
	if mid.Target() != api.Node(root) {
		t.Errorf("Expected mid target to be root")
	}
	if leaf.Target() != api.Node(mid) {
		t.Errorf("Expected leaf target to be mid, got %v", leaf.Target())
	}

	root.OnRead([]byte("abc"))
	if string(leaf.Data()) != "abc" {
		t.Errorf("Expected leaf to receive abc, got %q", leaf.Data())
	}
}

func TestTargetIsSetOnce(t *testing.T) {
	a, b := subject.New(), subject.New()
	n := fake.NewRecorder("n", 0)
	a.AddEventListener(n)

	if err := n.SetTarget(a); err != nil {
		t.Errorf("Expected re-binding to the same target to succeed, got %v", err)
	}
	if err := n.SetTarget(b); !errors.Is(err, api.ErrTargetAlreadySet) {
		t.Errorf("Expected ErrTargetAlreadySet, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected attach to a second target to panic")
		}
	}()
	b.AddEventListener(n)
}

func TestReadWriteWithoutTarget(t *testing.T) {
	s := subject.New()
	if err := s.Read(nil, 0); !errors.Is(err, api.ErrNoTarget) {
		t.Errorf("Expected ErrNoTarget, got %v", err)
	}
	if n, err := s.Write([]byte("x"), 0); n != -1 || !errors.Is(err, api.ErrNoTarget) {
		t.Errorf("Expected -1 and ErrNoTarget, got %d, %v", n, err)
	}
}

func TestDisconnectCascadePrunesAllObservers(t *testing.T) {
	const n = 5
	root := subject.New()
	dev := fake.NewRecorder("dev", 0)
	root.AddEventListener(dev)
	dev.OnConnect()

	obs := make([]*fake.Recorder, n)
	for i := range obs {
		obs[i] = fake.NewRecorder("obs", 0)
		dev.AddEventListener(obs[i])
	}

	dev.OnDisconnect()
	if dev.IsConnected() {
		t.Error("Expected device to be disconnected")
	}
	for i, o := range obs {
		all, self := o.Marked()
		if !all || !self {
			t.Errorf("observer %d: expected both marks, got all=%v self=%v", i, all, self)
		}
	}
	// marks are not consumed until a prune pass
	if got := len(dev.Observers()); got != n {
		t.Fatalf("Expected %d observers before prune, got %d", n, got)
	}

	var detached []api.Node
	root.Prune(func(x api.Node) { detached = append(detached, x) })

	if got := len(dev.Observers()); got != 0 {
		t.Errorf("Expected no dangling observers, got %d", got)
	}
	if got := len(root.Observers()); got != 0 {
		t.Errorf("Expected device removed from root, got %d observers", got)
	}
	if len(detached) != n+1 {
		t.Errorf("Expected %d detached nodes, got %d", n+1, len(detached))
	}
}

func TestMarkDuringNotifyIsDeferred(t *testing.T) {
	root := subject.New()
	var l *subject.Listener
	calls := 0
	l = subject.NewListener(subject.WithRead(func([]byte) {
		calls++
		l.MarkRemoveSelfAsListener()
	}))
	other := fake.NewRecorder("other", 0)
	root.AddEventListener(l)
	root.AddEventListener(other)

	root.OnRead([]byte("1"))
	if len(other.Log()) != 1 {
		t.Errorf("Expected sibling to still be notified, got %v", other.Log())
	}
	root.Prune(nil)
	root.OnRead([]byte("2"))
	if calls != 1 {
		t.Errorf("Expected pruned listener to be called once, got %d", calls)
	}
	if len(other.Log()) != 2 {
		t.Errorf("Expected sibling to get both reads, got %v", other.Log())
	}
}

func TestDispatcherOf(t *testing.T) {
	r := fake.NewFakeReactor()
	a := fake.NewRecorder("a", 0)
	b := fake.NewRecorder("b", 0)
	r.AddEventListener(a).AddEventListener(b)

	if b.Dispatcher() != api.Reactor(r) {
		t.Error("Expected b to reach the reactor")
	}
	if subject.DispatcherOf(subject.New()) != nil {
		t.Error("Expected detached node to have no dispatcher")
	}
}

func TestListenerCallbacks(t *testing.T) {
	var got []string
	l := subject.NewListener(
		subject.WithName("cb"),
		subject.WithConnect(func() { got = append(got, "c") }),
		subject.WithRead(func(b []byte) { got = append(got, "r"+string(b)) }),
		subject.WithWrite(func(b []byte) { got = append(got, "w") }),
		subject.WithAccept(func() { got = append(got, "a") }),
		subject.WithDisconnect(func() { got = append(got, "d") }),
	)
	if l.Name() != "cb" {
		t.Errorf("Expected name cb, got %q", l.Name())
	}
	l.OnConnect()
	l.OnRead([]byte("x"))
	l.OnWrite(nil)
	l.OnAccept()
	l.OnDisconnect()

	want := []string{"c", "rx", "w", "a", "d"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

func TestPropertiesInherit(t *testing.T) {
	var src, dst subject.Properties
	src.Set("name", "ctrl", false)
	src.Set("tenant", "t1", true)
	src.Inherit(&dst)

	if _, ok := dst.Get("name"); ok {
		t.Error("Expected non-propagated key to stay behind")
	}
	if v, ok := dst.Get("tenant"); !ok || v != "t1" {
		t.Errorf("Expected tenant t1, got %v", v)
	}
	if !dst.IsPropagated("tenant") {
		t.Error("Expected inherited key to stay propagated")
	}
}
