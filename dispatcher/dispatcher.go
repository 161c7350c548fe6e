// File: dispatcher/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/pool"
	"github.com/momentics/hioload-npl/reactor"
	"github.com/momentics/hioload-npl/subject"
)

const defaultBatch = 128

// State is the phase of the worker loop.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	}
	return "idle"
}

// Handle identifies a device slot: generation in the high word, index in
// the low word.
type Handle uint64

func makeHandle(idx, gen uint32) Handle { return Handle(uint64(gen)<<32 | uint64(idx)) }

func (h Handle) split() (idx, gen uint32) { return uint32(h), uint32(h >> 32) }

type slot struct {
	dev        api.Device
	gen        uint32
	used       bool
	fd         int
	interest   api.Interest
	registered bool
}

type item struct {
	node api.Node
	c    api.Completion
	fn   func()
	stop bool
}

// Dispatcher is the root node of a graph and the only goroutine that
// delivers notifications to it.
type Dispatcher struct {
	subject.Subject

	poller  reactor.Poller
	logger  log.FieldLogger
	metrics Metrics
	probes  Probes
	batch   int

	// mu guards the slot arena.
	mu    sync.Mutex
	slots []slot
	free  []uint32
	index map[api.Device]Handle

	pmu         sync.Mutex
	pending     *queue.Queue
	wakePending atomic.Bool

	state     atomic.Int32
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates the poller and starts the worker goroutine.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:  log.StandardLogger(),
		metrics: nopMetrics{},
		batch:   defaultBatch,
		index:   make(map[api.Device]Handle),
		pending: queue.New(),
		done:    make(chan struct{}),
	}
	d.Bind(d)
	d.SetProperty(subject.NameKey, "dispatcher")
	for _, opt := range opts {
		opt(d)
	}
	p, err := reactor.NewPoller()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	d.poller = p
	if d.probes != nil {
		d.probes.RegisterProbe("dispatcher.state", func() any { return d.State().String() })
		d.probes.RegisterProbe("dispatcher.devices", func() any { return d.Devices() })
		d.probes.RegisterProbe("dispatcher.pending", func() any { return d.Pending() })
		d.probes.RegisterProbe("dispatcher.observers", func() any { return len(d.Observers()) })
	}
	go d.run()
	return d, nil
}

func (d *Dispatcher) log() *log.Entry {
	return d.logger.WithField("component", "dispatcher")
}

func (d *Dispatcher) IsDispatcher() bool { return true }

// State returns the current worker phase.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Devices returns the number of devices in the arena.
func (d *Dispatcher) Devices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Pending returns the number of queued completions and functions.
func (d *Dispatcher) Pending() int {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	return d.pending.Length()
}

// AddEventListener attaches n and, for devices, allocates its slot. Devices
// must be attached directly to the dispatcher.
func (d *Dispatcher) AddEventListener(n api.Node) api.Node {
	d.Subject.AddEventListener(n)
	if dev, ok := n.(api.Device); ok {
		d.register(dev)
	}
	return n
}

func (d *Dispatcher) register(dev api.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[dev]; ok {
		return
	}
	var idx uint32
	if k := len(d.free); k > 0 {
		idx = d.free[k-1]
		d.free = d.free[:k-1]
	} else {
		idx = uint32(len(d.slots))
		d.slots = append(d.slots, slot{gen: 1})
	}
	sl := &d.slots[idx]
	sl.dev = dev
	sl.used = true
	sl.fd = -1
	d.index[dev] = makeHandle(idx, sl.gen)
	d.metrics.SetDevices(len(d.index))
}

// HandleOf returns the slot handle of an attached device.
func (d *Dispatcher) HandleOf(dev api.Device) (Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.index[dev]
	return h, ok
}

// Resolve returns the device owning h, failing for stale handles.
func (d *Dispatcher) Resolve(h Handle) (api.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveLocked(h)
}

func (d *Dispatcher) resolveLocked(h Handle) (api.Device, error) {
	idx, gen := h.split()
	if int(idx) >= len(d.slots) {
		return nil, api.ErrStaleHandle
	}
	sl := &d.slots[idx]
	if !sl.used || sl.gen != gen {
		return nil, api.ErrStaleHandle
	}
	return sl.dev, nil
}

// Watch sets the readiness interest of an attached device. A zero interest
// removes the descriptor from the poller. Files are never polled.
func (d *Dispatcher) Watch(dev api.Device, in api.Interest) error {
	if d.closed.Load() {
		return api.ErrDispatcherClosed
	}
	if dev.Kind() != api.KindSocket {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.index[dev]
	if !ok {
		return api.ErrNoDispatcher
	}
	idx, _ := h.split()
	sl := &d.slots[idx]
	fd := dev.FD()
	if fd < 0 {
		return api.ErrNotConnected
	}
	if in == 0 {
		if sl.registered {
			sl.registered = false
			sl.interest = 0
			return d.poller.Unregister(sl.fd)
		}
		return nil
	}
	var events reactor.EventMask
	if in&api.InterestRead != 0 {
		events |= reactor.EventRead
	}
	if in&api.InterestWrite != 0 {
		events |= reactor.EventWrite
	}
	switch {
	case sl.registered && sl.fd == fd:
		if sl.interest == in {
			return nil
		}
		if err := d.poller.Modify(fd, uint64(h), events); err != nil {
			return err
		}
	default:
		if sl.registered {
			d.poller.Unregister(sl.fd)
		}
		if err := d.poller.Register(fd, uint64(h), events); err != nil {
			return err
		}
		sl.registered = true
		sl.fd = fd
	}
	sl.interest = in
	return nil
}

// Post queues c for delivery to n on the worker.
func (d *Dispatcher) Post(n api.Node, c api.Completion) {
	if !d.enqueue(item{node: n, c: c}) && c.Owned {
		pool.Scratch.PutBuffer(c.Buf)
	}
}

// Invoke runs fn on the worker.
func (d *Dispatcher) Invoke(fn func()) {
	d.enqueue(item{fn: fn})
}

func (d *Dispatcher) enqueue(it item) bool {
	if d.closed.Load() {
		return false
	}
	d.pmu.Lock()
	d.pending.Add(it)
	n := d.pending.Length()
	d.pmu.Unlock()
	d.metrics.SetPending(n)
	d.wake()
	return true
}

// wake interrupts the poller at most once per drain.
func (d *Dispatcher) wake() {
	if !d.wakePending.CompareAndSwap(false, true) {
		return
	}
	if err := d.poller.Wake(); err != nil && !d.closed.Load() {
		d.log().WithError(err).Warn("wake failed")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer d.state.Store(int32(StateClosed))
	events := make([]reactor.Event, d.batch)
	for {
		d.state.Store(int32(StateWaiting))
		n, err := d.poller.Wait(events, -1)
		if err != nil {
			d.log().WithError(err).Error("wait failed, worker stopping")
			return
		}
		d.state.Store(int32(StateDispatching))
		for i := 0; i < n; i++ {
			if events[i].Key == reactor.WakeKey {
				continue
			}
			d.dispatch(events[i])
		}
		stop := d.drain()
		d.prune()
		d.state.Store(int32(StateIdle))
		if stop {
			return
		}
	}
}

// dispatch turns one readiness event into a completion for its device.
func (d *Dispatcher) dispatch(ev reactor.Event) {
	d.mu.Lock()
	dev, err := d.resolveLocked(Handle(ev.Key))
	d.mu.Unlock()
	if err != nil {
		d.log().WithField("handle", ev.Key).Debug("dropping event for stale handle")
		return
	}
	if _, self := dev.Marked(); self {
		return
	}

	if dev.Connecting() {
		if ev.Events&(reactor.EventWrite|reactor.EventError|reactor.EventHangup) != 0 {
			d.deliver(dev, dev.CompleteConnect())
		}
		return
	}
	if ev.Events&reactor.EventWrite != 0 {
		d.safely(dev, dev.Flush)
	}
	if ev.Events&(reactor.EventRead|reactor.EventError|reactor.EventHangup) != 0 {
		if dev.Listening() {
			d.deliver(dev, api.Completion{Op: api.OpAccept})
			return
		}
		if c, ok := dev.ReadNow(); ok {
			d.deliver(dev, c)
		}
	}
}

// deliver converts a completion into the matching notification on n.
func (d *Dispatcher) deliver(n api.Node, c api.Completion) {
	d.metrics.ObserveEvent(c.Op, c.N)
	d.safely(n, func() {
		switch c.Op {
		case api.OpConnect:
			if c.Err != nil {
				d.log().WithField("node", n.Name()).WithError(c.Err).Warn("connect failed")
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
	})
	if c.Owned {
		pool.Scratch.PutBuffer(c.Buf)
	}
}

// safely runs fn and logs a panic instead of killing the worker.
func (d *Dispatcher) safely(n api.Node, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			entry := d.log().WithField("panic", r)
			if n != nil {
				entry = entry.WithField("node", n.Name())
			}
			entry.WithField("stack", string(debug.Stack())).Error("callback panicked")
		}
	}()
	fn()
}

// drain runs the items queued before the call. It reports whether the
// shutdown sentinel was reached.
func (d *Dispatcher) drain() bool {
	d.wakePending.Store(false)
	d.pmu.Lock()
	budget := d.pending.Length()
	d.pmu.Unlock()

	for ; budget > 0; budget-- {
		d.pmu.Lock()
		it := d.pending.Remove().(item)
		d.pmu.Unlock()

		switch {
		case it.stop:
			return true
		case it.fn != nil:
			d.safely(nil, it.fn)
		default:
			if _, self := it.node.Marked(); self {
				if it.c.Owned {
					pool.Scratch.PutBuffer(it.c.Buf)
				}
				continue
			}
			d.deliver(it.node, it.c)
		}
	}

	d.pmu.Lock()
	left := d.pending.Length()
	d.pmu.Unlock()
	d.metrics.SetPending(left)
	if left > 0 {
		d.wakePending.Store(false)
		d.wake()
	}
	return false
}

func (d *Dispatcher) prune() {
	d.Subject.Prune(d.detach)
}

// detach releases the devices of a node leaving the graph.
func (d *Dispatcher) detach(n api.Node) {
	for _, o := range n.Observers() {
		d.detach(o)
	}
	dev, ok := n.(api.Device)
	if !ok {
		return
	}
	d.release(dev)
	if err := dev.Close(); err != nil {
		d.log().WithField("node", dev.Name()).WithError(err).Debug("close failed")
	}
}

func (d *Dispatcher) release(dev api.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.index[dev]
	if !ok {
		return
	}
	delete(d.index, dev)
	idx, _ := h.split()
	sl := &d.slots[idx]
	if sl.registered {
		d.poller.Unregister(sl.fd)
	}
	gen := sl.gen + 1
	if gen == ^uint32(0) || gen == 0 {
		gen = 1
	}
	*sl = slot{gen: gen, fd: -1}
	d.free = append(d.free, idx)
	d.metrics.SetDevices(len(d.index))
}

// Close stops the worker after it drained everything queued before the
// call, closes the remaining devices and the poller. It must not be called
// from the worker goroutine.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.pmu.Lock()
		d.pending.Add(item{stop: true})
		d.pmu.Unlock()
		d.closed.Store(true)
		d.wakePending.Store(false)
		d.wake()
		<-d.done

		var result *multierror.Error
		d.mu.Lock()
		devs := make([]api.Device, 0, len(d.index))
		for dev := range d.index {
			devs = append(devs, dev)
		}
		d.index = make(map[api.Device]Handle)
		d.slots, d.free = nil, nil
		d.mu.Unlock()

		for _, dev := range devs {
			if err := dev.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close %s: %w", dev.Name(), err))
			}
		}
		if err := d.poller.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		d.closeErr = result.ErrorOrNil()
	})
	return d.closeErr
}

// Done is closed when the worker goroutine exits.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }
