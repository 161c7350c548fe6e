// File: dispatcher/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	log "github.com/sirupsen/logrus"

	"github.com/momentics/hioload-npl/api"
)

// Metrics receives dispatcher measurements.
type Metrics interface {
	ObserveEvent(op api.OpKind, n int)
	SetDevices(n int)
	SetPending(n int)
}

// Probes is a registry of named debug hooks.
type Probes interface {
	RegisterProbe(name string, fn func() any)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used by the dispatcher.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics reports event and graph statistics to m.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithProbes registers the dispatcher state probes in p.
func WithProbes(p Probes) Option {
	return func(d *Dispatcher) { d.probes = p }
}

// WithBatchSize sets how many poller events are fetched per wait.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveEvent(api.OpKind, int) {}
func (nopMetrics) SetDevices(int) {}
func (nopMetrics) SetPending(int) {}
