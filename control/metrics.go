// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics for the dispatcher and the FTP client. A disabled
// Metrics, like a nil one, accepts every call and records nothing.

package control

import (
	"net/http"

	"github.com/momentics/hioload-npl/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the runtime collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	events  *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	devices prometheus.Gauge
	pending prometheus.Gauge
	jobs    *prometheus.CounterVec
}

// NewMetrics creates the collectors when cfg is enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}
	ns := cfg.Namespace
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "dispatcher_events_total",
				Help:      "Completions delivered by the dispatcher",
			},
			[]string{"op"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "dispatcher_bytes_total",
				Help:      "Bytes carried by delivered completions",
			},
			[]string{"op"},
		),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "dispatcher_devices",
			Help:      "Devices registered with the dispatcher",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "dispatcher_pending",
			Help:      "Completions and calls waiting for the worker",
		}),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "ftp_jobs_total",
				Help:      "FTP jobs by verb and result",
			},
			[]string{"verb", "result"},
		),
	}
	m.registry.MustRegister(m.events, m.bytes, m.devices, m.pending, m.jobs)
	return m
}

// Enabled reports whether the collectors exist.
func (m *Metrics) Enabled() bool { return m != nil && m.registry != nil }

// Registry returns the private registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts one delivered completion.
func (m *Metrics) ObserveEvent(op api.OpKind, n int) {
	if !m.Enabled() {
		return
	}
	m.events.WithLabelValues(op.String()).Inc()
	if n > 0 {
		m.bytes.WithLabelValues(op.String()).Add(float64(n))
	}
}

func (m *Metrics) SetDevices(n int) {
	if m.Enabled() {
		m.devices.Set(float64(n))
	}
}

func (m *Metrics) SetPending(n int) {
	if m.Enabled() {
		m.pending.Set(float64(n))
	}
}

// ObserveJob counts one finished FTP job.
func (m *Metrics) ObserveJob(verb, result string) {
	if m.Enabled() {
		m.jobs.WithLabelValues(verb, result).Inc()
	}
}
