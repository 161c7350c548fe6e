//go:build linux || darwin || freebsd

// File: device/device.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/subject"
)

// Option configures a device at construction.
type Option func(*Device)

// WithLogger sets the logger used by the device.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithName sets the "name" property used in log fields.
func WithName(name string) Option {
	return func(d *Device) { d.SetProperty(subject.NameKey, name) }
}

// Device is the base of file and socket devices: a subject owning a native
// descriptor and, for files, a second handle for synchronous positioned I/O.
type Device struct {
	subject.Subject

	kind   api.DeviceKind
	fd     atomic.Int64
	file   *os.File
	logger log.FieldLogger

	closeOnce sync.Once
	closeErr  error
}

func (d *Device) init(self api.Node, kind api.DeviceKind, opts []Option) {
	d.Bind(self)
	d.kind = kind
	d.fd.Store(-1)
	d.logger = log.StandardLogger()
	for _, opt := range opts {
		opt(d)
	}
}

func (d *Device) log() *log.Entry {
	return d.logger.WithFields(log.Fields{
		"device": d.Name(),
		"kind":   d.kind.String(),
		"fd":     d.FD(),
	})
}

// Logger returns the logger the device was configured with.
func (d *Device) Logger() log.FieldLogger { return d.logger }

// FD returns the native descriptor, -1 when closed or not yet opened.
func (d *Device) FD() int { return int(d.fd.Load()) }

func (d *Device) Kind() api.DeviceKind { return d.kind }

func (d *Device) Listening() bool { return false }
func (d *Device) Connecting() bool { return false }

func (d *Device) ReadNow() (api.Completion, bool) { return api.Completion{}, false }
func (d *Device) CompleteConnect() api.Completion { return api.Completion{Op: api.OpConnect} }
func (d *Device) Flush() {}

// post hands c to the dispatcher owning the device.
func (d *Device) post(self api.Node, c api.Completion) error {
	r := d.Dispatcher()
	if r == nil {
		if c.Owned {
			releaseBuf(c.Buf)
		}
		return api.ErrNoDispatcher
	}
	r.Post(self, c)
	return nil
}

// Close releases the descriptor and the synchronous handle.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.SetConnected(false)
		var result *multierror.Error
		if fd := int(d.fd.Swap(-1)); fd >= 0 {
			if err := unix.Close(fd); err != nil {
				result = multierror.Append(result, api.NewError(api.ErrCodeIO, "close", err).WithContext("fd", fd))
			}
		}
		if d.file != nil {
			if err := d.file.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		d.closeErr = result.ErrorOrNil()
	})
	return d.closeErr
}
