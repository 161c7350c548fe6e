//go:build linux || darwin || freebsd

// File: device/file.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-npl/api"
)

// File is a device over a regular file. Asynchronous Read and Write use the
// primary descriptor; ReadSync and WriteSync use an independent handle.
type File struct {
	Device
	path string
}

// NewFile opens path, creating it when create is set. A failed open leaves
// the device disconnected; the error is logged and returned by later I/O.
func NewFile(path string, create bool, opts ...Option) *File {
	f := &File{path: path}
	f.init(f, api.KindFile, opts)
	if f.Name() == "" {
		f.SetProperty("name", path)
	}
	if err := f.open(create); err != nil {
		f.log().WithError(err).Warn("open failed")
	}
	return f
}

func (f *File) open(create bool) error {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(f.path, flags, 0o644)
	if err == unix.EACCES || err == unix.EROFS || err == unix.EISDIR {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
		fd, err = unix.Open(f.path, flags, 0)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	sync, err := os.OpenFile(f.path, flags&^(unix.O_CREAT|unix.O_CLOEXEC), 0)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("open sync handle %s: %w", f.path, err)
	}
	f.fd.Store(int64(fd))
	f.file = sync
	f.SetConnected(true)
	return nil
}

// Path returns the file name given at construction.
func (f *File) Path() string { return f.path }

// Read reads at off and posts the result. With a nil buf a pooled scratch
// buffer is used. End of file and errors surface as a zero-length read,
// which disconnects the device.
func (f *File) Read(buf []byte, off int64) error {
	fd := f.FD()
	if !f.IsConnected() || fd < 0 {
		return api.ErrNotConnected
	}
	owned := buf == nil
	if owned {
		buf = scratchBuf()
	}
	n, err := unix.Pread(fd, buf, off)
	if err != nil {
		f.log().WithFields(log.Fields{"offset": off}).WithError(err).Warn("read failed")
		n = 0
	}
	return f.post(f, api.Completion{Op: api.OpRead, Buf: buf, N: n, Owned: owned})
}

// Write writes buf at off and posts a write completion. It returns the
// number of bytes written, or -1.
func (f *File) Write(buf []byte, off int64) (int, error) {
	if len(buf) == 0 {
		panic("device: empty write")
	}
	fd := f.FD()
	if !f.IsConnected() || fd < 0 {
		return -1, api.ErrNotConnected
	}
	n, err := unix.Pwrite(fd, buf, off)
	if err != nil {
		f.log().WithFields(log.Fields{"offset": off, "len": len(buf)}).WithError(err).Warn("write failed")
		f.post(f, api.Completion{Op: api.OpRead})
		return -1, fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := f.post(f, api.Completion{Op: api.OpWrite, Buf: buf, N: n}); err != nil {
		return n, err
	}
	return n, nil
}

// ReadSync reads at off on the synchronous handle.
func (f *File) ReadSync(buf []byte, off int64) (int, error) {
	if f.file == nil || !f.IsConnected() {
		return -1, api.ErrNotConnected
	}
	return f.file.ReadAt(buf, off)
}

// WriteSync writes at off on the synchronous handle.
func (f *File) WriteSync(buf []byte, off int64) (int, error) {
	if f.file == nil || !f.IsConnected() {
		return -1, api.ErrNotConnected
	}
	return f.file.WriteAt(buf, off)
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	if f.file == nil {
		return 0, api.ErrNotConnected
	}
	st, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Truncate changes the file size.
func (f *File) Truncate(size int64) error {
	if f.file == nil || !f.IsConnected() {
		return api.ErrNotConnected
	}
	return f.file.Truncate(size)
}
