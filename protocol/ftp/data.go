// File: protocol/ftp/data.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux || darwin || freebsd

package ftp

import (
	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/device"
	"github.com/momentics/hioload-npl/subject"
	log "github.com/sirupsen/logrus"
)

// transfer tracks the data channel of the running transfer job. It ends once
// both the final reply is in and the data channel has closed.
type transfer struct {
	job  *Job
	dc   *device.Socket
	file *device.File
	off  int64

	preliminary   bool
	ready         bool
	uploadStarted bool
	eof           bool
	finalSeen     bool
	closed        bool
	failed        bool
	cancelled     bool
	reply         string
}

func (x *transfer) result() string {
	switch {
	case x.cancelled:
		return "cancelled"
	case x.failed:
		return "failed"
	}
	return "ok"
}

// openData handles a 227 reply: it connects the data channel and sends the
// transfer command queued behind PASV. jobMu must be held.
func (c *Client) openData(reply string) {
	host, port, err := ParsePASV(reply)
	if err != nil {
		// The queue stays stalled until the connection goes away.
		c.log().WithError(err).Error("cannot open data channel")
		c.state = StatePasv
		return
	}
	if host == "0.0.0.0" {
		host = c.controlHost()
	}
	pasv := c.jobs.Remove().(*Job)
	c.metrics.ObserveJob(pasv.Verb, "ok")
	if c.jobs.Length() == 0 {
		c.inProgress = false
		return
	}
	job := c.jobs.Peek().(*Job)
	if !isTransfer(job.Verb) {
		c.log().WithField("verb", job.Verb).Warn("PASV not followed by a transfer")
		c.inProgress = false
		c.processNext()
		return
	}

	x := &transfer{job: job}
	c.xfer = x
	c.inProgress = false
	c.processNext()

	r := c.Dispatcher()
	if r == nil {
		c.log().Error("no dispatcher for data channel")
		x.closed = true
		return
	}
	name := "ftp-data-" + job.Verb
	x.dc = device.NewSocket(host, port, device.WithLogger(c.Logger()), device.WithName(name))
	r.AddEventListener(x.dc).AddEventListener(subject.NewListener(
		subject.WithName(name),
		subject.WithConnect(func() { c.onDataConnect(x) }),
		subject.WithRead(func(b []byte) { c.onDataRead(x, b) }),
		subject.WithWrite(func([]byte) { c.onDataWrite(x) }),
		subject.WithDisconnect(func() { c.onDataDisconnect(x) }),
	))

	switch job.Verb {
	case VerbStor:
		x.file = device.NewFile(job.Local, false, device.WithLogger(c.Logger()))
		r.AddEventListener(x.file).AddEventListener(subject.NewListener(
			subject.WithRead(func(b []byte) { c.onFileRead(x, b) }),
			subject.WithDisconnect(func() { c.onFileEOF(x) }),
		))
	case VerbRetr:
		if job.Local != "" {
			x.file = device.NewFile(job.Local, true, device.WithLogger(c.Logger()))
			if err := x.file.Truncate(0); err != nil {
				c.log().WithField("file", job.Local).WithError(err).Warn("cannot truncate")
			}
		}
	}

	dc := x.dc
	c.later(func() {
		if err := dc.StartSocketClient(); err != nil {
			c.log().WithError(err).Warn("data channel connect failed")
		}
	})
}

func (c *Client) onDataConnect(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer != x {
		return
	}
	c.log().WithFields(log.Fields{"verb": x.job.Verb, "protection": x.job.Protection.String()}).Debug("data channel up")
	if x.job.Protection == ProtectionPrivate && c.tlsMode != TLSNone {
		cfg := c.dataTLSConfig()
		c.later(func() {
			if err := x.dc.InitializeSSL(cfg, func() { c.onDataReady(x) }); err != nil {
				c.log().WithError(err).Warn("data channel TLS failed")
				x.dc.StopSocket()
			}
		})
		return
	}
	c.dataReady(x)
}

func (c *Client) onDataReady(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer == x {
		c.dataReady(x)
	}
}

// dataReady runs once the data channel can carry payload. jobMu must be
// held.
func (c *Client) dataReady(x *transfer) {
	x.ready = true
	if x.failed || x.cancelled {
		x.dc.StopSocket()
		return
	}
	c.startUpload(x)
}

// startUpload issues the first file read of a STOR once the server sent its
// preliminary reply and the data channel is ready. jobMu must be held.
func (c *Client) startUpload(x *transfer) {
	if x.job.Verb != VerbStor || !x.preliminary || !x.ready || x.uploadStarted {
		return
	}
	x.uploadStarted = true
	if err := x.file.Read(nil, 0); err != nil {
		c.log().WithField("file", x.job.Local).WithError(err).Warn("upload read failed")
		x.failed = true
		x.dc.StopSocket()
	}
}

// onFileRead forwards one chunk of the local file to the data channel.
func (c *Client) onFileRead(x *transfer, b []byte) {
	c.jobMu.Lock()
	if c.xfer != x || x.cancelled || len(b) == 0 {
		c.unlock()
		return
	}
	chunk := append([]byte(nil), b...)
	x.off += int64(len(chunk))
	cb := x.job.OnData
	c.unlock()

	if cb != nil && !cb(chunk) {
		c.cancel(x)
		return
	}
	if _, err := x.dc.Write(chunk, 0); err != nil {
		c.log().WithError(err).Warn("data channel write failed")
		c.jobMu.Lock()
		x.failed = true
		c.unlock()
		x.dc.StopSocket()
	}
}

// onDataWrite requests the next file chunk once the previous one left.
func (c *Client) onDataWrite(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer != x || x.job.Verb != VerbStor || x.eof || x.cancelled || x.failed {
		return
	}
	if err := x.file.Read(nil, x.off); err != nil {
		c.log().WithError(err).Warn("upload read failed")
		x.failed = true
		x.dc.StopSocket()
	}
}

// onFileEOF half-closes the data channel, signalling the end of the upload.
func (c *Client) onFileEOF(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer != x || x.eof {
		return
	}
	x.eof = true
	x.dc.StopSocket()
}

// onDataRead hands a downloaded chunk to the local file and the job
// callback. The chunk is only valid during the callback.
func (c *Client) onDataRead(x *transfer, b []byte) {
	c.jobMu.Lock()
	if c.xfer != x || x.cancelled || x.job.Verb == VerbStor {
		c.unlock()
		return
	}
	if x.file != nil {
		if _, err := x.file.WriteSync(b, x.off); err != nil {
			c.log().WithField("file", x.job.Local).WithError(err).Warn("write failed")
			x.failed = true
		}
	}
	x.off += int64(len(b))
	cb := x.job.OnData
	c.unlock()

	if cb != nil && !cb(b) {
		c.cancel(x)
	}
}

// cancel stops a transfer whose callback returned false. The data channel
// is closed actively; the job still waits for the final reply.
func (c *Client) cancel(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer != x || x.cancelled {
		return
	}
	c.log().WithField("verb", x.job.Verb).Info("transfer cancelled by callback")
	x.cancelled = true
	x.dc.StopSocket()
}

func (c *Client) onDataDisconnect(x *transfer) {
	c.jobMu.Lock()
	defer c.unlock()
	if c.xfer != x {
		return
	}
	x.closed = true
	c.complete()
}

// abortData forces the data channel down through a zero-length read.
// jobMu must be held.
func (c *Client) abortData(x *transfer) {
	if x.dc == nil || x.closed {
		return
	}
	r := c.Dispatcher()
	if r == nil {
		return
	}
	dc := x.dc
	c.later(func() { r.Post(dc, api.Completion{Op: api.OpRead}) })
}

// closeFile releases the local file of a transfer. jobMu must be held.
func (c *Client) closeFile(x *transfer) {
	if x.file == nil {
		return
	}
	if x.job.Verb == VerbStor {
		x.file.MarkRemoveAllListeners()
		x.file.MarkRemoveSelfAsListener()
		return
	}
	if err := x.file.Close(); err != nil {
		c.log().WithField("file", x.job.Local).WithError(err).Warn("close failed")
	}
}

// complete finishes the running transfer once the final reply arrived and
// the data channel closed. jobMu must be held.
func (c *Client) complete() {
	x := c.xfer
	if x == nil || !x.finalSeen || !x.closed {
		return
	}
	c.xfer = nil
	c.closeFile(x)
	if c.jobs.Length() > 0 && c.jobs.Peek().(*Job) == x.job {
		c.jobs.Remove()
	}
	result := x.result()
	c.metrics.ObserveJob(x.job.Verb, result)
	c.log().WithFields(log.Fields{"verb": x.job.Verb, "bytes": x.off, "result": result}).Info("transfer done")
	job, reply, end := x.job, x.reply, !x.cancelled
	c.later(func() { c.finish(job, reply, end) })
	c.state = StateReady
	c.inProgress = false
	c.processNext()
}
