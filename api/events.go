// File: api/events.go
// Package api defines the observer graph contracts of hioload-npl.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// EventSink receives I/O notifications. The default behaviour of every node
// is to re-broadcast each notification to its observers.
type EventSink interface {
	OnConnect()
	OnRead(b []byte)
	OnWrite(b []byte)
	OnDisconnect()
	OnAccept()
}

// Readable issues an asynchronous read; the data arrives later via OnRead.
type Readable interface {
	Read(buf []byte, off int64) error
}

// Writable issues an asynchronous write and reports the bytes accepted.
type Writable interface {
	Write(buf []byte, off int64) (int, error)
}
