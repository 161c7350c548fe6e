// File: api/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// OpKind identifies the asynchronous operation a Completion reports.
type OpKind uint8

const (
	OpNone OpKind = iota
	OpAccept
	OpConnect
	OpRead
	OpWrite
	OpIoctl
)

func (k OpKind) String() string {
	switch k {
	case OpAccept:
		return "A"
	case OpConnect:
		return "C"
	case OpRead:
		return "R"
	case OpWrite:
		return "W"
	case OpIoctl:
		return "Z"
	}
	return "-"
}

// DeviceKind distinguishes the native handle behind a device.
type DeviceKind uint8

const (
	KindNone DeviceKind = iota
	KindFile
	KindSocket
)

func (k DeviceKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSocket:
		return "socket"
	}
	return "none"
}

// SocketRole is the role a socket device plays.
type SocketRole uint8

const (
	RoleClient SocketRole = iota
	RoleListening
	RoleAccepted
)

func (r SocketRole) String() string {
	switch r {
	case RoleListening:
		return "listening"
	case RoleAccepted:
		return "accepted"
	}
	return "client"
}

// Interest is the readiness a device wants to be woken for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)
