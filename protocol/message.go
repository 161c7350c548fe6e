// File: protocol/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "bytes"

// Message is one complete frame.
type Message []byte

func (m Message) String() string { return string(m) }

// Line returns the frame without its line terminator.
func (m Message) Line() string {
	return string(bytes.TrimRight(m, "\r\n"))
}

// LineComplete is the completion predicate of CRLF terminated protocols.
func LineComplete(buf []byte) bool {
	n := len(buf)
	return n >= 2 && buf[n-2] == '\r' && buf[n-1] == '\n'
}
