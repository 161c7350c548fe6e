// File: protocol/ftp/reply.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ftp

import (
	"bytes"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// IsReplyComplete reports whether buf holds a full reply: single line
// "ddd text\r\n", or a multi-line reply "ddd-..." closed by a line starting
// with the same code followed by a space.
func IsReplyComplete(buf []byte) bool {
	n := len(buf)
	if n < 2 || buf[n-2] != '\r' || buf[n-1] != '\n' {
		return false
	}
	if n < 4 || !isDigit(buf[0]) || !isDigit(buf[1]) || !isDigit(buf[2]) {
		return true
	}
	if buf[3] != '-' {
		return true
	}
	body := buf[:n-2]
	last := body
	if i := bytes.LastIndex(body, []byte("\r\n")); i >= 0 {
		last = body[i+2:]
	} else {
		return false
	}
	return len(last) >= 4 && bytes.Equal(last[:3], buf[:3]) && last[3] == ' '
}

// ReplyCode returns the numeric code of a reply, 0 when malformed.
func ReplyCode(reply string) int {
	if len(reply) < 3 || !isDigit(reply[0]) || !isDigit(reply[1]) || !isDigit(reply[2]) {
		return 0
	}
	code, _ := strconv.Atoi(reply[:3])
	return code
}

// ParsePASV extracts the data channel address from a PASV reply such as
// "227 Entering Passive Mode (127,0,0,1,200,13)."
func ParsePASV(reply string) (string, int, error) {
	matches := pasvRegex.FindStringSubmatch(reply)
	if len(matches) != 7 {
		return "", 0, fmt.Errorf("invalid PASV response: %s", strings.TrimSpace(reply))
	}

	var h [4]int
	for i := range 4 {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", 0, fmt.Errorf("invalid PASV IP part: %s", matches[i+1])
		}
		h[i] = val
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		return "", 0, fmt.Errorf("invalid IPv4 address from PASV: %s", host)
	}

	p1, err1 := strconv.Atoi(matches[5])
	p2, err2 := strconv.Atoi(matches[6])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return "", 0, fmt.Errorf("invalid PASV port parts: %s, %s", matches[5], matches[6])
	}
	return host, p1*256 + p2, nil
}

// ProtocolError is a negative reply to a command.
type ProtocolError struct {
	// Command is the command that was sent, without credentials.
	Command string

	// Response is the reply text.
	Response string

	// Code is the numeric reply code.
	Code int
}

func newProtocolError(command, response string) *ProtocolError {
	response = strings.TrimRight(response, "\r\n")
	return &ProtocolError{Command: command, Response: response, Code: ReplyCode(response)}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

func (e *ProtocolError) Is4xx() bool { return e.Code >= 400 && e.Code < 500 }
func (e *ProtocolError) Is5xx() bool { return e.Code >= 500 && e.Code < 600 }

// IsTemporary returns true if the error is a temporary failure (4xx).
func (e *ProtocolError) IsTemporary() bool { return e.Is4xx() }

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool { return e.Is5xx() }
