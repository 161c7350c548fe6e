// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory helpers for hioload-npl: generic sync.Pool wrapper, scratch byte
// buffers for device reads, and the bounded ring used for message history.
package pool
