// File: api/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Completion is the outcome of one asynchronous operation. It is produced by
// a device, travels by value through the dispatcher and is consumed exactly
// once. When Owned is set, Buf came from the scratch pool and returns to it
// after delivery.
type Completion struct {
	Op    OpKind
	Buf   []byte
	N     int
	Err   error
	Owned bool
}

// Data returns the transferred bytes.
func (c Completion) Data() []byte {
	if c.N <= 0 || c.N > len(c.Buf) {
		return nil
	}
	return c.Buf[:c.N]
}
