// File: device/scratch.go
// Author: momentics <momentics@gmail.com>

package device

import "github.com/momentics/hioload-npl/pool"

func scratchBuf() []byte { return pool.Scratch.GetBuffer() }

// releaseBuf returns a device owned buffer to the scratch pool.
func releaseBuf(b []byte) { pool.Scratch.PutBuffer(b) }

// Release returns the buffer of an owned completion to the pool.
func Release(b []byte) { releaseBuf(b) }
