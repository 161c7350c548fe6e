// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// ScratchSize is the size of the read buffers devices allocate when the
// caller does not provide one.
const ScratchSize = 1024

// BytePool hands out fixed-size byte slices.
type BytePool struct {
	p    *SyncPool[*[]byte]
	size int
}

func NewBytePool(size int) *BytePool {
	return &BytePool{
		p: NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}, nil),
		size: size,
	}
}

// Size returns the length of the buffers in the pool.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of Size bytes.
func (b *BytePool) GetBuffer() []byte {
	return (*b.p.Get())[:b.size]
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign size are left
// to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}

// Scratch is the process-wide pool of device read buffers.
var Scratch = NewBytePool(ScratchSize)
