// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool hands out fixed-size read buffers. Buffers travel through the
// pool as *[]byte so Put does not allocate.
type BytePool struct {
	bufs sync.Pool
	size int
}

// NewBytePool creates a pool of size-byte buffers. Sizes below 1 are
// raised to 1.
func NewBytePool(size int) *BytePool {
	if size < 1 {
		size = 1
	}
	bp := &BytePool{size: size}
	bp.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size is the length of every buffer returned by GetBuffer.
func (b *BytePool) Size() int {
	return b.size
}

// GetBuffer returns a buffer of exactly Size bytes.
func (b *BytePool) GetBuffer() []byte {
	return (*b.bufs.Get().(*[]byte))[:b.size]
}

// PutBuffer recycles buf. Buffers of a foreign capacity are dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.bufs.Put(&buf)
}
