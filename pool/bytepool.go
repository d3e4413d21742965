// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool recycles fixed-size byte slices.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool returns a pool handing out slices of exactly size bytes.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.p.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size is the length of every buffer from this pool.
func (b *BytePool) Size() int { return b.size }

// Get returns a buffer of Size bytes. Its contents are unspecified.
func (b *BytePool) Get() []byte {
	return *(b.p.Get().(*[]byte))
}

// Put returns buf to the pool. Buffers of a foreign size are dropped.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}
