package container

// ByteBuffer is a growable, zero-filled, byte-addressable linear buffer. It
// backs lower linear memory and the arguments region.
type ByteBuffer struct {
	bytes []byte
}

// NewByteBuffer returns a buffer with the given initial length, zero-filled.
func NewByteBuffer(length int) *ByteBuffer {
	return &ByteBuffer{bytes: make([]byte, length)}
}

// Len returns the current logical length in bytes.
func (b *ByteBuffer) Len() int { return len(b.bytes) }

// Bytes returns the backing slice directly; callers must not retain it past
// a Grow that might reallocate.
func (b *ByteBuffer) Bytes() []byte { return b.bytes }

// Grow ensures the buffer is at least n bytes long, zero-filling the new
// tail. It never shrinks.
func (b *ByteBuffer) Grow(n int) {
	if n <= len(b.bytes) {
		return
	}
	newCap := cap(b.bytes)
	if newCap == 0 {
		newCap = 64
	}
	for newCap < n {
		newCap *= 2
	}
	grown := make([]byte, n, newCap)
	copy(grown, b.bytes)
	b.bytes = grown
}

// Slice returns b.bytes[off:off+n], growing the buffer first if necessary.
// Callers that want strict bounds checking must do it themselves.
func (b *ByteBuffer) Slice(off, n int) []byte {
	b.Grow(off + n)
	return b.bytes[off : off+n]
}
