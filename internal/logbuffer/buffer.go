package logbuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Buffer wraps a byte slice, typically a view over a shared memory mapping,
// and provides plain and atomic accessors at byte offsets. Atomic accessors
// require the offset to be naturally aligned for the accessed width; the
// underlying slice must start on an 8-byte boundary, which both Go heap
// allocation and page-aligned mappings guarantee.
//
// Values are native-endian. Producer and subscriber share one machine, so no
// byte-order conversion is performed.
type Buffer struct {
	data []byte
}

// Wrap returns a Buffer over data. The slice is aliased, not copied.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Capacity() int32 {
	return int32(len(b.data))
}

// GetInt32 reads a 32-bit value with plain (non-atomic) semantics.
func (b *Buffer) GetInt32(offset int32) int32 {
	return *(*int32)(unsafe.Pointer(&b.data[offset]))
}

func (b *Buffer) PutInt32(offset int32, value int32) {
	*(*int32)(unsafe.Pointer(&b.data[offset])) = value
}

// GetInt32Volatile reads a 32-bit value with acquire semantics. A positive
// frame length read this way guarantees the producer's preceding header and
// payload stores are visible.
func (b *Buffer) GetInt32Volatile(offset int32) int32 {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&b.data[offset])))
}

// PutInt32Ordered writes a 32-bit value with release semantics.
func (b *Buffer) PutInt32Ordered(offset int32, value int32) {
	atomic.StoreInt32((*int32)(unsafe.Pointer(&b.data[offset])), value)
}

func (b *Buffer) GetInt64(offset int32) int64 {
	return *(*int64)(unsafe.Pointer(&b.data[offset]))
}

func (b *Buffer) PutInt64(offset int32, value int64) {
	*(*int64)(unsafe.Pointer(&b.data[offset])) = value
}

// GetInt64Volatile reads a 64-bit value with acquire semantics.
func (b *Buffer) GetInt64Volatile(offset int32) int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&b.data[offset])))
}

// PutInt64Ordered writes a 64-bit value with release semantics.
func (b *Buffer) PutInt64Ordered(offset int32, value int64) {
	atomic.StoreInt64((*int64)(unsafe.Pointer(&b.data[offset])), value)
}

func (b *Buffer) GetUInt8(offset int32) uint8 {
	return b.data[offset]
}

func (b *Buffer) PutUInt8(offset int32, value uint8) {
	b.data[offset] = value
}

func (b *Buffer) GetUInt16(offset int32) uint16 {
	return *(*uint16)(unsafe.Pointer(&b.data[offset]))
}

func (b *Buffer) PutUInt16(offset int32, value uint16) {
	*(*uint16)(unsafe.Pointer(&b.data[offset])) = value
}

// GetBytes returns a sub-slice aliasing [offset, offset+length). The caller
// must copy if the bytes are retained beyond the enclosing callback.
func (b *Buffer) GetBytes(offset int32, length int32) []byte {
	return b.data[offset : offset+length]
}

// BoundsCheck validates that [offset, offset+length) lies inside the buffer.
func (b *Buffer) BoundsCheck(offset int32, length int32) error {
	if offset < 0 || length < 0 || int64(offset)+int64(length) > int64(len(b.data)) {
		return fmt.Errorf("offset %d length %d out of bounds for capacity %d", offset, length, len(b.data))
	}
	return nil
}
