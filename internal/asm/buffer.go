package asm

import "encoding/binary"

// Buffer is a growable byte buffer instructions are encoded into.
//
// Multi-byte values are written in the byte order the buffer was created with. The zero
// value is an empty little-endian buffer.
type Buffer struct {
	code  []byte
	order binary.ByteOrder
}

// NewBuffer returns an empty buffer writing multi-byte values in order.
func NewBuffer(order binary.ByteOrder) *Buffer {
	return &Buffer{order: order}
}

func (buf *Buffer) byteOrder() binary.ByteOrder {
	if buf.order == nil {
		return binary.LittleEndian
	}
	return buf.order
}

// Cap returns how many bytes can be written before the buffer grows again.
func (buf *Buffer) Cap() int {
	return cap(buf.code) - len(buf.code)
}

// Len returns the number of bytes written.
func (buf *Buffer) Len() int {
	return len(buf.code)
}

// Bytes returns the bytes written so far. The slice stays valid until the next write.
func (buf *Buffer) Bytes() []byte {
	return buf.code[:len(buf.code):len(buf.code)]
}

// Reset discards every byte written.
func (buf *Buffer) Reset() {
	buf.code = buf.code[:0]
}

// Truncate discards all but the first n bytes.
func (buf *Buffer) Truncate(n int) {
	buf.code = buf.code[:n]
}

// Append extends the buffer by n bytes and returns them for the caller to fill.
func (buf *Buffer) Append(n int) []byte {
	i := len(buf.code)
	buf.grow(n)
	buf.code = buf.code[:i+n]
	return buf.code[i : i+n : i+n]
}

func (buf *Buffer) grow(n int) {
	want := len(buf.code) + n
	if want <= cap(buf.code) {
		return
	}
	size := cap(buf.code)
	if size == 0 {
		size = 256
	}
	for size < want {
		size *= 2
	}
	b := make([]byte, len(buf.code), size)
	copy(b, buf.code)
	buf.code = b
}

// WriteByte appends b. It never fails.
func (buf *Buffer) WriteByte(b byte) {
	buf.grow(1)
	buf.code = append(buf.code, b)
}

// WriteUint16 appends u in the buffer byte order.
func (buf *Buffer) WriteUint16(u uint16) {
	buf.byteOrder().PutUint16(buf.Append(2), u)
}

// WriteUint32 appends u in the buffer byte order.
func (buf *Buffer) WriteUint32(u uint32) {
	buf.byteOrder().PutUint32(buf.Append(4), u)
}

// WriteUint64 appends u in the buffer byte order.
func (buf *Buffer) WriteUint64(u uint64) {
	buf.byteOrder().PutUint64(buf.Append(8), u)
}

// WriteImmediate appends the low w bits of v in the buffer byte order.
func (buf *Buffer) WriteImmediate(w Width, v int64) {
	switch w {
	case Width8:
		buf.WriteByte(byte(v))
	case Width16:
		buf.WriteUint16(uint16(v))
	case Width32:
		buf.WriteUint32(uint32(v))
	default:
		buf.WriteUint64(uint64(v))
	}
}

// Write implements io.Writer.
func (buf *Buffer) Write(b []byte) (int, error) {
	copy(buf.Append(len(b)), b)
	return len(b), nil
}
