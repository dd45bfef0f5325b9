package dataaccess

import (
	"encoding/binary"

	"github.com/asmkit/tasm/internal/asm"
)

// Reader reads typed values sequentially from a Provider.
type Reader struct {
	p     Provider
	addr  uint64
	order binary.ByteOrder
	word  asm.Width
}

// NewReader returns a Reader positioned at addr. order and word describe the data model
// of the target: its byte order and pointer width.
func NewReader(p Provider, addr uint64, order binary.ByteOrder, word asm.Width) *Reader {
	return &Reader{p: p, addr: addr, order: order, word: word}
}

// Address returns the address of the next byte to read.
func (r *Reader) Address() uint64 { return r.addr }

// Seek moves the Reader to addr.
func (r *Reader) Seek(addr uint64) { r.addr = addr }

// ReadFully reads exactly n bytes. The position only advances on success.
func (r *Reader) ReadFully(n int) ([]byte, error) {
	b, err := r.p.Read(r.addr, n)
	if err != nil {
		return nil, err
	}
	r.addr += uint64(n)
	return b, nil
}

// Uint8 reads a byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.ReadFully(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads an unsigned 16-bit value in the byte order of the Reader.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.ReadFully(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// Uint32 reads an unsigned 32-bit value in the byte order of the Reader.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.ReadFully(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// Uint64 reads an unsigned 64-bit value in the byte order of the Reader.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.ReadFully(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// Word reads a pointer-sized value.
func (r *Reader) Word() (uint64, error) {
	if r.word == asm.Width32 {
		v, err := r.Uint32()
		return uint64(v), err
	}
	return r.Uint64()
}
