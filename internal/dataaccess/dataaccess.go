// Package dataaccess reads and writes the bytes of a target address space: an in-memory
// image or a file mapped at a base address.
package dataaccess

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Provider reads and writes bytes at absolute addresses.
type Provider interface {
	// Read returns the n bytes at addr. On a short read it returns the bytes available and
	// an *Error wrapping io.ErrUnexpectedEOF.
	Read(addr uint64, n int) ([]byte, error)
	// Write stores b at addr and returns the number of bytes written. Writes never grow the
	// address space: one that does not fit writes nothing.
	Write(addr uint64, b []byte) (int, error)
}

var (
	// ErrOutOfRange is the cause of an access starting outside the address space.
	ErrOutOfRange = errors.New("address out of range")
	// ErrNegativeLength is the cause of a read of fewer than zero bytes.
	ErrNegativeLength = errors.New("negative length")
)

// Error is an access that failed at Address.
type Error struct {
	Address uint64
	// Op is "read" or "write".
	Op  string
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s at %#x: %v", e.Op, e.Address, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

func readError(addr uint64, cause error) error {
	return &Error{Address: addr, Op: "read", Err: errors.WithStack(cause)}
}

func writeError(addr uint64, cause error) error {
	return &Error{Address: addr, Op: "write", Err: errors.WithStack(cause)}
}

// Memory is a Provider over a byte slice starting at a base address. It is safe for
// concurrent use.
type Memory struct {
	mu   sync.RWMutex
	base uint64
	data []byte
}

var _ Provider = (*Memory)(nil)

// NewMemory returns a Provider whose address space is data mapped at base. data is not
// copied.
func NewMemory(base uint64, data []byte) *Memory {
	return &Memory{base: base, data: data}
}

// span returns the slice bounds of [addr, addr+n) clipped to the image, and false if addr
// is outside of it.
func (m *Memory) span(addr uint64, n int) (int, int, bool) {
	if addr < m.base || addr-m.base > uint64(len(m.data)) {
		return 0, 0, false
	}
	start := int(addr - m.base)
	return start, min(start+n, len(m.data)), true
}

// Read implements Provider.
func (m *Memory) Read(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, readError(addr, ErrNegativeLength)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	start, end, ok := m.span(addr, n)
	if !ok {
		return nil, readError(addr, ErrOutOfRange)
	}
	ret := append([]byte(nil), m.data[start:end]...)
	if len(ret) < n {
		return ret, readError(addr, io.ErrUnexpectedEOF)
	}
	return ret, nil
}

// Write implements Provider.
func (m *Memory) Write(addr uint64, b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end, ok := m.span(addr, len(b))
	if !ok || end-start < len(b) {
		return 0, writeError(addr, ErrOutOfRange)
	}
	return copy(m.data[start:end], b), nil
}

// Bytes returns the image. The caller must not use it concurrently with Write.
func (m *Memory) Bytes() []byte { return m.data }

// File is a Provider over a file whose first byte is mapped at a base address.
type File struct {
	f    *os.File
	base uint64
}

var _ Provider = (*File)(nil)

// OpenFile opens path for reading and writing, mapping offset 0 at base. Files that cannot
// be opened for writing are opened read-only.
func OpenFile(path string, base uint64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if f, err = os.Open(path); err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
	}
	return &File{f: f, base: base}, nil
}

// Read implements Provider.
func (f *File) Read(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, readError(addr, ErrNegativeLength)
	}
	if addr < f.base {
		return nil, readError(addr, ErrOutOfRange)
	}
	buf := make([]byte, n)
	got, err := f.f.ReadAt(buf, int64(addr-f.base))
	switch {
	case err == io.EOF && got < n:
		if got == 0 {
			return nil, readError(addr, ErrOutOfRange)
		}
		return buf[:got], readError(addr, io.ErrUnexpectedEOF)
	case err != nil && err != io.EOF:
		return buf[:got], readError(addr, err)
	}
	return buf, nil
}

// Write implements Provider.
func (f *File) Write(addr uint64, b []byte) (int, error) {
	if addr < f.base {
		return 0, writeError(addr, ErrOutOfRange)
	}
	st, err := f.f.Stat()
	if err != nil {
		return 0, writeError(addr, err)
	}
	if off := addr - f.base; off+uint64(len(b)) > uint64(st.Size()) {
		return 0, writeError(addr, ErrOutOfRange)
	}
	n, err := f.f.WriteAt(b, int64(addr-f.base))
	if err != nil {
		return n, writeError(addr, err)
	}
	return n, nil
}

// Close closes the file.
func (f *File) Close() error { return f.f.Close() }
