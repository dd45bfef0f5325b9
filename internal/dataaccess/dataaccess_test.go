package dataaccess

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asmkit/tasm/internal/asm"
)

func TestMemory(t *testing.T) {
	m := NewMemory(0x1000, []byte{1, 2, 3, 4})

	b, err := m.Read(0x1001, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3}, b)

	t.Run("short read", func(t *testing.T) {
		b, err := m.Read(0x1002, 4)
		require.Equal(t, []byte{3, 4}, b)
		var de *Error
		require.ErrorAs(t, err, &de)
		require.Equal(t, uint64(0x1002), de.Address)
		require.Equal(t, "read", de.Op)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
	t.Run("out of range", func(t *testing.T) {
		_, err := m.Read(0xfff, 1)
		require.ErrorIs(t, err, ErrOutOfRange)
		_, err = m.Read(0x1005, 1)
		require.ErrorIs(t, err, ErrOutOfRange)
		n, err := m.Write(0x1003, []byte{9, 9})
		require.ErrorIs(t, err, ErrOutOfRange)
		require.Zero(t, n)
		require.Equal(t, []byte{1, 2, 3, 4}, m.Bytes())
	})
	t.Run("negative length", func(t *testing.T) {
		b, err := m.Read(0x1001, -2)
		require.Nil(t, b)
		var de *Error
		require.ErrorAs(t, err, &de)
		require.Equal(t, uint64(0x1001), de.Address)
		require.ErrorIs(t, err, ErrNegativeLength)
	})
	t.Run("write", func(t *testing.T) {
		n, err := m.Write(0x1000, []byte{0xaa, 0xbb})
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, []byte{0xaa, 0xbb, 3, 4}, m.Bytes())
	})
	t.Run("reads are copies", func(t *testing.T) {
		b, err := m.Read(0x1000, 1)
		require.NoError(t, err)
		b[0] = 0
		require.Equal(t, byte(0xaa), m.Bytes()[0])
	})
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x90, 0x90, 0xc3}, 0o600))

	f, err := OpenFile(path, 0x400000)
	require.NoError(t, err)
	defer f.Close()

	b, err := f.Read(0x400001, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0xc3}, b)

	_, err = f.Read(0x400002, 2)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = f.Read(0x400003, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = f.Read(0x3fffff, 1)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = f.Read(0x400000, -1)
	require.ErrorIs(t, err, ErrNegativeLength)

	n, err := f.Write(0x400000, []byte{0xcc})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = f.Write(0x400002, []byte{0, 0})
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Zero(t, n)
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xcc, 0x90, 0xc3}, got)

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"), 0)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReader(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
	for _, tc := range []struct {
		name  string
		order binary.ByteOrder
		word  asm.Width
		u16   uint16
		word0 uint64
	}{
		{name: "little endian 64", order: binary.LittleEndian, word: asm.Width64, u16: 0x0302, word0: 0x0908070605040302},
		{name: "big endian 32", order: binary.BigEndian, word: asm.Width32, u16: 0x0203, word0: 0x02030405},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(NewMemory(0x100, data), 0x100, tc.order, tc.word)
			u8, err := r.Uint8()
			require.NoError(t, err)
			require.Equal(t, uint8(1), u8)

			u16, err := r.Uint16()
			require.NoError(t, err)
			require.Equal(t, tc.u16, u16)

			r.Seek(0x101)
			w, err := r.Word()
			require.NoError(t, err)
			require.Equal(t, tc.word0, w)
			require.Equal(t, uint64(0x101)+uint64(tc.word.Bytes()), r.Address())
		})
	}

	t.Run("short read does not advance", func(t *testing.T) {
		r := NewReader(NewMemory(0, data), 6, binary.LittleEndian, asm.Width64)
		_, err := r.Uint32()
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		require.Equal(t, uint64(6), r.Address())

		b, err := r.ReadFully(3)
		require.NoError(t, err)
		require.Equal(t, []byte{7, 8, 9}, b)
		_, err = r.Uint64()
		require.Error(t, err)

		_, err = r.ReadFully(-1)
		require.ErrorIs(t, err, ErrNegativeLength)
		require.Equal(t, uint64(9), r.Address())
	})
}
