package tasm

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asmkit/tasm/internal/asm/amd64"
	"github.com/asmkit/tasm/internal/asm/sparc"
	"github.com/asmkit/tasm/internal/dataaccess"
	"github.com/asmkit/tasm/internal/testing/hammer"
)

// indexedLoad is mov rax, [rbx + rcx * 8] followed by ret.
var indexedLoad = []byte{0x48, 0x8b, 0x04, 0xcb, 0xc3}

func TestInvalidArchitecture(t *testing.T) {
	c := NewConfig(0)
	_, err := NewAssembler(c)
	require.Error(t, err)
	_, err = NewDisassembler(c)
	require.Error(t, err)
	_, ok := Architecture(0).LookupRegister("rax")
	require.False(t, ok)
	require.Nil(t, Architecture(0).Templates())
}

func TestArchitecture_LookupRegister(t *testing.T) {
	r, ok := AMD64.LookupRegister("%r11")
	require.True(t, ok)
	require.Equal(t, amd64.R11, r)

	r, ok = SPARC.LookupRegister("%fp")
	require.True(t, ok)
	require.Equal(t, sparc.FP, r)

	_, ok = SPARC.LookupRegister("rax")
	require.False(t, ok)
}

func TestAssembleTo(t *testing.T) {
	c := NewConfig(AMD64).WithStartAddress(0x1000)

	t.Run("ok", func(t *testing.T) {
		mem := NewMemory(0x1000, make([]byte, 8))
		a, err := NewAssembler(c)
		require.NoError(t, err)
		a.EmitAddressing(AddressingOperation{Mnemonic: "mov", Kind: KindLong, Operand: RegisterLocation(amd64.RAX), Pointer: amd64.RBX, Index: amd64.RCX})
		a.EmitNamed("ret")

		code, err := AssembleTo(mem, a)
		require.NoError(t, err)
		require.Equal(t, uint64(0x1000), code.Base)
		require.Equal(t, indexedLoad, code.Bytes)
		require.Equal(t, []int{0, 4, 5}, code.Offsets)
		require.Equal(t, append(append([]byte(nil), indexedLoad...), 0, 0, 0), mem.Bytes())
	})

	t.Run("does not fit", func(t *testing.T) {
		mem := NewMemory(0x1000, make([]byte, 2))
		a, err := NewAssembler(c)
		require.NoError(t, err)
		a.EmitNamed("mov", RegisterLocation(amd64.RAX), Immediate(1))

		_, err = AssembleTo(mem, a)
		var dataErr *DataAccessError
		require.ErrorAs(t, err, &dataErr)
		require.Equal(t, "write", dataErr.Op)
		require.ErrorIs(t, err, dataaccess.ErrOutOfRange)
		require.Equal(t, []byte{0, 0}, mem.Bytes())
	})

	t.Run("assembly fails", func(t *testing.T) {
		mem := NewMemory(0x1000, make([]byte, 8))
		a, err := NewAssembler(c)
		require.NoError(t, err)
		a.EmitNamed("frobnicate")

		_, err = AssembleTo(mem, a)
		var unknown *UnknownMnemonicError
		require.ErrorAs(t, err, &unknown)
	})
}

func TestDisassembleRange(t *testing.T) {
	mem := NewMemory(0x1000, indexedLoad)
	c := NewConfig(AMD64).WithStartAddress(0x1000)

	insts, err := DisassembleRange(c, mem, len(indexedLoad))
	require.NoError(t, err)
	require.Len(t, insts, 2)
	require.Equal(t, "mov rax, qword ptr [rbx+rcx*8]", insts[0].String())
	require.Equal(t, uint64(0x1004), insts[1].Address)

	// The bytes available are decoded even when the range runs past them.
	insts, err = DisassembleRange(c, mem, 16)
	require.Len(t, insts, 2)
	var dataErr *DataAccessError
	require.ErrorAs(t, err, &dataErr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	insts, err = DisassembleRange(c.WithStartAddress(0x2000), mem, 4)
	require.Nil(t, insts)
	require.ErrorIs(t, err, dataaccess.ErrOutOfRange)

	// Cutting the load short leaves a truncated instruction.
	insts, err = DisassembleRange(c, NewMemory(0x1000, indexedLoad[:3]), 3)
	require.Empty(t, insts)
	var truncated *TruncatedInputError
	require.True(t, errors.As(err, &truncated))
	require.Equal(t, 0, truncated.Position)
}

func TestResolve_Reconstruct(t *testing.T) {
	c := NewConfig(SPARC)
	op := AddressingOperation{Mnemonic: "ld", Kind: KindInt, Operand: RegisterLocation(sparc.O1), Pointer: sparc.O0, Offset: Immediate(0x12345)}

	insts, path, err := Resolve(c, op)
	require.NoError(t, err)
	require.Equal(t, "imm32, no index", path.String())
	require.Len(t, insts, 3)

	got, gotPath, n, err := Reconstruct(c, KindInt, insts)
	require.NoError(t, err)
	require.Equal(t, op, got)
	require.Equal(t, path, gotPath)
	require.Equal(t, 3, n)

	// Scratch registers come from the configuration.
	insts, _, err = Resolve(c.WithScratchRegisters(sparc.L0), op)
	require.NoError(t, err)
	require.Equal(t, "sethi %hi(0x12000), %l0", insts[0].String())

	_, _, err = Resolve(c.WithScratchRegisters(), op)
	require.NoError(t, err)
}

func TestPatchCallSite(t *testing.T) {
	c := NewConfig(AMD64).WithStartAddress(0x1000)
	code := []byte{0x90, 0xe8, 0, 0, 0, 0}
	require.NoError(t, PatchCallSite(c, code, 1, 0x2000))
	require.Equal(t, []byte{0x90, 0xe8, 0xfa, 0x0f, 0x00, 0x00}, code)

	require.Error(t, PatchCallSite(c, code, 0, 0x2000))
}

func TestNewReader(t *testing.T) {
	image := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	for _, tc := range []struct {
		arch Architecture
		word uint64
	}{
		{arch: AMD64, word: 0x0807060504030201},
		{arch: SPARC, word: 0x01020304},
	} {
		t.Run(tc.arch.String(), func(t *testing.T) {
			r, err := NewReader(NewConfig(tc.arch), NewMemory(0x100, image), 0x100)
			require.NoError(t, err)
			w, err := r.Word()
			require.NoError(t, err)
			require.Equal(t, tc.word, w)
		})
	}

	_, err := NewReader(NewConfig(0), NewMemory(0, image), 0)
	require.Error(t, err)
}

func TestDisassembler_concurrent(t *testing.T) {
	c := NewConfig(AMD64)
	P, N := 8, 200
	if testing.Short() {
		P, N = 4, 50
	}
	hammer.NewHammer(t, P, N).Run(func(p, n int) {
		d, err := NewDisassembler(c.WithStartAddress(uint64(p) << 12))
		require.NoError(t, err)
		insts, err := d.All(indexedLoad)
		require.NoError(t, err)
		require.Len(t, insts, 2)
		require.Equal(t, uint64(p)<<12, insts[0].Address)
		require.Equal(t, "ret", insts[1].String())
	}, nil)
}
