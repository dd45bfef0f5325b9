package golang_asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asmkit/tasm/internal/asm"
	"github.com/asmkit/tasm/internal/asm/amd64"
)

// Every lowering of the resolver encodes the way the Go assembler does.
func TestLoweringMatchesGolangAsm(t *testing.T) {
	reg := asm.RegisterLocation
	EAX, EBX := amd64.GPR32.Register(0), amd64.GPR32.Register(3)
	for _, tc := range []struct {
		name string
		op   asm.AddressingOperation
	}{
		{name: "direct", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.RBX}},
		{name: "direct r12", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.R12}},
		{name: "indexed", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.RBX, Index: amd64.RCX}},
		{name: "register offset", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.RBX, Offset: reg(amd64.RCX)}},
		{name: "register offset, indexed", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.RBX, Offset: reg(amd64.RCX), Index: amd64.RDX}},
		{name: "imm8", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindLong, Operand: reg(amd64.R9), Pointer: amd64.RSI, Offset: asm.Immediate(-16)}},
		{name: "imm32", op: asm.AddressingOperation{Mnemonic: "add", Kind: asm.KindInt, Operand: reg(EBX), Pointer: amd64.R13, Offset: asm.Immediate(0x1234)}},
		{name: "imm8, indexed", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindInt, Operand: reg(EAX), Pointer: amd64.RBX, Offset: asm.Immediate(8), Index: amd64.RCX}},
		{name: "imm32, indexed", op: asm.AddressingOperation{Mnemonic: "sub", Kind: asm.KindLong, Operand: reg(amd64.R15), Pointer: amd64.R8, Offset: asm.Immediate(0x1000), Index: amd64.R14}},
		{name: "store", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindInt, Operand: reg(EBX), Store: true, Pointer: amd64.RDI, Offset: asm.Immediate(4)}},
		{name: "store immediate", op: asm.AddressingOperation{Mnemonic: "mov", Kind: asm.KindInt, Operand: asm.Immediate(42), Store: true, Pointer: amd64.RBP, Offset: asm.Immediate(-8)}},
		{name: "lea", op: asm.AddressingOperation{Mnemonic: "lea", Kind: asm.KindLong, Operand: reg(amd64.RAX), Pointer: amd64.RBX, Offset: asm.Immediate(8), Index: amd64.RCX}},
		{name: "single operand", op: asm.AddressingOperation{Mnemonic: "inc", Kind: asm.KindLong, Pointer: amd64.RDI, Offset: asm.Immediate(16)}},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			insts, _, err := asm.Resolve(amd64.ISA{}, &tc.op, nil)
			require.NoError(t, err)

			a := asm.NewAssembler(amd64.ISA{}, asm.Options{})
			for _, inst := range insts {
				a.Emit(inst.Template, inst.Args...)
			}
			code, err := a.Assemble()
			require.NoError(t, err)

			for i, inst := range insts {
				require.NoError(t, Check(inst, code.Bytes[code.Offsets[i]:code.Offsets[i+1]]))
			}
			got, err := Encode(insts)
			require.NoError(t, err)
			require.Equal(t, code.Bytes, got)
		})
	}
}

func TestCheck(t *testing.T) {
	cat := amd64.ISA{}.Catalog()
	tmpl, err := cat.Select("add", asm.RegisterLocation(amd64.RAX), asm.RegisterLocation(amd64.RBX))
	require.NoError(t, err)
	inst := asm.Instruction{Template: tmpl, Args: []asm.Location{asm.RegisterLocation(amd64.RAX), asm.RegisterLocation(amd64.RBX)}}

	require.NoError(t, Check(inst, []byte{0x48, 0x01, 0xd8}))
	require.ErrorContains(t, Check(inst, []byte{0x48, 0x03, 0xc3}), "golang-asm encodes 4801d8")

	jmp := asm.Instruction{Template: cat.Named("jmp")[0], Args: []asm.Location{asm.Address(0)}}
	require.ErrorIs(t, Check(jmp, nil), ErrUnsupported)
}
