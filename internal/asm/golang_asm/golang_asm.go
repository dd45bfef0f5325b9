// Package golang_asm encodes x86-64 instructions with golang-asm, the assembler backend of
// the Go toolchain, to check the amd64 templates byte for byte.
package golang_asm

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
	"github.com/twitchyliquid64/golang-asm/objabi"

	"github.com/asmkit/tasm/internal/asm"
	"github.com/asmkit/tasm/internal/asm/amd64"
)

// ErrUnsupported is returned for instructions this package has no golang-asm mapping for,
// e.g. branches.
var ErrUnsupported = errors.New("no golang-asm equivalent")

// castAsGolangAsmInstruction maps a mnemonic to its golang-asm opcodes for 8, 16, 32 and
// 64-bit operands.
var castAsGolangAsmInstruction = map[string][4]obj.As{
	"mov": {x86.AMOVB, x86.AMOVW, x86.AMOVL, x86.AMOVQ},
	"add": {x86.AADDB, x86.AADDW, x86.AADDL, x86.AADDQ},
	"sub": {x86.ASUBB, x86.ASUBW, x86.ASUBL, x86.ASUBQ},
	"and": {x86.AANDB, x86.AANDW, x86.AANDL, x86.AANDQ},
	"or":  {x86.AORB, x86.AORW, x86.AORL, x86.AORQ},
	"xor": {x86.AXORB, x86.AXORW, x86.AXORL, x86.AXORQ},
	"inc": {x86.AINCB, x86.AINCW, x86.AINCL, x86.AINCQ},
	"dec": {x86.ADECB, x86.ADECW, x86.ADECL, x86.ADECQ},
	"lea": {obj.AXXX, x86.ALEAW, x86.ALEAL, x86.ALEAQ},
}

func widthIndex(w asm.Width) int {
	switch w {
	case asm.Width8:
		return 0
	case asm.Width16:
		return 1
	case asm.Width32:
		return 2
	}
	return 3
}

// castAsGolangAsmRegister maps a register to its golang-asm number. golang-asm names general
// registers independently of width, except for the byte registers.
func castAsGolangAsmRegister(r asm.Register) int16 {
	if r.Class() == amd64.GPR8 {
		return x86.REG_AL + int16(r.EncodingValue())
	}
	return x86.REG_AX + int16(r.EncodingValue())
}

var disablePadding sync.Once

// Encode assembles insts with golang-asm.
func Encode(insts []asm.Instruction) ([]byte, error) {
	// Branch alignment padding would make the output differ from a plain encoding.
	disablePadding.Do(func() { objabi.GOAMD64 = "disable" })

	b, err := goasm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	for _, inst := range insts {
		p := b.NewProg()
		if err := fill(p, inst); err != nil {
			return nil, err
		}
		b.AddInstruction(p)
	}
	return b.Assemble(), nil
}

// fill translates inst into p. The destination operand goes to p.To and the source to
// p.From; a memory operand is the destination unless a register is.
func fill(p *obj.Prog, inst asm.Instruction) error {
	ops, ok := castAsGolangAsmInstruction[inst.Template.Name]
	if !ok {
		return fmt.Errorf("%s: %w", inst.Template.Name, ErrUnsupported)
	}
	if p.As = ops[widthIndex(inst.Template.Width)]; p.As == obj.AXXX {
		return fmt.Errorf("%s: %w", inst.Template, ErrUnsupported)
	}

	var mem obj.Addr
	hasMem, regDest := false, false
	var from, to *obj.Addr
	for i, param := range inst.Template.Params {
		arg := inst.Args[i]
		switch param.Kind {
		case asm.ParamBase:
			hasMem = true
			mem.Type = obj.TYPE_MEM
			mem.Reg = castAsGolangAsmRegister(arg.Register)
		case asm.ParamIndex:
			mem.Index = castAsGolangAsmRegister(arg.Register)
		case asm.ParamScale:
			mem.Scale = int16(arg.Value)
		case asm.ParamDisplacement:
			mem.Offset = arg.Value
		case asm.ParamDestination:
			regDest = true
			to = &obj.Addr{Type: obj.TYPE_REG, Reg: castAsGolangAsmRegister(arg.Register)}
		case asm.ParamSource:
			from = &obj.Addr{Type: obj.TYPE_REG, Reg: castAsGolangAsmRegister(arg.Register)}
		case asm.ParamImmediate:
			from = &obj.Addr{Type: obj.TYPE_CONST, Offset: arg.Value}
		default:
			return fmt.Errorf("%s: %w", inst.Template, ErrUnsupported)
		}
	}
	if hasMem {
		if regDest {
			from = &mem
		} else {
			to = &mem
		}
	}
	if from != nil {
		p.From = *from
	}
	if to != nil {
		p.To = *to
	}
	return nil
}

// Check compares the encoding of inst by golang-asm with want. It returns ErrUnsupported,
// possibly wrapped, when golang-asm has no equivalent of inst.
func Check(inst asm.Instruction, want []byte) error {
	got, err := Encode([]asm.Instruction{inst})
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%s: golang-asm encodes %s, got %s", inst, hex.EncodeToString(got), hex.EncodeToString(want))
	}
	return nil
}
