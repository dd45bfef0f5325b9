package amd64

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/asmkit/tasm/internal/asm"
)

// Catalog returns the x86-64 template catalog, building it on first use.
var Catalog = sync.OnceValue(func() *asm.Catalog {
	c := asm.MustCatalog(buildTemplates())
	logrus.WithFields(logrus.Fields{
		"arch":      asm.ArchAMD64,
		"templates": len(c.Templates()),
		"headers":   c.HeaderCount(),
	}).Debug("built template catalog")
	return c
})

// ISA implements asm.ISA for x86-64 in 64-bit mode.
type ISA struct{}

var _ asm.ISA = ISA{}

// Arch implements asm.ISA.
func (ISA) Arch() asm.Arch { return asm.ArchAMD64 }

// Catalog implements asm.ISA.
func (ISA) Catalog() *asm.Catalog { return Catalog() }

// ByteOrder implements asm.ISA.
func (ISA) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

// WordWidth implements asm.ISA.
func (ISA) WordWidth() asm.Width { return asm.Width64 }

// LookupRegister implements asm.ISA.
func (ISA) LookupRegister(name string) (asm.Register, bool) { return LookupRegister(name) }

// DefaultScratch implements asm.ISA. R11 and R10 are caller-saved and not used for
// arguments by either of the common calling conventions. R10 is the fallback for operations
// that already use R11.
func (ISA) DefaultScratch() []asm.Register { return []asm.Register{R11, R10} }

// ScanPrefix implements asm.ISA. It recognizes an operand-size prefix followed by a REX
// prefix, both optional, in that order.
func (ISA) ScanPrefix(src []byte) asm.Prefix {
	var p asm.Prefix
	if p.Len < len(src) && src[p.Len] == operandSizePrefix {
		p.Key |= keyOperandSize16
		p.Len++
	}
	if p.Len < len(src) && src[p.Len]&0xf0 == rexPrefixDefault {
		p.Ext = src[p.Len]
		if p.Ext&rexPrefixW == rexPrefixW {
			p.Key |= keyRexW
		}
		p.Len++
	}
	return p
}

// Headers implements asm.ISA. Two-byte opcodes start with 0x0f.
func (ISA) Headers(p asm.Prefix, src []byte) ([]asm.Header, error) {
	switch {
	case len(src) == 0:
		return nil, asm.ErrTruncated
	case src[0] != 0x0f:
		return []asm.Header{{Prefix: p.Key, Opcode: uint32(src[0]), Len: 1}}, nil
	case len(src) < 2:
		return nil, asm.ErrTruncated
	}
	return []asm.Header{{Prefix: p.Key, Opcode: 0x0f00 | uint32(src[1]), Len: 2}}, nil
}

// Lower implements asm.ISA.
func (i ISA) Lower(op *asm.AddressingOperation, path asm.Path, scratch []asm.Register) ([]asm.Instruction, error) {
	size := op.Kind.Size(asm.Width64)
	var mem []asm.Location
	var prologue []asm.Instruction

	switch path {
	case asm.PathDirect:
		p, err := op.Pointer.AsIndirect()
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(p)}
	case asm.PathIndexed:
		p, err := op.Pointer.AsIndirect()
		if err != nil {
			return nil, err
		}
		x, err := op.Index.AsIndex()
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(p), asm.RegisterLocation(x), asm.Scale(size)}
	case asm.PathRegisterOffset:
		b, x, err := sibPair(op.Pointer, op.Offset.Register)
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(b), asm.RegisterLocation(x), asm.Scale(1)}
	case asm.PathRegisterOffsetIndexed:
		t, err := pickScratch(op, scratch)
		if err != nil {
			return nil, err
		}
		b, x, err := sibPair(op.Pointer, op.Offset.Register)
		if err != nil {
			return nil, err
		}
		lea, err := i.Catalog().Select("lea", asm.RegisterLocation(t.General()),
			asm.RegisterLocation(b), asm.RegisterLocation(x), asm.Scale(1))
		if err != nil {
			return nil, err
		}
		prologue = append(prologue, asm.Instruction{Template: lea, Args: []asm.Location{
			asm.RegisterLocation(t.General()), asm.RegisterLocation(b), asm.RegisterLocation(x), asm.Scale(1)}})
		p, err := t.AsIndirect()
		if err != nil {
			return nil, err
		}
		idx, err := op.Index.AsIndex()
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(p), asm.RegisterLocation(idx), asm.Scale(size)}
	case asm.PathDisp8, asm.PathDisp32, asm.PathDisp8Indexed, asm.PathDisp32Indexed:
		p, err := op.Pointer.AsBase()
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(p)}
		if path.Indexed() {
			x, err := op.Index.AsIndex()
			if err != nil {
				return nil, err
			}
			mem = append(mem, asm.RegisterLocation(x), asm.Scale(size))
		}
		w := asm.Width8
		if path >= asm.PathDisp32 {
			w = asm.Width32
		}
		mem = append(mem, asm.ImmediateOf(w, op.Offset.Value))
	default:
		return nil, fmt.Errorf("unknown path %s", path)
	}

	var args []asm.Location
	switch {
	case op.Operand.IsNone():
		args = mem
	case op.Store:
		args = append(mem, op.Operand)
	default:
		args = append([]asm.Location{op.Operand}, mem...)
	}
	memWidth := op.Kind.Width(asm.Width64)
	t, err := i.Catalog().SelectFunc(op.Mnemonic, func(t *asm.Template) bool {
		c := t.Codec.(*codec)
		return c.base >= 0 && (c.noSize || c.memWidth == memWidth)
	}, args...)
	if err != nil {
		return nil, err
	}
	return append(prologue, asm.Instruction{Template: t, Args: args}), nil
}

// sibPair views pointer and offset as the base and index of a SIB byte with scale 1. The
// order is kept so the operation reads back as written: an offset that cannot be an index
// is rejected rather than swapped into the base.
func sibPair(pointer, offset asm.Register) (base, index asm.Register, err error) {
	if base, err = pointer.AsIndirect(); err != nil {
		return asm.NilRegister, asm.NilRegister, err
	}
	if index, err = offset.AsIndex(); err != nil {
		return asm.NilRegister, asm.NilRegister, err
	}
	return base, index, nil
}

// pickScratch returns the first scratch register not used by op.
func pickScratch(op *asm.AddressingOperation, scratch []asm.Register) (asm.Register, error) {
	used := map[int]bool{
		op.Pointer.EncodingValue():         true,
		op.Offset.Register.EncodingValue(): true,
		op.Index.EncodingValue():           true,
	}
	if op.Operand.Category == asm.LocationIntegerRegister {
		used[op.Operand.Register.EncodingValue()] = true
	}
	for _, r := range scratch {
		if r.Class() == GPR64 && !used[r.EncodingValue()] && r.Supports(asm.RoleIndirect) {
			return r, nil
		}
	}
	return asm.NilRegister, fmt.Errorf("no usable scratch register among %v", scratch)
}

// Reconstruct implements asm.ISA. It recognizes the lea prologue of the register offset,
// indexed path and otherwise decodes a single instruction.
func (ISA) Reconstruct(kind asm.Kind, insts []asm.Instruction) (asm.AddressingOperation, asm.Path, int, error) {
	if len(insts) == 0 {
		return asm.AddressingOperation{}, 0, 0, asm.ErrNotAddressing
	}
	if len(insts) >= 2 && insts[0].Template.Name == "lea" {
		if op, ok := fuseLea(kind, insts[0], insts[1]); ok {
			return op, asm.PathRegisterOffsetIndexed, 2, nil
		}
	}
	op, path, err := reconstruct(kind, insts[0])
	return op, path, 1, err
}

// reconstruct decodes a single instruction.
func reconstruct(kind asm.Kind, inst asm.Instruction) (asm.AddressingOperation, asm.Path, error) {
	return asm.ReconstructInstruction(kind, asm.Width64, withoutZeroDisp(inst))
}

// zeroDisp returns true for the zero disp8 off RBP or R13 that stands for a memory operand
// without displacement.
func (c *codec) zeroDisp(args []asm.Location) bool {
	return c.mode.dispWidth() == asm.Width8 && args[c.disp].Value == 0 &&
		byte(args[c.base].Register.EncodingValue())&7 == rmDisp32
}

// withoutZeroDisp drops a zero disp8 off RBP or R13, which is how Lower emits [rbp] and
// [r13 + rcx*8], so the instruction reads back along the path it was lowered on.
func withoutZeroDisp(inst asm.Instruction) asm.Instruction {
	c, ok := inst.Template.Codec.(*codec)
	if !ok || c.disp < 0 || !c.zeroDisp(inst.Args) {
		return inst
	}
	t := *inst.Template
	t.Params = slices.Delete(slices.Clone(t.Params), c.disp, c.disp+1)
	return asm.Instruction{Template: &t, Args: slices.Delete(slices.Clone(inst.Args), c.disp, c.disp+1)}
}

func fuseLea(kind asm.Kind, lea, next asm.Instruction) (asm.AddressingOperation, bool) {
	c := lea.Template.Codec.(*codec)
	sib := c.mode == modeSIB || c.mode == modeSIBDisp8 && c.zeroDisp(lea.Args)
	if !sib || lea.Args[c.scale].Value != 1 {
		return asm.AddressingOperation{}, false
	}
	op, path, err := reconstruct(kind, next)
	t := lea.Args[c.reg].Register
	if err != nil || path != asm.PathIndexed || op.Pointer != t.General() {
		return asm.AddressingOperation{}, false
	}
	op.Pointer = lea.Args[c.base].Register.General()
	op.Offset = asm.RegisterLocation(lea.Args[c.index].Register.General())
	return op, true
}

// PatchCallSite implements asm.ISA for the rel32 form of CALL.
func (ISA) PatchCallSite(code []byte, base uint64, offset int, target uint64) error {
	if offset < 0 || offset+5 > len(code) {
		return fmt.Errorf("call site at offset %d out of range", offset)
	}
	if code[offset] != 0xe8 {
		return fmt.Errorf("no call at offset %d: opcode %#x", offset, code[offset])
	}
	d := int64(target - (base + uint64(offset) + 5))
	if !asm.FitsSigned(d, 32) {
		return &asm.ImpossibleImmediateWidthError{Value: d, Width: asm.Width64}
	}
	binary.LittleEndian.PutUint32(code[offset+1:], uint32(d))
	return nil
}
