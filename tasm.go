// Package tasm assembles and disassembles x86-64 and SPARC machine code from declarative
// instruction templates.
//
// Code is produced by emitting logical instructions into an Assembler: template
// applications, mnemonics resolved against the template catalog, or addressing operations
// that are lowered into one or more machine instructions along one of eight addressing
// paths. A Disassembler maps bytes back to templates and operands, falling back to inline
// bytes where nothing matches.
//
// Here's an example of assembling a load from a scaled index:
//
//	a, _ := tasm.NewAssembler(tasm.NewConfig(tasm.AMD64))
//	a.EmitAddressing(tasm.AddressingOperation{
//		Mnemonic: "mov", Kind: tasm.KindLong,
//		Operand:  tasm.RegisterLocation(rax),
//		Pointer:  rbx, Index: rcx,
//	})
//	code, err := a.Assemble()
package tasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/asmkit/tasm/internal/asm"
	"github.com/asmkit/tasm/internal/dataaccess"
)

type (
	// Register is a physical register seen in one role.
	Register = asm.Register
	// Location is a resolved operand.
	Location = asm.Location
	// Kind is the type of data a memory access reads or writes.
	Kind = asm.Kind
	// Path is one of the eight shapes of an addressing operation.
	Path = asm.Path
	// Label names a logical instruction of an Assembler.
	Label = asm.Label
	// Template binds a mnemonic to an operand shape and its encoding.
	Template = asm.Template
	// Instruction is a template applied to concrete operands.
	Instruction = asm.Instruction
	// AddressingOperation is an instruction accessing memory relative to a pointer register.
	AddressingOperation = asm.AddressingOperation
	// Code is the output of an Assembler.
	Code = asm.Code
	// Disassembled is one decoded instruction.
	Disassembled = asm.Disassembled
	// Assembler turns logical instructions into bytes.
	Assembler = asm.Assembler
	// Disassembler decodes bytes into instructions.
	Disassembler = asm.Disassembler

	// Provider reads and writes the bytes of a target address space.
	Provider = dataaccess.Provider
	// Memory is a Provider over a byte slice.
	Memory = dataaccess.Memory
	// File is a Provider over a file.
	File = dataaccess.File
	// Reader reads typed values from a Provider in the data model of an architecture.
	Reader = dataaccess.Reader
)

// Errors returned by assembly and disassembly. Match them with errors.As.
type (
	IllegalOperandError             = asm.IllegalOperandError
	ImpossibleImmediateWidthError   = asm.ImpossibleImmediateWidthError
	ImpossibleLocationCategoryError = asm.ImpossibleLocationCategoryError
	UnsupportedRoleError            = asm.UnsupportedRoleError
	TruncatedInputError             = asm.TruncatedInputError
	UnknownMnemonicError            = asm.UnknownMnemonicError
	DataAccessError                 = dataaccess.Error
)

const (
	KindByte   = asm.KindByte
	KindShort  = asm.KindShort
	KindInt    = asm.KindInt
	KindLong   = asm.KindLong
	KindWord   = asm.KindWord
	KindFloat  = asm.KindFloat
	KindDouble = asm.KindDouble
)

// RegisterLocation returns the location of a register operand.
func RegisterLocation(r Register) Location { return asm.RegisterLocation(r) }

// Immediate returns an immediate operand in the narrowest category holding v.
func Immediate(v int64) Location { return asm.Immediate(v) }

// LabelOf returns a branch target naming a logical instruction of the same Assembler.
func LabelOf(l Label) Location { return asm.LabelOf(l) }

// Address returns an absolute branch target.
func Address(a uint64) Location { return asm.Address(a) }

// LookupRegister finds a register of a by name, with or without its sigil.
func (a Architecture) LookupRegister(name string) (Register, bool) {
	isa := a.isa()
	if isa == nil {
		return asm.NilRegister, false
	}
	return isa.LookupRegister(name)
}

// Templates returns every instruction template of a in catalog order, or nil for an invalid
// Architecture.
func (a Architecture) Templates() []*Template {
	isa := a.isa()
	if isa == nil {
		return nil
	}
	return isa.Catalog().Templates()
}

// NewAssembler returns an Assembler configured by c. The Assembler must be used by one
// goroutine at a time.
func NewAssembler(c *Config) (*Assembler, error) {
	isa, opts, err := c.options()
	if err != nil {
		return nil, err
	}
	return asm.NewAssembler(isa, opts), nil
}

// NewDisassembler returns a Disassembler configured by c. The Disassembler must be used by
// one goroutine at a time.
func NewDisassembler(c *Config) (*Disassembler, error) {
	isa, opts, err := c.options()
	if err != nil {
		return nil, err
	}
	return asm.NewDisassembler(isa, opts), nil
}

// Resolve lowers op into the machine instructions implementing it and reports the path it
// took.
func Resolve(c *Config, op AddressingOperation) ([]Instruction, Path, error) {
	isa, opts, err := c.options()
	if err != nil {
		return nil, 0, err
	}
	return asm.Resolve(isa, &op, opts.Scratch)
}

// Reconstruct recovers the addressing operation of kind at the start of insts, as produced by
// Resolve, and the number of instructions it spans.
func Reconstruct(c *Config, kind Kind, insts []Instruction) (AddressingOperation, Path, int, error) {
	isa, _, err := c.options()
	if err != nil {
		return AddressingOperation{}, 0, 0, err
	}
	return isa.Reconstruct(kind, insts)
}

// PatchCallSite rewrites the call instruction at code[offset:] to reach target. code[0] is at
// the start address of c.
func PatchCallSite(c *Config, code []byte, offset int, target uint64) error {
	isa, opts, err := c.options()
	if err != nil {
		return err
	}
	return isa.PatchCallSite(code, opts.Base, offset, target)
}

// NewMemory returns a Provider whose address space is data mapped at base.
func NewMemory(base uint64, data []byte) *Memory { return dataaccess.NewMemory(base, data) }

// OpenFile returns a Provider over the file at path, its first byte mapped at base.
func OpenFile(path string, base uint64) (*File, error) { return dataaccess.OpenFile(path, base) }

// NewReader returns a Reader over p positioned at addr, reading in the byte order and word
// width of the architecture of c.
func NewReader(c *Config, p Provider, addr uint64) (*Reader, error) {
	isa, _, err := c.options()
	if err != nil {
		return nil, err
	}
	return dataaccess.NewReader(p, addr, isa.ByteOrder(), isa.WordWidth()), nil
}

// DisassembleRange decodes the n bytes of p at the start address of c.
//
// When p holds fewer than n bytes, the bytes available are decoded and returned together
// with the *DataAccessError of the short read.
func DisassembleRange(c *Config, p Provider, n int) ([]*Disassembled, error) {
	d, err := NewDisassembler(c)
	if err != nil {
		return nil, err
	}
	code, readErr := p.Read(c.startAddress, n)
	if readErr != nil && (len(code) == 0 || !errors.Is(readErr, io.ErrUnexpectedEOF)) {
		return nil, readErr
	}
	insts, err := d.All(code)
	if err != nil {
		return insts, err
	}
	return insts, readErr
}

// AssembleTo assembles everything emitted into a and writes the code to p at its start
// address. Nothing is written if assembly fails.
func AssembleTo(p Provider, a *Assembler) (*Code, error) {
	code, err := a.Assemble()
	if err != nil {
		return nil, err
	}
	if _, err := p.Write(code.Base, code.Bytes); err != nil {
		return nil, fmt.Errorf("writing %d bytes of code: %w", len(code.Bytes), err)
	}
	return code, nil
}
